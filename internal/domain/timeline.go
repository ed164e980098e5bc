package domain

import "time"

// Типы событий таймлайна заказа.
const (
	TimelineCreated       = "created"
	TimelineItemAdded     = "item_added"
	TimelineItemRemoved   = "item_removed"
	TimelineCouponApplied = "coupon_applied"
	TimelineStatusChanged = "status_changed"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
// StatusID и TotalCost фиксируют состояние заказа сразу после события.
type TimelineEvent struct {
	OrderID   string
	Type      string
	Reason    string
	ActorID   string
	StatusID  StatusID
	TotalCost int64
	Occurred  time.Time
}
