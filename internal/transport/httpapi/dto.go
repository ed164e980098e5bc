package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
	"github.com/vladislavdragonenkov/bookshop/internal/service/orders"
)

type bookRequest struct {
	BookID string `json:"book_id"`
}

type couponRequest struct {
	CouponCode string `json:"coupon_code"`
}

type transitionRequest struct {
	StatusID int `json:"status_id"`
}

type orderResponse struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	StatusID     int              `json:"status_id"`
	Status       string           `json:"status"`
	BookIDs      []string         `json:"book_ids"`
	BooksCost    map[string]int64 `json:"books_cost"`
	PartialCosts map[string]int64 `json:"partial_costs"`
	TotalCost    int64            `json:"total_cost"`
	Version      int64            `json:"version"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	SentAt       *time.Time       `json:"sent_at,omitempty"`
	CancelledAt  *time.Time       `json:"cancelled_at,omitempty"`
	ReturnedAt   *time.Time       `json:"returned_at,omitempty"`
	DeliveredAt  *time.Time       `json:"delivered_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

type addItemResponse struct {
	orderResponse
	Created bool `json:"created"`
}

type orderDetailsResponse struct {
	orderResponse
	Timeline []timelineEventResponse `json:"timeline"`
}

type timelineEventResponse struct {
	Type      string    `json:"type"`
	Reason    string    `json:"reason,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	StatusID  int       `json:"status_id"`
	TotalCost int64     `json:"total_cost"`
	Occurred  time.Time `json:"occurred_at"`
}

type statusResponse struct {
	ID                   int    `json:"id"`
	Name                 string `json:"name"`
	PossibleNextStatuses []int  `json:"possible_next_statuses"`
}

func toOrderResponse(o domain.Order) orderResponse {
	resp := orderResponse{
		ID:           o.ID,
		UserID:       o.UserID,
		StatusID:     int(o.StatusID),
		Status:       o.StatusID.Name(),
		BookIDs:      append([]string{}, o.BookIDs...),
		BooksCost:    make(map[string]int64, len(o.BooksCost)),
		PartialCosts: make(map[string]int64, len(o.PartialCosts)),
		TotalCost:    o.TotalCost,
		Version:      o.Version,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
		SentAt:       o.SentAt,
		CancelledAt:  o.CancelledAt,
		ReturnedAt:   o.ReturnedAt,
		DeliveredAt:  o.DeliveredAt,
		CompletedAt:  o.CompletedAt,
	}
	for k, v := range o.BooksCost {
		resp.BooksCost[k] = v
	}
	for k, v := range o.PartialCosts {
		resp.PartialCosts[k] = v
	}
	return resp
}

func toOrderList(list []domain.Order) []orderResponse {
	result := make([]orderResponse, 0, len(list))
	for _, o := range list {
		result = append(result, toOrderResponse(o))
	}
	return result
}

func toTimeline(events []domain.TimelineEvent) []timelineEventResponse {
	result := make([]timelineEventResponse, 0, len(events))
	for _, ev := range events {
		result = append(result, timelineEventResponse{
			Type:      ev.Type,
			Reason:    ev.Reason,
			ActorID:   ev.ActorID,
			StatusID:  int(ev.StatusID),
			TotalCost: ev.TotalCost,
			Occurred:  ev.Occurred,
		})
	}
	return result
}

// toTransitionResponse отдаёт {status_id, <stamp>_at}; отметка есть не у всех статусов.
func toTransitionResponse(res orders.TransitionResult) map[string]any {
	body := map[string]any{"status_id": int(res.StatusID)}
	if res.StampField != "" && res.StampedAt != nil {
		body[res.StampField] = res.StampedAt.UTC()
	}
	return body
}

func toStatuses(statuses []domain.OrderStatus) []statusResponse {
	result := make([]statusResponse, 0, len(statuses))
	for _, st := range statuses {
		next := make([]int, 0, len(st.PossibleNextStatuses))
		for _, id := range st.PossibleNextStatuses {
			next = append(next, int(id))
		}
		result = append(result, statusResponse{ID: int(st.ID), Name: st.Name, PossibleNextStatuses: next})
	}
	return result
}
