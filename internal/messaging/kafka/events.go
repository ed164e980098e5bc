package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType определяет тип события заказа.
type EventType string

const (
	EventTypeOrderCreated       EventType = "bookshop.order.created"
	EventTypeOrderItemAdded     EventType = "bookshop.order.item_added"
	EventTypeOrderItemRemoved   EventType = "bookshop.order.item_removed"
	EventTypeOrderCouponApplied EventType = "bookshop.order.coupon_applied"
	EventTypeOrderStatusChanged EventType = "bookshop.order.status_changed"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "bookshop.order.events"
	TopicDeadLetterQueue = "bookshop.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent — полезная нагрузка события заказа.
type OrderEvent struct {
	EventType EventType `json:"event_type"`
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	StatusID  int       `json:"status_id"`
	Status    string    `json:"status"`
	// FromStatusID заполняется только для status_changed.
	FromStatusID int      `json:"from_status_id,omitempty"`
	TotalCost    int64    `json:"total_cost"`
	CouponCodes  []string `json:"coupon_codes,omitempty"`
	// NeutralizedCoupons — подмножество CouponCodes с обнулённой скидкой.
	NeutralizedCoupons []string               `json:"neutralized_coupons,omitempty"`
	ActorID            string                 `json:"actor_id,omitempty"`
	Timestamp          time.Time              `json:"timestamp"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// Envelope — обёртка outbox-сообщения в топике.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// DeadLetter — исходное сообщение, которое Consumer не смог обработать за все попытки.
type DeadLetter struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalKey       string    `json:"original_key"`
	OriginalValue     string    `json:"original_value"`
	ErrorMessage      string    `json:"error_message"`
	RetryCount        int       `json:"retry_count"`
	FailedAt          time.Time `json:"failed_at"`
}

// ParseEnvelope разбирает конверт и вложенное событие заказа.
func ParseEnvelope(data []byte) (Envelope, OrderEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, OrderEvent{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	var event OrderEvent
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &event); err != nil {
			return env, OrderEvent{}, fmt.Errorf("unmarshal order event: %w", err)
		}
	}
	return env, event, nil
}
