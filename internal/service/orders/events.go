package orders

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
	"github.com/vladislavdragonenkov/bookshop/internal/messaging/kafka"
)

const aggregateOrder = "order"

var timelineTypes = map[kafka.EventType]string{
	kafka.EventTypeOrderCreated:       domain.TimelineCreated,
	kafka.EventTypeOrderItemAdded:     domain.TimelineItemAdded,
	kafka.EventTypeOrderItemRemoved:   domain.TimelineItemRemoved,
	kafka.EventTypeOrderCouponApplied: domain.TimelineCouponApplied,
	kafka.EventTypeOrderStatusChanged: domain.TimelineStatusChanged,
}

// change — изменение заказа, о котором нужно сообщить в таймлайн и outbox.
type change struct {
	eventType kafka.EventType
	order     domain.Order
	from      domain.StatusID
	actorID   string
	reason    string
	metadata  map[string]interface{}
}

// record пишет событие в таймлайн и ставит его в outbox. Ошибки логируются:
// состояние заказа к этому моменту уже сохранено.
func (e *Engine) record(ctx context.Context, c change) {
	now := e.now()
	actor := c.actorID
	if actor == "" {
		actor = c.order.UserID
	}
	logger := e.logger.WithFields(log.Fields{
		"order_id":   c.order.ID,
		"event_type": c.eventType,
	})

	if e.timeline != nil {
		err := e.timeline.Append(ctx, domain.TimelineEvent{
			OrderID:   c.order.ID,
			Type:      timelineTypes[c.eventType],
			Reason:    c.reason,
			ActorID:   actor,
			StatusID:  c.order.StatusID,
			TotalCost: c.order.TotalCost,
			Occurred:  now,
		})
		if err != nil {
			logger.WithError(err).Warn("failed to append timeline event")
		} else if e.metrics != nil {
			e.metrics.RecordTimelineEvent()
		}
	}

	if e.outbox == nil {
		return
	}

	codes := c.order.CouponCodes()
	sort.Strings(codes)
	event := kafka.OrderEvent{
		EventType:   c.eventType,
		OrderID:     c.order.ID,
		UserID:      c.order.UserID,
		StatusID:    int(c.order.StatusID),
		Status:      c.order.StatusID.Name(),
		TotalCost:   c.order.TotalCost,
		CouponCodes: codes,
		ActorID:     actor,
		Timestamp:   now,
		Metadata:    c.metadata,
	}
	if neutralized := c.order.NeutralizedCouponCodes(); len(neutralized) > 0 {
		sort.Strings(neutralized)
		event.NeutralizedCoupons = neutralized
	}
	if c.eventType == kafka.EventTypeOrderStatusChanged {
		event.FromStatusID = int(c.from)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logger.WithError(err).Error("failed to marshal order event")
		return
	}
	if _, err := e.outbox.Enqueue(ctx, domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: aggregateOrder,
		AggregateID:   c.order.ID,
		EventType:     string(c.eventType),
		Payload:       payload,
		CreatedAt:     now,
	}); err != nil {
		logger.WithError(err).Warn("failed to enqueue order event")
		return
	}
	if e.metrics != nil {
		e.metrics.RecordOutboxEvent()
	}
}
