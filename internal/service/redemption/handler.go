// Package redemption погашает купоны заказов, ушедших в отправку: читает события
// статусов из Kafka и увеличивает счётчики использования купонов.
package redemption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
	"github.com/vladislavdragonenkov/bookshop/internal/messaging/kafka"
)

// Handler погашает купоны по событию перехода заказа в sent.
// Каждый купон заказа учитывается один раз через журнал LedgerRepository.
type Handler struct {
	coupons domain.CouponRepository
	ledger  domain.LedgerRepository
	logger  *log.Entry
	now     func() time.Time
}

// NewHandler создаёт обработчик погашений.
func NewHandler(coupons domain.CouponRepository, ledger domain.LedgerRepository, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "coupon-redemption")
	}
	return &Handler{
		coupons: coupons,
		ledger:  ledger,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// HandleMessage — kafka.MessageHandler для топика событий заказов.
func (h *Handler) HandleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	_, event, err := kafka.ParseEnvelope(message.Value)
	if err != nil {
		// Битое сообщение повторять бессмысленно.
		h.logger.WithError(err).WithField("offset", message.Offset).Warn("skip malformed order event")
		return nil
	}
	return h.Handle(ctx, event)
}

// Handle погашает купоны, если событие описывает переход в sent.
func (h *Handler) Handle(ctx context.Context, event kafka.OrderEvent) error {
	if event.EventType != kafka.EventTypeOrderStatusChanged || domain.StatusID(event.StatusID) != domain.StatusSent {
		return nil
	}

	skip := make(map[string]bool, len(event.NeutralizedCoupons))
	for _, code := range event.NeutralizedCoupons {
		skip[code] = true
	}

	for _, code := range event.CouponCodes {
		if skip[code] {
			h.logger.WithFields(log.Fields{
				"order_id":    event.OrderID,
				"coupon_code": code,
			}).Debug("skip neutralized coupon")
			continue
		}
		_, err := h.ledger.Get(ctx, event.OrderID, domain.LedgerRedemption, code)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrLedgerEntryNotFound) {
			return fmt.Errorf("check redemption: %w", err)
		}
		if err := h.coupons.IncrementUsage(ctx, code); err != nil {
			return fmt.Errorf("redeem coupon %s for order %s: %w", code, event.OrderID, err)
		}
		if _, err := h.ledger.Record(ctx, domain.LedgerEntry{
			OrderID:    event.OrderID,
			Kind:       domain.LedgerRedemption,
			UserID:     event.UserID,
			BookID:     code,
			RecordedAt: h.now(),
		}); err != nil {
			return fmt.Errorf("record redemption: %w", err)
		}
		h.logger.WithFields(log.Fields{
			"order_id":    event.OrderID,
			"coupon_code": code,
		}).Info("coupon redeemed")
	}
	return nil
}
