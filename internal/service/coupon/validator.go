// Package coupon проверяет, можно ли применить купон к заказу.
package coupon

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

// Validator проверяет срок действия, лимит погашений и повторное применение купона.
type Validator struct {
	coupons domain.CouponRepository
	logger  *log.Entry
}

// NewValidator создаёт валидатор поверх справочника купонов.
func NewValidator(coupons domain.CouponRepository, logger *log.Entry) *Validator {
	if logger == nil {
		logger = log.New().WithField("component", "coupon-validator")
	}
	return &Validator{coupons: coupons, logger: logger}
}

// Check проверяет сам купон без привязки к заказу.
func Check(c domain.Coupon, now time.Time) error {
	if c.Expired(now) {
		return fmt.Errorf("%w: %s valid until %s", domain.ErrCouponExpired, c.Code, c.ValidUntil.UTC().Format(time.RFC3339))
	}
	if c.LimitExceeded() {
		return fmt.Errorf("%w: %s used %d of %d", domain.ErrCouponLimitReached, c.Code, c.Used, c.UsageLimit)
	}
	return nil
}

// ValidateForOrder находит купон и проверяет, что его можно применить к order.
func (v *Validator) ValidateForOrder(ctx context.Context, order domain.Order, code string, now time.Time) (domain.Coupon, error) {
	if code == "" || !domain.IsCouponCostKey(code) {
		return domain.Coupon{}, fmt.Errorf("%w: %q", domain.ErrInvalidCouponCode, code)
	}

	c, err := v.coupons.Get(ctx, code)
	if err != nil {
		return domain.Coupon{}, err
	}
	if err := Check(c, now); err != nil {
		v.logger.WithFields(log.Fields{
			"order_id":    order.ID,
			"coupon_code": code,
		}).WithError(err).Debug("coupon rejected")
		return domain.Coupon{}, err
	}
	if order.HasCoupon(code) {
		return domain.Coupon{}, fmt.Errorf("%w: %s", domain.ErrCouponAlreadyApplied, code)
	}
	return c, nil
}

// Lookup загружает купоны, применённые к заказу, для пересчёта стоимости.
func (v *Validator) Lookup(ctx context.Context, order domain.Order) (map[string]domain.Coupon, error) {
	codes := order.CouponCodes()
	if len(codes) == 0 {
		return map[string]domain.Coupon{}, nil
	}
	return v.coupons.GetMany(ctx, codes)
}
