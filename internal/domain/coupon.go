package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CouponType определяет способ расчёта скидки.
type CouponType string

const (
	// CouponPercentage — скидка в процентах от суммы заказа до скидок.
	CouponPercentage CouponType = "percentage"
	// CouponFixed — фиксированная скидка в минимальных денежных единицах.
	CouponFixed CouponType = "fixed"
)

// Valid проверяет, что тип купона поддерживается.
func (t CouponType) Valid() bool {
	return t == CouponPercentage || t == CouponFixed
}

// Coupon описывает правило скидки. Счётчик Used меняет внешний сервис при погашении.
type Coupon struct {
	Code       string
	Type       CouponType
	Discount   decimal.Decimal
	ValidUntil time.Time
	// UsageLimit < 0 означает отсутствие лимита.
	UsageLimit int
	Used       int
}

// Expired сообщает, что срок действия купона истёк к моменту now.
func (c Coupon) Expired(now time.Time) bool {
	return !c.ValidUntil.After(now)
}

// LimitExceeded сообщает, что число погашений превысило лимит.
func (c Coupon) LimitExceeded() bool {
	return c.UsageLimit >= 0 && c.Used > c.UsageLimit
}
