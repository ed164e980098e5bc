// Package pricing пересчитывает стоимость заказа: доставку, сумму по книгам и скидки купонов.
package pricing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

const (
	// BaseShipping — базовая стоимость доставки непустого заказа.
	BaseShipping int64 = 500
	// ShippingTierStep — надбавка за каждые полные пять книг.
	ShippingTierStep int64 = 250
	// ShippingTierSize — число книг в одном тарифном шаге.
	ShippingTierSize = 5
)

var hundred = decimal.NewFromInt(100)

// Result — итог пересчёта.
type Result struct {
	Order domain.Order
	// Neutralized — коды купонов, которые на момент расчёта недействительны и обнулены.
	Neutralized []string
}

// Shipping возвращает стоимость доставки для заказа из n книг.
func Shipping(n int) int64 {
	if n <= 0 {
		return 0
	}
	if n < ShippingTierSize {
		return BaseShipping
	}
	return BaseShipping + ShippingTierStep*int64(n/ShippingTierSize)
}

// ComputeCosts полностью пересчитывает PartialCosts и TotalCost по BooksCost и
// применённым купонам. Остатки и баланс не читает. Исходный заказ не меняется.
func ComputeCosts(order domain.Order, coupons map[string]domain.Coupon, now time.Time) Result {
	out := order.Clone()
	out.TotalCost = 0

	if len(out.BookIDs) == 0 {
		out.PartialCosts = map[string]int64{}
		return Result{Order: out}
	}

	codes := out.CouponCodes()
	sort.Strings(codes)

	partial := make(map[string]int64, len(codes)+2)
	partial[domain.CostShipping] = Shipping(len(out.BookIDs))

	var books int64
	for _, id := range out.BookIDs {
		books += out.BooksCost[id]
	}
	partial[domain.CostBooks] = books

	// Процентные купоны считаются от суммы до скидок.
	base := decimal.NewFromInt(books + partial[domain.CostShipping])

	var neutralized []string
	for _, code := range codes {
		c, ok := coupons[code]
		if !ok || c.Expired(now) || c.LimitExceeded() {
			partial[code] = 0
			neutralized = append(neutralized, code)
			continue
		}
		partial[code] = -Discount(c, base)
	}

	var total int64
	for _, v := range partial {
		total += v
	}
	if total < 0 {
		total = 0
	}

	out.PartialCosts = partial
	out.TotalCost = total
	return Result{Order: out, Neutralized: neutralized}
}

// Discount возвращает абсолютную величину скидки купона от базы base.
// Процент округляется до целых, половина от нуля.
func Discount(c domain.Coupon, base decimal.Decimal) int64 {
	var value decimal.Decimal
	switch c.Type {
	case domain.CouponPercentage:
		value = base.Mul(c.Discount).Div(hundred)
	default:
		value = c.Discount
	}
	return value.Abs().Round(0).IntPart()
}
