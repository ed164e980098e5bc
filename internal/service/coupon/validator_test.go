package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
	"github.com/vladislavdragonenkov/bookshop/internal/storage/memory"
)

var now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	repo := memory.NewCouponRepository()
	for _, c := range []domain.Coupon{
		{Code: "SAVE10", Type: domain.CouponPercentage, Discount: decimal.NewFromInt(10), ValidUntil: now.Add(time.Hour), UsageLimit: -1},
		{Code: "EXPIRED", Type: domain.CouponFixed, Discount: decimal.NewFromInt(100), ValidUntil: now, UsageLimit: -1},
		{Code: "LIMIT", Type: domain.CouponFixed, Discount: decimal.NewFromInt(100), ValidUntil: now.Add(time.Hour), UsageLimit: 3, Used: 4},
		{Code: "EDGE", Type: domain.CouponFixed, Discount: decimal.NewFromInt(100), ValidUntil: now.Add(time.Hour), UsageLimit: 3, Used: 3},
	} {
		require.NoError(t, repo.Upsert(context.Background(), c))
	}
	return NewValidator(repo, nil)
}

func TestValidateForOrder(t *testing.T) {
	ctx := context.Background()
	v := newValidator(t)

	order := domain.NewOrder("o1", "u1", now)
	order.AddBook("b1", 1000)
	order.PartialCosts["SAVE10"] = -150

	cases := []struct {
		name string
		code string
		err  error
	}{
		{"empty code", "", domain.ErrInvalidCouponCode},
		{"reserved key", domain.CostShipping, domain.ErrInvalidCouponCode},
		{"unknown", "NOPE", domain.ErrCouponNotFound},
		{"expired at boundary", "EXPIRED", domain.ErrCouponExpired},
		{"over limit", "LIMIT", domain.ErrCouponLimitReached},
		{"already applied", "SAVE10", domain.ErrCouponAlreadyApplied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.ValidateForOrder(ctx, order, tc.code, now)
			require.ErrorIs(t, err, tc.err)
		})
	}

	c, err := v.ValidateForOrder(ctx, order, "EDGE", now)
	require.NoError(t, err)
	require.Equal(t, "EDGE", c.Code)
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	v := newValidator(t)

	order := domain.NewOrder("o1", "u1", now)
	found, err := v.Lookup(ctx, order)
	require.NoError(t, err)
	require.Empty(t, found)

	order.PartialCosts["SAVE10"] = 0
	order.PartialCosts["GONE"] = 0
	order.PartialCosts[domain.CostBooks] = 1000

	found, err = v.Lookup(ctx, order)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Contains(t, found, "SAVE10")
}
