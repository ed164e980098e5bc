package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

type couponRepositoryInMemory struct {
	mu      sync.RWMutex
	coupons map[string]domain.Coupon
}

// NewCouponRepository создаёт in-memory справочник купонов.
func NewCouponRepository() domain.CouponRepository {
	return &couponRepositoryInMemory{coupons: make(map[string]domain.Coupon)}
}

func (r *couponRepositoryInMemory) Get(_ context.Context, code string) (domain.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.coupons[code]
	if !ok {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	return c, nil
}

func (r *couponRepositoryInMemory) GetMany(_ context.Context, codes []string) (map[string]domain.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]domain.Coupon, len(codes))
	for _, code := range codes {
		if c, ok := r.coupons[code]; ok {
			result[code] = c
		}
	}
	return result, nil
}

func (r *couponRepositoryInMemory) Upsert(_ context.Context, coupon domain.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.coupons[coupon.Code] = coupon
	return nil
}

func (r *couponRepositoryInMemory) IncrementUsage(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.coupons[code]
	if !ok {
		return domain.ErrCouponNotFound
	}
	c.Used++
	r.coupons[code] = c
	return nil
}

var _ domain.CouponRepository = (*couponRepositoryInMemory)(nil)
