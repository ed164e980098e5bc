package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

type couponRepository struct {
	db *sql.DB
}

// NewCouponRepository создаёт справочник купонов.
func NewCouponRepository(store *Store) domain.CouponRepository {
	return &couponRepository{db: store.DB()}
}

const couponColumns = `code, type, discount, valid_until, usage_limit, used`

func (r *couponRepository) Get(ctx context.Context, code string) (domain.Coupon, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	c, err := scanCoupon(r.db.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Coupon{}, fmt.Errorf("%w: %s", domain.ErrCouponNotFound, code)
	}
	if err != nil {
		return domain.Coupon{}, fmt.Errorf("select coupon: %w", err)
	}
	return c, nil
}

func (r *couponRepository) GetMany(ctx context.Context, codes []string) (map[string]domain.Coupon, error) {
	result := make(map[string]domain.Coupon, len(codes))
	if len(codes) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = ANY($1)`, codes)
	if err != nil {
		return nil, fmt.Errorf("select coupons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		result[c.Code] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coupons: %w", err)
	}
	return result, nil
}

func (r *couponRepository) Upsert(ctx context.Context, c domain.Coupon) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO coupons (`+couponColumns+`) VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (code) DO UPDATE SET
			type = EXCLUDED.type,
			discount = EXCLUDED.discount,
			valid_until = EXCLUDED.valid_until,
			usage_limit = EXCLUDED.usage_limit,
			used = EXCLUDED.used
	`, c.Code, string(c.Type), c.Discount.String(), c.ValidUntil, c.UsageLimit, c.Used); err != nil {
		return fmt.Errorf("upsert coupon: %w", err)
	}
	return nil
}

func (r *couponRepository) IncrementUsage(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE coupons SET used = used + 1 WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrCouponNotFound, code)
	}
	return nil
}

func scanCoupon(row rowScanner) (domain.Coupon, error) {
	var (
		c        domain.Coupon
		kind     string
		discount decimal.Decimal
	)
	if err := row.Scan(&c.Code, &kind, &discount, &c.ValidUntil, &c.UsageLimit, &c.Used); err != nil {
		return domain.Coupon{}, err
	}
	c.Type = domain.CouponType(kind)
	c.Discount = discount
	c.ValidUntil = c.ValidUntil.UTC()
	return c, nil
}

var _ domain.CouponRepository = (*couponRepository)(nil)
