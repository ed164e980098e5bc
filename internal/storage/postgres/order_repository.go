package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

const orderColumns = `id, user_id, status_id, partial_costs, total_cost, version, created_at, updated_at,
	sent_at, cancelled_at, returned_at, delivered_at, completed_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
// Единственность заказа new на пользователя дополнительно держит частичный уникальный индекс.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	costs, err := json.Marshal(order.PartialCosts)
	if err != nil {
		return fmt.Errorf("marshal partial costs: %w", err)
	}

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`,
			order.ID, order.UserID, int(order.StatusID), costs, order.TotalCost, order.Version,
			order.CreatedAt, order.UpdatedAt,
			order.SentAt, order.CancelledAt, order.ReturnedAt, order.DeliveredAt, order.CompletedAt,
		)
		if err != nil {
			return mapOrderWriteError(err)
		}
		return insertOrderBooks(ctx, tx, order)
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	if err := r.loadBooks(ctx, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return r.list(ctx, `WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
}

func (r *orderRepository) FindByStatus(ctx context.Context, userID string, status domain.StatusID) (domain.Order, error) {
	orders, err := r.list(ctx, `WHERE user_id = $1 AND status_id = $2 ORDER BY created_at DESC, id DESC LIMIT 1`, userID, int(status))
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return orders[0], nil
}

func (r *orderRepository) list(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		if err := r.loadBooks(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// Save перезаписывает состав и стоимость заказа, если версия совпадает.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	costs, err := json.Marshal(order.PartialCosts)
	if err != nil {
		return fmt.Errorf("marshal partial costs: %w", err)
	}

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET partial_costs = $1,
			    total_cost = $2,
			    updated_at = $3,
			    version = version + 1
			WHERE id = $4 AND version = $5
		`, costs, order.TotalCost, order.UpdatedAt, order.ID, order.Version)
		if err != nil {
			return mapOrderWriteError(err)
		}
		if err := r.checkUpdated(ctx, tx, res, order.ID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM order_books WHERE order_id = $1`, order.ID); err != nil {
			return fmt.Errorf("clear order books: %w", err)
		}
		return insertOrderBooks(ctx, tx, order)
	})
}

// SaveStatus записывает только статус и отметки времени.
func (r *orderRepository) SaveStatus(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status_id = $1,
			    updated_at = $2,
			    sent_at = $3,
			    cancelled_at = $4,
			    returned_at = $5,
			    delivered_at = $6,
			    completed_at = $7,
			    version = version + 1
			WHERE id = $8 AND version = $9
		`,
			int(order.StatusID), order.UpdatedAt,
			order.SentAt, order.CancelledAt, order.ReturnedAt, order.DeliveredAt, order.CompletedAt,
			order.ID, order.Version,
		)
		if err != nil {
			return mapOrderWriteError(err)
		}
		return r.checkUpdated(ctx, tx, res, order.ID)
	})
}

func (r *orderRepository) checkUpdated(ctx context.Context, tx *sql.Tx, res sql.Result, orderID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrOrderVersionConflict
}

func (r *orderRepository) loadBooks(ctx context.Context, order *domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT book_id, price_minor
		FROM order_books
		WHERE order_id = $1
		ORDER BY position ASC
	`, order.ID)
	if err != nil {
		return fmt.Errorf("load order books: %w", err)
	}
	defer rows.Close()

	order.BookIDs = []string{}
	order.BooksCost = map[string]int64{}
	for rows.Next() {
		var (
			bookID string
			price  int64
		)
		if err := rows.Scan(&bookID, &price); err != nil {
			return fmt.Errorf("scan order book: %w", err)
		}
		order.AddBook(bookID, price)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order books: %w", err)
	}
	return nil
}

func insertOrderBooks(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	for pos, bookID := range order.BookIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_books (order_id, book_id, price_minor, position)
			VALUES ($1,$2,$3,$4)
		`, order.ID, bookID, order.BooksCost[bookID], pos); err != nil {
			return fmt.Errorf("insert order book: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order    domain.Order
		statusID int
		costs    []byte
		stamps   [5]sql.NullTime
	)
	if err := row.Scan(
		&order.ID, &order.UserID, &statusID, &costs, &order.TotalCost, &order.Version,
		&order.CreatedAt, &order.UpdatedAt,
		&stamps[0], &stamps[1], &stamps[2], &stamps[3], &stamps[4],
	); err != nil {
		return domain.Order{}, err
	}
	order.StatusID = domain.StatusID(statusID)
	order.PartialCosts = map[string]int64{}
	if len(costs) > 0 {
		if err := json.Unmarshal(costs, &order.PartialCosts); err != nil {
			return domain.Order{}, fmt.Errorf("unmarshal partial costs: %w", err)
		}
	}
	order.SentAt = nullTime(stamps[0])
	order.CancelledAt = nullTime(stamps[1])
	order.ReturnedAt = nullTime(stamps[2])
	order.DeliveredAt = nullTime(stamps[3])
	order.CompletedAt = nullTime(stamps[4])
	return order, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// mapOrderWriteError переводит нарушения уникальности в доменные ошибки.
func mapOrderWriteError(err error) error {
	if !isUniqueViolation(err) {
		return fmt.Errorf("write order: %w", err)
	}
	if constraintName(err) == "ux_orders_single_new" {
		return domain.ErrActiveOrderExists
	}
	return domain.ErrOrderAlreadyExists
}

var _ domain.OrderRepository = (*orderRepository)(nil)
