package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

type statusRepository struct {
	db *sql.DB
}

// NewStatusRepository создаёт хранилище графа статусов.
func NewStatusRepository(store *Store) domain.StatusRepository {
	return &statusRepository{db: store.DB()}
}

func (r *statusRepository) List(ctx context.Context) ([]domain.OrderStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, t.to_status_id
		FROM order_statuses s
		LEFT JOIN order_status_transitions t ON t.from_status_id = s.id
		ORDER BY s.id, t.to_status_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list order statuses: %w", err)
	}
	defer rows.Close()

	var statuses []domain.OrderStatus
	for rows.Next() {
		var (
			id   int
			name string
			next sql.NullInt32
		)
		if err := rows.Scan(&id, &name, &next); err != nil {
			return nil, fmt.Errorf("scan order status: %w", err)
		}
		if n := len(statuses); n == 0 || statuses[n-1].ID != domain.StatusID(id) {
			statuses = append(statuses, domain.OrderStatus{ID: domain.StatusID(id), Name: name})
		}
		if next.Valid {
			last := &statuses[len(statuses)-1]
			last.PossibleNextStatuses = append(last.PossibleNextStatuses, domain.StatusID(next.Int32))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order statuses: %w", err)
	}
	return statuses, nil
}

// Upsert заменяет статус вместе со списком переходов из него.
// Целевые статусы должны уже существовать.
func (r *statusRepository) Upsert(ctx context.Context, status domain.OrderStatus) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_statuses (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		`, int(status.ID), status.Name); err != nil {
			return fmt.Errorf("upsert order status: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM order_status_transitions WHERE from_status_id = $1`, int(status.ID)); err != nil {
			return fmt.Errorf("clear status transitions: %w", err)
		}
		for _, next := range status.PossibleNextStatuses {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_status_transitions (from_status_id, to_status_id) VALUES ($1, $2)
			`, int(status.ID), int(next)); err != nil {
				return fmt.Errorf("insert status transition %d -> %d: %w", status.ID, next, err)
			}
		}
		return nil
	})
}

var _ domain.StatusRepository = (*statusRepository)(nil)
