package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

type ledgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository создаёт журнал побочных эффектов переходов.
func NewLedgerRepository(store *Store) domain.LedgerRepository {
	return &ledgerRepository{db: store.DB()}
}

func (r *ledgerRepository) Record(ctx context.Context, e domain.LedgerEntry) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (order_id, kind, book_id, user_id, amount_minor, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (order_id, kind, book_id) DO NOTHING
	`, e.OrderID, string(e.Kind), e.BookID, e.UserID, e.Amount, e.RecordedAt)
	if err != nil {
		return false, fmt.Errorf("record ledger entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *ledgerRepository) Get(ctx context.Context, orderID string, kind domain.LedgerKind, bookID string) (domain.LedgerEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	e, err := scanLedgerEntry(r.db.QueryRowContext(ctx, `
		SELECT order_id, kind, book_id, user_id, amount_minor, recorded_at
		FROM ledger_entries
		WHERE order_id = $1 AND kind = $2 AND book_id = $3
	`, orderID, string(kind), bookID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LedgerEntry{}, domain.ErrLedgerEntryNotFound
	}
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("select ledger entry: %w", err)
	}
	return e, nil
}

func (r *ledgerRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.LedgerEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, kind, book_id, user_id, amount_minor, recorded_at
		FROM ledger_entries
		WHERE order_id = $1
		ORDER BY recorded_at, kind, book_id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanLedgerEntry(row rowScanner) (domain.LedgerEntry, error) {
	var (
		e    domain.LedgerEntry
		kind string
	)
	if err := row.Scan(&e.OrderID, &kind, &e.BookID, &e.UserID, &e.Amount, &e.RecordedAt); err != nil {
		return domain.LedgerEntry{}, err
	}
	e.Kind = domain.LedgerKind(kind)
	e.RecordedAt = e.RecordedAt.UTC()
	return e, nil
}

var _ domain.LedgerRepository = (*ledgerRepository)(nil)
