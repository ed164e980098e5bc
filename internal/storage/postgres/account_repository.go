package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

const (
	accountBookOwned    = "owned"
	accountBookWishlist = "wishlist"
)

type accountRepository struct {
	db *sql.DB
}

// NewAccountRepository создаёт хранилище аккаунтов магазина.
func NewAccountRepository(store *Store) domain.AccountRepository {
	return &accountRepository{db: store.DB()}
}

func (r *accountRepository) Get(ctx context.Context, userID string) (domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	acc := domain.Account{UserID: userID}
	var role int
	err := r.db.QueryRowContext(ctx,
		`SELECT funds_minor, role_id FROM accounts WHERE user_id = $1`, userID,
	).Scan(&acc.Funds, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, userID)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("select account: %w", err)
	}
	acc.RoleID = domain.RoleID(role)

	rows, err := r.db.QueryContext(ctx, `
		SELECT book_id, kind FROM account_books
		WHERE user_id = $1
		ORDER BY added_at, book_id
	`, userID)
	if err != nil {
		return domain.Account{}, fmt.Errorf("select account books: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bookID, kind string
		if err := rows.Scan(&bookID, &kind); err != nil {
			return domain.Account{}, fmt.Errorf("scan account book: %w", err)
		}
		if kind == accountBookOwned {
			acc.OwnedBookIDs = append(acc.OwnedBookIDs, bookID)
		} else {
			acc.WishlistBookIDs = append(acc.WishlistBookIDs, bookID)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Account{}, fmt.Errorf("iterate account books: %w", err)
	}
	return acc, nil
}

// Upsert заменяет аккаунт вместе с библиотекой и списком желаний.
func (r *accountRepository) Upsert(ctx context.Context, acc domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (user_id, funds_minor, role_id) VALUES ($1,$2,$3)
			ON CONFLICT (user_id) DO UPDATE SET funds_minor = EXCLUDED.funds_minor, role_id = EXCLUDED.role_id
		`, acc.UserID, acc.Funds, int(acc.RoleID)); err != nil {
			return fmt.Errorf("upsert account: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM account_books WHERE user_id = $1`, acc.UserID); err != nil {
			return fmt.Errorf("clear account books: %w", err)
		}
		for kind, ids := range map[string][]string{
			accountBookOwned:    acc.OwnedBookIDs,
			accountBookWishlist: acc.WishlistBookIDs,
		} {
			for _, bookID := range ids {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO account_books (user_id, book_id, kind) VALUES ($1,$2,$3)
					ON CONFLICT DO NOTHING
				`, acc.UserID, bookID, kind); err != nil {
					return fmt.Errorf("insert account book: %w", err)
				}
			}
		}
		return nil
	})
}

func (r *accountRepository) AdjustFunds(ctx context.Context, userID string, delta int64) (domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET funds_minor = funds_minor + $2
		WHERE user_id = $1 AND funds_minor + $2 >= 0
	`, userID, delta)
	if err != nil {
		return domain.Account{}, fmt.Errorf("adjust funds: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Account{}, fmt.Errorf("rows affected: %w", err)
	}

	acc, err := r.Get(ctx, userID)
	if err != nil {
		return domain.Account{}, err
	}
	if n == 0 {
		return domain.Account{}, fmt.Errorf("%w: balance %d, requested %d", domain.ErrInsufficientFunds, acc.Funds, -delta)
	}
	return acc, nil
}

func (r *accountRepository) AddOwnedBook(ctx context.Context, userID, bookID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var added bool
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM accounts WHERE user_id = $1)`, userID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check account: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, userID)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO account_books (user_id, book_id, kind) VALUES ($1,$2,$3)
			ON CONFLICT DO NOTHING
		`, userID, bookID, accountBookOwned)
		if err != nil {
			return fmt.Errorf("insert owned book: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		added = n > 0

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM account_books WHERE user_id = $1 AND book_id = $2 AND kind = $3`,
			userID, bookID, accountBookWishlist); err != nil {
			return fmt.Errorf("remove from wishlist: %w", err)
		}
		return nil
	})
	return added, err
}

var _ domain.AccountRepository = (*accountRepository)(nil)
