package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт каталог книг и складских позиций.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	return &catalogRepository{db: store.DB()}
}

func (r *catalogRepository) GetItem(ctx context.Context, bookID string) (domain.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	item := domain.Item{BookID: bookID}
	err := r.db.QueryRowContext(ctx,
		`SELECT price_minor, quantity, inactive FROM items WHERE book_id = $1`, bookID,
	).Scan(&item.Price, &item.Quantity, &item.Inactive)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, bookID)
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("select item: %w", err)
	}
	return item, nil
}

func (r *catalogRepository) GetBook(ctx context.Context, bookID string) (domain.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	book := domain.Book{ID: bookID}
	err := r.db.QueryRowContext(ctx,
		`SELECT title, author FROM books WHERE id = $1`, bookID,
	).Scan(&book.Title, &book.Author)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Book{}, fmt.Errorf("%w: %s", domain.ErrBookNotFound, bookID)
	}
	if err != nil {
		return domain.Book{}, fmt.Errorf("select book: %w", err)
	}
	return book, nil
}

func (r *catalogRepository) UpsertBook(ctx context.Context, book domain.Book) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO books (id, title, author) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, author = EXCLUDED.author
	`, book.ID, book.Title, book.Author); err != nil {
		return fmt.Errorf("upsert book: %w", err)
	}
	return nil
}

func (r *catalogRepository) UpsertItem(ctx context.Context, item domain.Item) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO items (book_id, price_minor, quantity, inactive) VALUES ($1,$2,$3,$4)
		ON CONFLICT (book_id) DO UPDATE SET
			price_minor = EXCLUDED.price_minor,
			quantity = EXCLUDED.quantity,
			inactive = EXCLUDED.inactive
	`, item.BookID, item.Price, item.Quantity, item.Inactive); err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}

// AdjustStock меняет остаток одним условным UPDATE, поэтому параллельные списания не уводят его в минус.
func (r *catalogRepository) AdjustStock(ctx context.Context, bookID string, delta int) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE items SET quantity = quantity + $2
		WHERE book_id = $1 AND quantity + $2 >= 0
	`, bookID, delta)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.GetItem(ctx, bookID); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", domain.ErrOutOfStock, bookID)
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
