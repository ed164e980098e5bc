package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

// catalogRepositoryInMemory хранит книги и складские позиции.
type catalogRepositoryInMemory struct {
	mu    sync.RWMutex
	books map[string]domain.Book
	items map[string]domain.Item
}

// NewCatalogRepository создаёт in-memory каталог.
func NewCatalogRepository() domain.CatalogRepository {
	return &catalogRepositoryInMemory{
		books: make(map[string]domain.Book),
		items: make(map[string]domain.Item),
	}
}

func (r *catalogRepositoryInMemory) GetItem(_ context.Context, bookID string) (domain.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[bookID]
	if !ok {
		return domain.Item{}, domain.ErrItemNotFound
	}
	return item, nil
}

func (r *catalogRepositoryInMemory) GetBook(_ context.Context, bookID string) (domain.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	book, ok := r.books[bookID]
	if !ok {
		return domain.Book{}, domain.ErrBookNotFound
	}
	return book, nil
}

func (r *catalogRepositoryInMemory) UpsertBook(_ context.Context, book domain.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.books[book.ID] = book
	return nil
}

func (r *catalogRepositoryInMemory) UpsertItem(_ context.Context, item domain.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[item.BookID] = item
	return nil
}

// AdjustStock меняет остаток; при нехватке возвращает ErrOutOfStock и ничего не меняет.
func (r *catalogRepositoryInMemory) AdjustStock(_ context.Context, bookID string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[bookID]
	if !ok {
		return domain.ErrItemNotFound
	}
	if item.Quantity+delta < 0 {
		return fmt.Errorf("%w: %s has %d left", domain.ErrOutOfStock, bookID, item.Quantity)
	}
	item.Quantity += delta
	r.items[bookID] = item
	return nil
}

var _ domain.CatalogRepository = (*catalogRepositoryInMemory)(nil)
