package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

type ledgerKey struct {
	orderID string
	kind    domain.LedgerKind
	bookID  string
}

// ledgerRepositoryInMemory хранит журнал побочных эффектов переходов.
type ledgerRepositoryInMemory struct {
	mu      sync.RWMutex
	entries map[ledgerKey]domain.LedgerEntry
}

// NewLedgerRepository создаёт in-memory журнал.
func NewLedgerRepository() domain.LedgerRepository {
	return &ledgerRepositoryInMemory{entries: make(map[ledgerKey]domain.LedgerEntry)}
}

func (r *ledgerRepositoryInMemory) Record(_ context.Context, entry domain.LedgerEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ledgerKey{orderID: entry.OrderID, kind: entry.Kind, bookID: entry.BookID}
	if _, exists := r.entries[key]; exists {
		return false, nil
	}
	r.entries[key] = entry
	return true, nil
}

func (r *ledgerRepositoryInMemory) Get(_ context.Context, orderID string, kind domain.LedgerKind, bookID string) (domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[ledgerKey{orderID: orderID, kind: kind, bookID: bookID}]
	if !ok {
		return domain.LedgerEntry{}, domain.ErrLedgerEntryNotFound
	}
	return entry, nil
}

func (r *ledgerRepositoryInMemory) ListByOrder(_ context.Context, orderID string) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.LedgerEntry, 0)
	for key, entry := range r.entries {
		if key.orderID == orderID {
			result = append(result, entry)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].RecordedAt.Equal(result[j].RecordedAt) {
			return result[i].RecordedAt.Before(result[j].RecordedAt)
		}
		if result[i].Kind != result[j].Kind {
			return result[i].Kind < result[j].Kind
		}
		return result[i].BookID < result[j].BookID
	})
	return result, nil
}

var _ domain.LedgerRepository = (*ledgerRepositoryInMemory)(nil)
