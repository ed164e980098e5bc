package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

type statusRepositoryInMemory struct {
	mu       sync.RWMutex
	statuses map[domain.StatusID]domain.OrderStatus
}

// NewStatusRepository создаёт пустую таблицу статусов; засевается через Upsert.
func NewStatusRepository() domain.StatusRepository {
	return &statusRepositoryInMemory{statuses: make(map[domain.StatusID]domain.OrderStatus)}
}

func (r *statusRepositoryInMemory) List(_ context.Context) ([]domain.OrderStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.OrderStatus, 0, len(r.statuses))
	for _, st := range r.statuses {
		result = append(result, cloneStatus(st))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *statusRepositoryInMemory) Upsert(_ context.Context, status domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.statuses[status.ID] = cloneStatus(status)
	return nil
}

func cloneStatus(st domain.OrderStatus) domain.OrderStatus {
	st.PossibleNextStatuses = append([]domain.StatusID(nil), st.PossibleNextStatuses...)
	return st
}

var _ domain.StatusRepository = (*statusRepositoryInMemory)(nil)
