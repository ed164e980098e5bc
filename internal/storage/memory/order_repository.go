package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderAlreadyExists
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[order.ID] = order.Clone()
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// ListByUser возвращает заказы пользователя от новых к старым.
func (r *orderRepositoryInMemory) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.items {
		if order.UserID != userID {
			continue
		}
		result = append(result, order.Clone())
	}
	sortNewestFirst(result)
	return result, nil
}

// FindByStatus возвращает самый свежий заказ пользователя в статусе status.
func (r *orderRepositoryInMemory) FindByStatus(ctx context.Context, userID string, status domain.StatusID) (domain.Order, error) {
	orders, err := r.ListByUser(ctx, userID)
	if err != nil {
		return domain.Order{}, err
	}
	for _, order := range orders {
		if order.StatusID == status {
			return order, nil
		}
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	stored := order.Clone()
	stored.Version++
	r.items[order.ID] = stored
	return nil
}

// SaveStatus обновляет только статус и отметки времени.
func (r *orderRepositoryInMemory) SaveStatus(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	current.StatusID = order.StatusID
	current.UpdatedAt = order.UpdatedAt
	stamps := order.Clone()
	current.SentAt = stamps.SentAt
	current.CancelledAt = stamps.CancelledAt
	current.ReturnedAt = stamps.ReturnedAt
	current.DeliveredAt = stamps.DeliveredAt
	current.CompletedAt = stamps.CompletedAt
	current.Version++
	r.items[order.ID] = current
	return nil
}

func sortNewestFirst(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
