package orders

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

// Bootstrap один раз за время жизни процесса загружает граф статусов и сверяет его
// с ожидаемым перечнем. Результат, в том числе ошибка, кэшируется.
func (e *Engine) Bootstrap(ctx context.Context) error {
	e.bootOnce.Do(func() {
		statuses, err := e.statuses.List(ctx)
		if err != nil {
			e.bootErr = fmt.Errorf("%w: load statuses: %v", domain.ErrStatusTableMismatch, err)
		} else {
			table := domain.NewStatusTable(statuses)
			if err := table.Verify(); err != nil {
				e.bootErr = err
			} else {
				e.table = table
			}
		}

		if e.bootErr != nil {
			e.logger.WithError(e.bootErr).Error("order status table verification failed")
			return
		}
		e.logger.WithField("statuses", len(e.table)).Info("order status table verified")
	})
	return e.bootErr
}

// statusTable возвращает проверенный граф или фатальную ошибку.
func (e *Engine) statusTable(ctx context.Context) (domain.StatusTable, error) {
	if err := e.Bootstrap(ctx); err != nil {
		return nil, err
	}
	return e.table, nil
}

// Statuses возвращает таблицу статусов в порядке id.
func (e *Engine) Statuses(ctx context.Context) ([]domain.OrderStatus, error) {
	table, err := e.statusTable(ctx)
	if err != nil {
		return nil, err
	}
	return table.Sorted(), nil
}
