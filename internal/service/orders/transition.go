package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
	"github.com/vladislavdragonenkov/bookshop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bookshop/internal/metrics"
)

// TransitionResult — итог перехода: новый статус и проставленная отметка времени.
type TransitionResult struct {
	OrderID  string
	StatusID domain.StatusID
	// StampField — имя поля отметки (sent_at, ...), пусто для статусов без отметки.
	StampField string
	StampedAt  *time.Time
	Order      domain.Order
}

// Transition переводит заказ покупателя в статусе new в статус target.
// Если orderID не пуст, он должен совпадать с этим заказом.
func (e *Engine) Transition(ctx context.Context, userID, orderID string, target domain.StatusID) (res TransitionResult, err error) {
	ctx, finish := e.startOp(ctx, "transition",
		attribute.String("user_id", userID),
		attribute.String("order_id", orderID),
		attribute.Int("target_status_id", int(target)))
	defer finish(&err)

	if _, err = e.statusTable(ctx); err != nil {
		return TransitionResult{}, err
	}
	owner, err := e.caller(ctx, userID)
	if err != nil {
		return TransitionResult{}, err
	}
	if target <= 0 {
		return TransitionResult{}, domain.ErrInvalidStatusID
	}

	unlock := e.locks.lock(userID)
	defer unlock()

	order, err := e.orders.FindByStatus(ctx, userID, domain.StatusNew)
	if err != nil {
		return TransitionResult{}, err
	}
	if orderID != "" && order.ID != orderID {
		return TransitionResult{}, domain.ErrOrderNotFound
	}

	return e.transition(ctx, owner, order, target, false, userID)
}

// AdminTransition переводит любой заказ по решению сотрудника. Администратор
// может обойти граф статусов, сотрудник ему следует. Для остальных ролей заказ
// считается ненайденным. Побочные эффекты применяются к аккаунту владельца заказа.
func (e *Engine) AdminTransition(ctx context.Context, staffID, orderID string, target domain.StatusID) (res TransitionResult, err error) {
	ctx, finish := e.startOp(ctx, "admin_transition",
		attribute.String("staff_id", staffID),
		attribute.String("order_id", orderID),
		attribute.Int("target_status_id", int(target)))
	defer finish(&err)

	if _, err = e.statusTable(ctx); err != nil {
		return TransitionResult{}, err
	}
	staff, err := e.caller(ctx, staffID)
	if err != nil {
		return TransitionResult{}, err
	}
	if !staff.RoleID.IsStaff() {
		return TransitionResult{}, domain.ErrOrderNotFound
	}
	if target <= 0 {
		return TransitionResult{}, domain.ErrInvalidStatusID
	}

	order, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return TransitionResult{}, err
	}

	unlock := e.locks.lock(order.UserID)
	defer unlock()

	// Перечитываем под блокировкой владельца.
	if order, err = e.orders.Get(ctx, orderID); err != nil {
		return TransitionResult{}, err
	}
	owner, err := e.accounts.Get(ctx, order.UserID)
	if err != nil {
		return TransitionResult{}, err
	}

	return e.transition(ctx, owner, order, target, staff.RoleID == domain.RoleAdmin, staffID)
}

// transition — общая проверка и применение перехода для обоих путей.
// Записывается только статус с отметкой времени.
func (e *Engine) transition(ctx context.Context, owner domain.Account, order domain.Order, target domain.StatusID, privileged bool, actorID string) (TransitionResult, error) {
	table, err := e.statusTable(ctx)
	if err != nil {
		return TransitionResult{}, err
	}
	if _, ok := table[target]; !ok {
		return TransitionResult{}, fmt.Errorf("%w: %d", domain.ErrStatusNotFound, target)
	}

	from := order.StatusID
	if from == target {
		return TransitionResult{}, fmt.Errorf("%w: order is already %s", domain.ErrTransitionNotAllowed, target.Name())
	}
	if !privileged && !table.CanTransition(from, target) {
		return TransitionResult{}, fmt.Errorf("%w: %s -> %s", domain.ErrTransitionNotAllowed, from.Name(), target.Name())
	}
	if target == domain.StatusNew {
		if err := e.ensureNoNewOrder(ctx, order.UserID); err != nil {
			return TransitionResult{}, err
		}
	}

	// Пока заказ в new, его стоимость ещё может измениться.
	if from == domain.StatusNew {
		if order, err = e.refreshCosts(ctx, order); err != nil {
			return TransitionResult{}, err
		}
	}

	if err := e.checkTarget(ctx, owner, order, target); err != nil {
		return TransitionResult{}, err
	}

	if err := e.runHooks(ctx, owner, order, from, target); err != nil {
		return TransitionResult{}, err
	}

	now := e.now()
	updated := order.Clone()
	updated.StatusID = target
	updated.UpdatedAt = now
	field := updated.Stamp(target, now)

	if err := e.orders.SaveStatus(ctx, updated); err != nil {
		e.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"from":     from.Name(),
			"to":       target.Name(),
		}).WithError(err).Error("failed to persist order status after hooks")
		return TransitionResult{}, err
	}
	updated.Version++

	if e.metrics != nil {
		e.metrics.RecordTransition(from.Name(), target.Name(), privileged)
	}
	e.record(ctx, change{
		eventType: kafka.EventTypeOrderStatusChanged,
		order:     updated,
		from:      from,
		actorID:   actorID,
		reason:    fmt.Sprintf("%s -> %s", from.Name(), target.Name()),
		metadata:  map[string]interface{}{"privileged": privileged},
	})

	e.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"actor_id":   actorID,
		"from":       from.Name(),
		"to":         target.Name(),
		"privileged": privileged,
	}).Info("order status changed")

	return TransitionResult{
		OrderID:    updated.ID,
		StatusID:   target,
		StampField: field,
		StampedAt:  updated.StampFor(target),
		Order:      updated,
	}, nil
}

// refreshCosts пересчитывает стоимость заказа в new и сохраняет её, если итог изменился.
func (e *Engine) refreshCosts(ctx context.Context, order domain.Order) (domain.Order, error) {
	fresh, err := e.recompute(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}
	if fresh.TotalCost == order.TotalCost && sameCosts(fresh.PartialCosts, order.PartialCosts) {
		return order, nil
	}
	fresh.UpdatedAt = e.now()
	if err := e.orders.Save(ctx, fresh); err != nil {
		return domain.Order{}, err
	}
	fresh.Version++
	return fresh, nil
}

func sameCosts(a, b map[string]int64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// checkTarget проверяет условия, которых требует целевой статус.
func (e *Engine) checkTarget(ctx context.Context, owner domain.Account, order domain.Order, target domain.StatusID) error {
	switch target {
	case domain.StatusSent:
		// Повторная отправка (pending -> sent) уже оплачена.
		if order.SentAt != nil {
			return nil
		}
		if len(order.BookIDs) == 0 {
			return domain.ErrEmptyOrder
		}
		if owner.Funds < order.TotalCost {
			return fmt.Errorf("%w: need %d, have %d", domain.ErrInsufficientFunds, order.TotalCost, owner.Funds)
		}
		return e.checkBooks(ctx, order, true, func(item domain.Item) bool { return item.Available() })
	case domain.StatusDelivered:
		return e.checkBooks(ctx, order, false, func(item domain.Item) bool { return !item.Inactive })
	default:
		return nil
	}
}

// checkBooks собирает названия книг заказа, позиции которых не проходят ok.
// При missingUnavailable книга без складской позиции попадает в список недоступных,
// иначе отсутствие позиции возвращается как NotFound.
func (e *Engine) checkBooks(ctx context.Context, order domain.Order, missingUnavailable bool, ok func(domain.Item) bool) error {
	var titles []string
	for _, bookID := range order.BookIDs {
		book, err := e.catalog.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		item, err := e.catalog.GetItem(ctx, bookID)
		if err != nil && (!missingUnavailable || !isNotFound(err)) {
			return err
		}
		if err != nil || !ok(item) {
			titles = append(titles, book.Title)
		}
	}
	if len(titles) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrBooksUnavailable, strings.Join(titles, ", "))
	}
	return nil
}

// runHooks вызывает побочные эффекты перехода до записи статуса.
func (e *Engine) runHooks(ctx context.Context, owner domain.Account, order domain.Order, from, target domain.StatusID) error {
	if e.hooks == nil {
		return nil
	}
	switch target {
	case domain.StatusSent:
		return e.observeHook("register_sent_order", e.hooks.RegisterSentOrder(ctx, owner, order, from, target))
	case domain.StatusReturned:
		return e.observeHook("register_order_return", e.hooks.RegisterOrderReturn(ctx, owner, order, from, target))
	case domain.StatusDelivered:
		for _, bookID := range order.BookIDs {
			if err := e.observeHook("register_book_on_account", e.hooks.RegisterBookOnAccount(ctx, owner, order.ID, bookID)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) observeHook(hook string, err error) error {
	if err != nil && resultOf(err) == metrics.ResultError {
		e.logger.WithField("hook", hook).WithError(err).Error("order hook failed")
	}
	return err
}
