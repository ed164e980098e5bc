// Package ledger реализует побочные эффекты переходов заказа на стороне аккаунта:
// списание и возврат средств, движение остатков и пополнение библиотеки.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
	"github.com/vladislavdragonenkov/bookshop/internal/metrics"
)

const (
	hookSentOrder     = "register_sent_order"
	hookOrderReturn   = "register_order_return"
	hookBookOnAccount = "register_book_on_account"
)

// Hooks — реализация domain.OrderHooks поверх журнала LedgerRepository.
// Повторный вызов для того же заказа ничего не меняет.
type Hooks struct {
	accounts domain.AccountRepository
	catalog  domain.CatalogRepository
	ledger   domain.LedgerRepository
	logger   *log.Entry
	metrics  *metrics.OrderMetrics
	now      func() time.Time
}

// Option настраивает Hooks.
type Option func(*Hooks)

// WithMetrics включает учёт вызовов хуков.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(h *Hooks) { h.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(h *Hooks) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHooks создаёт хуки аккаунта.
func NewHooks(accounts domain.AccountRepository, catalog domain.CatalogRepository, ledger domain.LedgerRepository, logger *log.Entry, opts ...Option) *Hooks {
	if logger == nil {
		logger = log.New().WithField("component", "ledger")
	}
	h := &Hooks{
		accounts: accounts,
		catalog:  catalog,
		ledger:   ledger,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterSentOrder списывает TotalCost со счёта и уменьшает остатки по книгам заказа.
// При ошибке на любом шаге уже выполненные шаги откатываются.
func (h *Hooks) RegisterSentOrder(ctx context.Context, account domain.Account, order domain.Order, from, to domain.StatusID) (err error) {
	defer func() { h.observe(hookSentOrder, err) }()

	done, err := h.alreadyRecorded(ctx, order.ID, domain.LedgerDebit, "")
	if err != nil || done {
		return err
	}

	if _, err = h.accounts.AdjustFunds(ctx, account.UserID, -order.TotalCost); err != nil {
		return fmt.Errorf("debit order %s: %w", order.ID, err)
	}

	decremented := make([]string, 0, len(order.BookIDs))
	for _, bookID := range order.BookIDs {
		if err = h.catalog.AdjustStock(ctx, bookID, -1); err != nil {
			h.rollbackSent(ctx, account.UserID, order, decremented)
			return fmt.Errorf("decrement stock of %s: %w", bookID, err)
		}
		decremented = append(decremented, bookID)
	}

	if _, err = h.ledger.Record(ctx, domain.LedgerEntry{
		OrderID:    order.ID,
		Kind:       domain.LedgerDebit,
		UserID:     account.UserID,
		Amount:     order.TotalCost,
		RecordedAt: h.now(),
	}); err != nil {
		h.rollbackSent(ctx, account.UserID, order, decremented)
		return fmt.Errorf("record debit: %w", err)
	}

	h.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  account.UserID,
		"amount":   order.TotalCost,
		"from":     from.String(),
		"to":       to.String(),
	}).Info("order debited")
	return nil
}

// RegisterOrderReturn возвращает ранее списанную сумму и остатки.
// Если списания не было, возвращать нечего.
func (h *Hooks) RegisterOrderReturn(ctx context.Context, account domain.Account, order domain.Order, from, to domain.StatusID) (err error) {
	defer func() { h.observe(hookOrderReturn, err) }()

	done, err := h.alreadyRecorded(ctx, order.ID, domain.LedgerRefund, "")
	if err != nil || done {
		return err
	}

	debit, err := h.ledger.Get(ctx, order.ID, domain.LedgerDebit, "")
	if errors.Is(err, domain.ErrLedgerEntryNotFound) {
		h.logger.WithField("order_id", order.ID).Debug("nothing to refund, order was never debited")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load debit: %w", err)
	}

	if _, err = h.accounts.AdjustFunds(ctx, debit.UserID, debit.Amount); err != nil {
		return fmt.Errorf("refund order %s: %w", order.ID, err)
	}
	for _, bookID := range order.BookIDs {
		if stockErr := h.catalog.AdjustStock(ctx, bookID, 1); stockErr != nil {
			// Позиция могла исчезнуть из каталога: деньги уже возвращены, остаток не критичен.
			h.logger.WithError(stockErr).WithFields(log.Fields{
				"order_id": order.ID,
				"book_id":  bookID,
			}).Warn("restock failed")
		}
	}

	if _, err = h.ledger.Record(ctx, domain.LedgerEntry{
		OrderID:    order.ID,
		Kind:       domain.LedgerRefund,
		UserID:     debit.UserID,
		Amount:     debit.Amount,
		RecordedAt: h.now(),
	}); err != nil {
		return fmt.Errorf("record refund: %w", err)
	}

	h.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  debit.UserID,
		"amount":   debit.Amount,
		"from":     from.String(),
		"to":       to.String(),
	}).Info("order refunded")
	return nil
}

// RegisterBookOnAccount добавляет книгу в библиотеку владельца заказа.
func (h *Hooks) RegisterBookOnAccount(ctx context.Context, account domain.Account, orderID, bookID string) (err error) {
	defer func() { h.observe(hookBookOnAccount, err) }()

	done, err := h.alreadyRecorded(ctx, orderID, domain.LedgerOwnership, bookID)
	if err != nil || done {
		return err
	}

	if _, err = h.accounts.AddOwnedBook(ctx, account.UserID, bookID); err != nil {
		return fmt.Errorf("add %s to library: %w", bookID, err)
	}
	if _, err = h.ledger.Record(ctx, domain.LedgerEntry{
		OrderID:    orderID,
		Kind:       domain.LedgerOwnership,
		UserID:     account.UserID,
		BookID:     bookID,
		RecordedAt: h.now(),
	}); err != nil {
		return fmt.Errorf("record ownership: %w", err)
	}
	return nil
}

func (h *Hooks) alreadyRecorded(ctx context.Context, orderID string, kind domain.LedgerKind, bookID string) (bool, error) {
	_, err := h.ledger.Get(ctx, orderID, kind, bookID)
	switch {
	case err == nil:
		h.logger.WithFields(log.Fields{
			"order_id": orderID,
			"kind":     kind,
			"book_id":  bookID,
		}).Debug("ledger entry exists, skipping")
		return true, nil
	case errors.Is(err, domain.ErrLedgerEntryNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("check ledger: %w", err)
	}
}

func (h *Hooks) rollbackSent(ctx context.Context, userID string, order domain.Order, decremented []string) {
	for _, bookID := range decremented {
		if err := h.catalog.AdjustStock(ctx, bookID, 1); err != nil {
			h.logger.WithError(err).WithField("book_id", bookID).Error("rollback stock failed")
		}
	}
	if _, err := h.accounts.AdjustFunds(ctx, userID, order.TotalCost); err != nil {
		h.logger.WithError(err).WithField("order_id", order.ID).Error("rollback debit failed")
	}
}

func (h *Hooks) observe(hook string, err error) {
	if h.metrics == nil {
		return
	}
	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError
	}
	h.metrics.RecordHookCall(hook, result)
}

var _ domain.OrderHooks = (*Hooks)(nil)
