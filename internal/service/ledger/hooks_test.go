package ledger

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
	"github.com/vladislavdragonenkov/bookshop/internal/metrics"
	"github.com/vladislavdragonenkov/bookshop/internal/storage/memory"
)

type fixture struct {
	accounts domain.AccountRepository
	catalog  domain.CatalogRepository
	ledger   domain.LedgerRepository
	hooks    *Hooks
	account  domain.Account
	order    domain.Order
}

func newFixture(t *testing.T, funds int64) fixture {
	t.Helper()
	ctx := context.Background()

	f := fixture{
		accounts: memory.NewAccountRepository(),
		catalog:  memory.NewCatalogRepository(),
		ledger:   memory.NewLedgerRepository(),
	}
	f.hooks = NewHooks(f.accounts, f.catalog, f.ledger, nil, WithMetrics(metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())))

	f.account = domain.Account{UserID: "u1", Funds: funds, RoleID: domain.RoleCustomer, WishlistBookIDs: []string{"b2"}}
	require.NoError(t, f.accounts.Upsert(ctx, f.account))
	require.NoError(t, f.catalog.UpsertItem(ctx, domain.Item{BookID: "b1", Price: 1000, Quantity: 3}))
	require.NoError(t, f.catalog.UpsertItem(ctx, domain.Item{BookID: "b2", Price: 2000, Quantity: 1}))

	f.order = domain.NewOrder("o1", "u1", f.hooks.now())
	f.order.AddBook("b1", 1000)
	f.order.AddBook("b2", 2000)
	f.order.TotalCost = 3500
	return f
}

func (f fixture) funds(t *testing.T) int64 {
	acc, err := f.accounts.Get(context.Background(), "u1")
	require.NoError(t, err)
	return acc.Funds
}

func (f fixture) stock(t *testing.T, bookID string) int {
	item, err := f.catalog.GetItem(context.Background(), bookID)
	require.NoError(t, err)
	return item.Quantity
}

func TestRegisterSentOrder_DebitsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5000)

	require.NoError(t, f.hooks.RegisterSentOrder(ctx, f.account, f.order, domain.StatusNew, domain.StatusSent))
	require.NoError(t, f.hooks.RegisterSentOrder(ctx, f.account, f.order, domain.StatusNew, domain.StatusSent))

	require.Equal(t, int64(1500), f.funds(t))
	require.Equal(t, 2, f.stock(t, "b1"))
	require.Equal(t, 0, f.stock(t, "b2"))

	entry, err := f.ledger.Get(ctx, "o1", domain.LedgerDebit, "")
	require.NoError(t, err)
	require.Equal(t, int64(3500), entry.Amount)
}

func TestRegisterSentOrder_RollsBackOnStockFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5000)
	require.NoError(t, f.catalog.UpsertItem(ctx, domain.Item{BookID: "b2", Price: 2000, Quantity: 0}))

	err := f.hooks.RegisterSentOrder(ctx, f.account, f.order, domain.StatusNew, domain.StatusSent)
	require.ErrorIs(t, err, domain.ErrOutOfStock)

	require.Equal(t, int64(5000), f.funds(t))
	require.Equal(t, 3, f.stock(t, "b1"))
	_, err = f.ledger.Get(ctx, "o1", domain.LedgerDebit, "")
	require.ErrorIs(t, err, domain.ErrLedgerEntryNotFound)
}

func TestRegisterSentOrder_InsufficientFunds(t *testing.T) {
	f := newFixture(t, 100)

	err := f.hooks.RegisterSentOrder(context.Background(), f.account, f.order, domain.StatusNew, domain.StatusSent)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.Equal(t, 3, f.stock(t, "b1"))
}

func TestRegisterOrderReturn_RefundsRecordedDebit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5000)
	require.NoError(t, f.hooks.RegisterSentOrder(ctx, f.account, f.order, domain.StatusNew, domain.StatusSent))

	// Итог заказа после списания не влияет на сумму возврата.
	changed := f.order.Clone()
	changed.TotalCost = 1
	require.NoError(t, f.hooks.RegisterOrderReturn(ctx, f.account, changed, domain.StatusSent, domain.StatusReturned))
	require.NoError(t, f.hooks.RegisterOrderReturn(ctx, f.account, changed, domain.StatusSent, domain.StatusReturned))

	require.Equal(t, int64(5000), f.funds(t))
	require.Equal(t, 3, f.stock(t, "b1"))
	require.Equal(t, 1, f.stock(t, "b2"))
}

func TestRegisterOrderReturn_WithoutDebitIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5000)

	require.NoError(t, f.hooks.RegisterOrderReturn(ctx, f.account, f.order, domain.StatusNew, domain.StatusReturned))
	require.Equal(t, int64(5000), f.funds(t))
	_, err := f.ledger.Get(ctx, "o1", domain.LedgerRefund, "")
	require.ErrorIs(t, err, domain.ErrLedgerEntryNotFound)
}

func TestRegisterBookOnAccount_Once(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5000)

	require.NoError(t, f.hooks.RegisterBookOnAccount(ctx, f.account, "o1", "b2"))
	require.NoError(t, f.hooks.RegisterBookOnAccount(ctx, f.account, "o1", "b2"))

	acc, err := f.accounts.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"b2"}, acc.OwnedBookIDs)
	require.Empty(t, acc.WishlistBookIDs)

	entries, err := f.ledger.ListByOrder(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
