package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

func TestStatusRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStoreForIntegrationTest(t)

	statuses, err := NewStatusRepository(store).List(ctx)
	require.NoError(t, err)
	require.NoError(t, domain.NewStatusTable(statuses).Verify())
}

func TestCatalogRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(openStoreForIntegrationTest(t))

	require.NoError(t, repo.UpsertBook(ctx, domain.Book{ID: "b1", Title: "Dune", Author: "Herbert"}))
	require.NoError(t, repo.UpsertItem(ctx, domain.Item{BookID: "b1", Price: 2500, Quantity: 1}))

	book, err := repo.GetBook(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, "Dune", book.Title)

	require.NoError(t, repo.AdjustStock(ctx, "b1", -1))
	require.ErrorIs(t, repo.AdjustStock(ctx, "b1", -1), domain.ErrOutOfStock)
	require.ErrorIs(t, repo.AdjustStock(ctx, "nope", 1), domain.ErrItemNotFound)

	item, err := repo.GetItem(ctx, "b1")
	require.NoError(t, err)
	require.Zero(t, item.Quantity)

	_, err = repo.GetBook(ctx, "nope")
	require.ErrorIs(t, err, domain.ErrBookNotFound)
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(openStoreForIntegrationTest(t))

	require.NoError(t, repo.Upsert(ctx, domain.Account{
		UserID: "u1", Funds: 1000, RoleID: domain.RoleCustomer, WishlistBookIDs: []string{"b1"},
	}))

	acc, err := repo.AdjustFunds(ctx, "u1", -400)
	require.NoError(t, err)
	require.Equal(t, int64(600), acc.Funds)

	_, err = repo.AdjustFunds(ctx, "u1", -601)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	added, err := repo.AddOwnedBook(ctx, "u1", "b1")
	require.NoError(t, err)
	require.True(t, added)
	added, err = repo.AddOwnedBook(ctx, "u1", "b1")
	require.NoError(t, err)
	require.False(t, added)

	acc, err = repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"b1"}, acc.OwnedBookIDs)
	require.Empty(t, acc.WishlistBookIDs)

	_, err = repo.Get(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = repo.AddOwnedBook(ctx, "ghost", "b1")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestCouponRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCouponRepository(openStoreForIntegrationTest(t))

	validUntil := time.Now().UTC().Add(time.Hour).Round(time.Microsecond)
	require.NoError(t, repo.Upsert(ctx, domain.Coupon{
		Code: "SAVE10", Type: domain.CouponPercentage, Discount: decimal.RequireFromString("12.5"),
		ValidUntil: validUntil, UsageLimit: -1,
	}))

	c, err := repo.Get(ctx, "SAVE10")
	require.NoError(t, err)
	require.True(t, c.Discount.Equal(decimal.RequireFromString("12.5")))
	require.True(t, c.ValidUntil.Equal(validUntil))

	require.NoError(t, repo.IncrementUsage(ctx, "SAVE10"))
	many, err := repo.GetMany(ctx, []string{"SAVE10", "GONE"})
	require.NoError(t, err)
	require.Len(t, many, 1)
	require.Equal(t, 1, many["SAVE10"].Used)

	require.ErrorIs(t, repo.IncrementUsage(ctx, "GONE"), domain.ErrCouponNotFound)
	_, err = repo.Get(ctx, "GONE")
	require.ErrorIs(t, err, domain.ErrCouponNotFound)
}

func TestLedgerRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository(openStoreForIntegrationTest(t))

	entry := domain.LedgerEntry{OrderID: "o1", Kind: domain.LedgerDebit, UserID: "u1", Amount: 5750, RecordedAt: time.Now().UTC()}
	created, err := repo.Record(ctx, entry)
	require.NoError(t, err)
	require.True(t, created)
	created, err = repo.Record(ctx, entry)
	require.NoError(t, err)
	require.False(t, created)

	got, err := repo.Get(ctx, "o1", domain.LedgerDebit, "")
	require.NoError(t, err)
	require.Equal(t, int64(5750), got.Amount)

	_, err = repo.Get(ctx, "o1", domain.LedgerRefund, "")
	require.ErrorIs(t, err, domain.ErrLedgerEntryNotFound)

	list, err := repo.ListByOrder(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestTimelineRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewTimelineRepository(openStoreForIntegrationTest(t))

	base := time.Now().UTC()
	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "o1", Type: domain.TimelineCreated, ActorID: "u1", Occurred: base}))
	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "o1", Type: domain.TimelineStatusChanged, Reason: "new -> sent", Occurred: base.Add(time.Second)}))
	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "o2", Type: domain.TimelineCreated}))

	events, err := repo.List(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.TimelineCreated, events[0].Type)
	require.Equal(t, "u1", events[0].ActorID)
	require.Equal(t, "new -> sent", events[1].Reason)
}

func TestOutboxRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository(openStoreForIntegrationTest(t))

	base := time.Now().UTC().Add(-time.Minute)
	first, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order", AggregateID: "o1", EventType: "bookshop.order.created",
		Payload: []byte(`{"order_id":"o1"}`), CreatedAt: base,
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	_, err = repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order", AggregateID: "o1", EventType: "bookshop.order.item_added",
		Payload: []byte(`{"order_id":"o1"}`), CreatedAt: base.Add(time.Second),
	})
	require.NoError(t, err)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.PendingCount)

	pending, err := repo.PullPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, first.ID, pending[0].ID)
	require.JSONEq(t, `{"order_id":"o1"}`, string(pending[0].Payload))

	require.NoError(t, repo.MarkSent(ctx, first.ID))
	require.ErrorIs(t, repo.MarkFailed(ctx, "missing"), domain.ErrOutboxPublish)

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)
}

func TestIdempotencyRepository(t *testing.T) {
	ctx := context.Background()
	store := openStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	ttl := time.Now().UTC().Add(time.Hour)
	_, err := repo.CreateProcessing(ctx, "k1", "h1", ttl)
	require.NoError(t, err)

	existing, err := repo.CreateProcessing(ctx, "k1", "h1", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	require.Equal(t, domain.IdempotencyStatusProcessing, existing.Status)

	_, err = repo.CreateProcessing(ctx, "k1", "other", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	require.NoError(t, repo.MarkDone(ctx, "k1", []byte(`{"ok":true}`), 201))
	done, err := repo.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, done.Status)
	require.Equal(t, 201, done.HTTPStatus)

	// Истёкший ключ невидим и может быть занят заново.
	_, err = repo.CreateProcessing(ctx, "k2", "h2", time.Now().UTC().Add(-time.Second))
	require.NoError(t, err)
	_, err = repo.Get(ctx, "k2")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	_, err = repo.CreateProcessing(ctx, "k2", "h3", ttl)
	require.NoError(t, err)

	_, err = repo.CreateProcessing(ctx, "k3", "h3", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	removed, err := repo.DeleteExpired(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	require.ErrorIs(t, repo.MarkFailed(ctx, "missing", nil, 500), domain.ErrIdempotencyKeyNotFound)

	require.NoError(t, repo.Release(ctx, "k2"))
	_, err = repo.Get(ctx, "k2")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	require.NoError(t, repo.Release(ctx, "k1"))
	done, err = repo.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, done.Status)
}
