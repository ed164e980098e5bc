package memory

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	first, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     "bookshop.order.created",
		Payload:       []byte(`{"order_id":"order-1"}`),
		CreatedAt:     time.Now().UTC().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated id")
	}
	second, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateID: "order-1", EventType: "bookshop.order.status_changed"})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Fatalf("expected oldest first, got %+v", pending)
	}

	limited, _ := repo.PullPending(ctx, 1)
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestOutboxRepository_MarkAndStats(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	oldest := time.Now().UTC().Add(-5 * time.Minute)
	a, _ := repo.Enqueue(ctx, domain.OutboxMessage{AggregateID: "a", CreatedAt: oldest})
	b, _ := repo.Enqueue(ctx, domain.OutboxMessage{AggregateID: "b"})

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 2 || !stats.OldestPendingAt.Equal(oldest) {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if err := repo.MarkSent(ctx, a.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := repo.MarkFailed(ctx, b.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkSent(ctx, "missing"); err == nil {
		t.Fatal("expected error for unknown id")
	}

	if left := repo.AllPending(); len(left) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(left))
	}
	stats, _ = repo.Stats(ctx)
	if stats.PendingCount != 0 || !stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats after marks: %+v", stats)
	}
}
