package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
	"github.com/vladislavdragonenkov/bookshop/internal/storage/memory"
)

func newOrder(id string, createdAt time.Time) domain.Order {
	order := domain.NewOrder(id, "user-1", createdAt)
	order.AddBook("book-1", 1200)
	order.PartialCosts = map[string]int64{domain.CostShipping: 500, domain.CostBooks: 1200}
	order.TotalCost = 1700
	return order
}

func TestOrderRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", time.Now().UTC())

	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, order); !errors.Is(err, domain.ErrOrderAlreadyExists) {
		t.Fatalf("expected ErrOrderAlreadyExists, got %v", err)
	}

	got, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalCost != 1700 || len(got.BookIDs) != 1 {
		t.Fatalf("unexpected order: %+v", got)
	}

	// Изменения копии не должны попадать в хранилище.
	got.BooksCost["book-1"] = 1
	again, _ := repo.Get(ctx, order.ID)
	if again.BooksCost["book-1"] != 1200 {
		t.Fatal("repository leaked internal map")
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_SaveOptimisticLock(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", time.Now().UTC())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}

	order.AddBook("book-2", 800)
	if err := repo.Save(ctx, order); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, order); !domain.IsVersionConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	stored, _ := repo.Get(ctx, order.ID)
	if stored.Version != 1 || !stored.HasBook("book-2") {
		t.Fatalf("unexpected stored order: %+v", stored)
	}

	ghost := newOrder("ghost", time.Now().UTC())
	if err := repo.Save(ctx, ghost); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_SaveStatusIsPartial(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", time.Now().UTC())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}

	sentAt := time.Now().UTC()
	changed := order.Clone()
	changed.StatusID = domain.StatusSent
	changed.Stamp(domain.StatusSent, sentAt)
	changed.TotalCost = 1 // не должно сохраниться
	if err := repo.SaveStatus(ctx, changed); err != nil {
		t.Fatalf("save status: %v", err)
	}

	stored, _ := repo.Get(ctx, order.ID)
	if stored.StatusID != domain.StatusSent || stored.SentAt == nil || !stored.SentAt.Equal(sentAt) {
		t.Fatalf("status not persisted: %+v", stored)
	}
	if stored.TotalCost != 1700 {
		t.Fatalf("SaveStatus must not touch costs, got %d", stored.TotalCost)
	}
	if stored.Version != 1 {
		t.Fatalf("expected version 1, got %d", stored.Version)
	}
}

func TestOrderRepository_ListAndFindByStatus(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	base := time.Now().UTC()

	old := newOrder("order-old", base.Add(-time.Hour))
	old.StatusID = domain.StatusCompleted
	fresh := newOrder("order-new", base)
	foreign := newOrder("order-foreign", base)
	foreign.UserID = "user-2"

	for _, o := range []domain.Order{old, fresh, foreign} {
		if err := repo.Create(ctx, o); err != nil {
			t.Fatalf("create %s: %v", o.ID, err)
		}
	}

	list, err := repo.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "order-new" || list[1].ID != "order-old" {
		t.Fatalf("unexpected list order: %+v", list)
	}

	found, err := repo.FindByStatus(ctx, "user-1", domain.StatusNew)
	if err != nil || found.ID != "order-new" {
		t.Fatalf("FindByStatus new: %v %+v", err, found)
	}
	if _, err := repo.FindByStatus(ctx, "user-1", domain.StatusSent); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
