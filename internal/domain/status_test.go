package domain

import (
	"errors"
	"testing"
)

func TestCanonicalStatusesVerify(t *testing.T) {
	table := NewStatusTable(CanonicalStatuses())
	if err := table.Verify(); err != nil {
		t.Fatalf("canonical table must verify: %v", err)
	}
}

func TestStatusTableVerify_Mismatch(t *testing.T) {
	t.Run("missing status", func(t *testing.T) {
		table := NewStatusTable(CanonicalStatuses())
		delete(table, StatusDelivered)
		if err := table.Verify(); !errors.Is(err, ErrStatusTableMismatch) {
			t.Fatalf("expected mismatch, got %v", err)
		}
	})

	t.Run("renamed status", func(t *testing.T) {
		table := NewStatusTable(CanonicalStatuses())
		st := table[StatusSent]
		st.Name = "shipped"
		table[StatusSent] = st
		if err := table.Verify(); !errors.Is(err, ErrStatusTableMismatch) {
			t.Fatalf("expected mismatch, got %v", err)
		}
	})

	t.Run("extra status is allowed", func(t *testing.T) {
		table := NewStatusTable(append(CanonicalStatuses(), OrderStatus{ID: 7, Name: "on_hold"}))
		if err := table.Verify(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestStatusTableCanTransition(t *testing.T) {
	table := NewStatusTable(CanonicalStatuses())

	if !table.CanTransition(StatusNew, StatusSent) {
		t.Fatal("new -> sent must be allowed")
	}
	if table.CanTransition(StatusNew, StatusDelivered) {
		t.Fatal("new -> delivered must be rejected")
	}
	if table.CanTransition(StatusCompleted, StatusNew) {
		t.Fatal("completed is terminal")
	}
	if table.CanTransition(StatusID(500), StatusNew) {
		t.Fatal("unknown status has no edges")
	}
}

func TestStatusIDString(t *testing.T) {
	if StatusReturned.String() != "returned" {
		t.Fatalf("unexpected name %q", StatusReturned.String())
	}
	if StatusID(3).String() != "status(3)" {
		t.Fatalf("unexpected name %q", StatusID(3).String())
	}
}

func TestStatusTableSorted(t *testing.T) {
	sorted := NewStatusTable(CanonicalStatuses()).Sorted()
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].ID >= sorted[i].ID {
			t.Fatalf("statuses are not sorted: %v", sorted)
		}
	}
}
