package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-yield-agent/internal/domain"
	"solana-yield-agent/internal/storage"
)

func TestActionLogStore_AppendAssignsIDs(t *testing.T) {
	store := NewActionLogStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := store.Append(ctx, &domain.AgentAction{
			AgentName:  domain.AgentBalance,
			ActionType: domain.ActionTypeBalanceCheck,
			Details:    map[string]any{"i": i},
			Timestamp:  time.Unix(int64(i), 0),
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if id != int64(i+1) {
			t.Errorf("ID mismatch: got %d, want %d", id, i+1)
		}
	}

	if store.Len() != 3 {
		t.Errorf("Len: got %d, want 3", store.Len())
	}
}

func TestActionLogStore_RecentNewestFirst(t *testing.T) {
	store := NewActionLogStore()
	ctx := context.Background()

	for _, typ := range []string{"A", "B", "C"} {
		if _, err := store.Append(ctx, &domain.AgentAction{AgentName: "x", ActionType: typ}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ActionType != "C" || got[1].ActionType != "B" {
		t.Errorf("order mismatch: got %s, %s", got[0].ActionType, got[1].ActionType)
	}
}

func TestActionLogStore_IsolatedCopies(t *testing.T) {
	store := NewActionLogStore()
	ctx := context.Background()

	details := map[string]any{"k": "v"}
	if _, err := store.Append(ctx, &domain.AgentAction{AgentName: "x", ActionType: "A", Details: details}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	details["k"] = "mutated"

	got, _ := store.Recent(ctx, 1)
	if got[0].Details["k"] != "v" {
		t.Error("stored entry must not alias caller's details map")
	}
}

func TestActionLogStore_InvalidInput(t *testing.T) {
	store := NewActionLogStore()
	_, err := store.Append(context.Background(), &domain.AgentAction{AgentName: "x"})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestActionLogStore_ByType(t *testing.T) {
	store := NewActionLogStore()
	ctx := context.Background()
	store.Append(ctx, &domain.AgentAction{AgentName: "x", ActionType: "A"})
	store.Append(ctx, &domain.AgentAction{AgentName: "x", ActionType: "B"})
	store.Append(ctx, &domain.AgentAction{AgentName: "x", ActionType: "A"})

	if n := len(store.ByType("A")); n != 2 {
		t.Errorf("ByType(A): got %d, want 2", n)
	}
}
