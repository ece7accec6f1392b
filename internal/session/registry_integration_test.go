package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ankabe/policyfaq/internal/testutil"
)

func setupRegistry(t *testing.T, idle time.Duration) (*Registry, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	return NewRegistry(db.Pool, idle, testutil.DiscardLogger()), cleanup
}

func TestRegistry_TouchCreatesAndRefreshes(t *testing.T) {
	reg, cleanup := setupRegistry(t, 30*time.Minute)
	defer cleanup()

	ctx := context.Background()

	// Nil id creates a fresh session.
	id, created, err := reg.Touch(ctx, nil)
	if err != nil {
		t.Fatalf("Touch(nil) error = %v", err)
	}
	if !created {
		t.Error("Touch(nil) created = false, want true")
	}
	if id == uuid.Nil {
		t.Fatal("Touch(nil) returned nil id")
	}

	// Touching a known id refreshes it without creating.
	got, created, err := reg.Touch(ctx, &id)
	if err != nil {
		t.Fatalf("Touch(known) error = %v", err)
	}
	if created {
		t.Error("Touch(known) created = true, want false")
	}
	if got != id {
		t.Errorf("Touch(known) id = %s, want %s", got, id)
	}

	count, err := reg.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestRegistry_TouchUnknownIDMintsFresh(t *testing.T) {
	reg, cleanup := setupRegistry(t, 30*time.Minute)
	defer cleanup()

	ctx := context.Background()
	stale := uuid.New()

	id, created, err := reg.Touch(ctx, &stale)
	if err != nil {
		t.Fatalf("Touch(unknown) error = %v", err)
	}
	if !created {
		t.Error("Touch(unknown) created = false, want true")
	}
	if id == stale {
		t.Error("Touch(unknown) reused the stale id, want a fresh one")
	}
}

func TestRegistry_SweepEvictsOnlyIdleSessions(t *testing.T) {
	reg, cleanup := setupRegistry(t, 50*time.Millisecond)
	defer cleanup()

	ctx := context.Background()

	idleID, _, err := reg.Touch(ctx, nil)
	if err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	// Let the first session go stale, then create an active one.
	time.Sleep(100 * time.Millisecond)

	activeID, _, err := reg.Touch(ctx, nil)
	if err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	evicted, err := reg.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	if len(evicted) != 1 || evicted[0] != idleID {
		t.Errorf("Sweep() = %v, want only %s", evicted, idleID)
	}

	// The active session survives and can still be refreshed.
	_, created, err := reg.Touch(ctx, &activeID)
	if err != nil {
		t.Fatalf("Touch(active) error = %v", err)
	}
	if created {
		t.Error("active session was evicted by the sweep")
	}
}

func TestRegistry_SweepEmptyDatabase(t *testing.T) {
	reg, cleanup := setupRegistry(t, time.Minute)
	defer cleanup()

	evicted, err := reg.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if len(evicted) != 0 {
		t.Errorf("Sweep() = %v, want none", evicted)
	}
}
