package jobs

import (
	"context"
	"testing"
	"time"

	"freightcall-platform/internal/calls"
)

func TestSweeperFailsStaleRuns(t *testing.T) {
	store := calls.NewMemoryStore()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	store.SetClock(func() time.Time { return now })

	ctx := context.Background()
	stuck, _ := store.Create(ctx, calls.Call{OrgID: "org-1", UserID: "u", AudioURL: "a", Status: calls.CallStatusUploaded})
	if _, err := store.BeginRun(ctx, stuck.ID); err != nil {
		t.Fatalf("begin run: %v", err)
	}

	// An hour passes with no progress writes.
	now = base.Add(time.Hour)
	fresh, _ := store.Create(ctx, calls.Call{OrgID: "org-1", UserID: "u", AudioURL: "a", Status: calls.CallStatusUploaded})
	if _, err := store.BeginRun(ctx, fresh.ID); err != nil {
		t.Fatalf("begin run: %v", err)
	}

	s := NewSweeper(store, 30*time.Minute, testLogger())
	s.SetClock(func() time.Time { return now })
	s.Sweep(ctx)

	got, _ := store.Get(ctx, "org-1", stuck.ID)
	if got.Status != calls.CallStatusFailed {
		t.Fatalf("stuck run status = %q", got.Status)
	}
	if !got.Status.CanTrigger() {
		t.Error("swept call must be re-triggerable")
	}

	got, _ = store.Get(ctx, "org-1", fresh.ID)
	if got.Status != calls.CallStatusProcessing {
		t.Fatalf("fresh run status = %q, must be untouched", got.Status)
	}
}
