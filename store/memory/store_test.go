package memory

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/odoosync/job"
	"github.com/xraph/odoosync/store"
	"github.com/xraph/odoosync/store/storetest"
)

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

func TestConformance(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(*testing.T) store.Store { return New() })
}

// ──────────────────────────────────────────────────
// Memory-specific behavior
// ──────────────────────────────────────────────────

func TestReturnsCopies(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := job.Push("crm", "contact", job.ActionCreate, 1, job.WithPayload(map[string]any{"name": "Ada"}))
	j.Normalize(time.Now().UTC(), 3)
	jid, _ := s.EnqueueJob(ctx, j)

	got, _ := s.GetJob(ctx, jid)
	got.Payload["name"] = "mutated"
	got.Status = job.StatusFailed

	again, _ := s.GetJob(ctx, jid)
	if again.Payload["name"] != "Ada" || again.Status != job.StatusPending {
		t.Errorf("store shares memory with callers: %+v", again)
	}
}

func TestClockDrivesStaleReset(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	j := job.Push("crm", "contact", job.ActionCreate, 1)
	j.Normalize(now, 3)
	jid, _ := s.EnqueueJob(ctx, j)
	_ = s.UpdateStatus(ctx, jid, job.StatusProcessing, job.Update{})

	if n, _ := s.ResetStale(ctx, 10*time.Minute); n != 0 {
		t.Fatalf("reset %d jobs before timeout", n)
	}
	now = now.Add(11 * time.Minute)
	if n, _ := s.ResetStale(ctx, 10*time.Minute); n != 1 {
		t.Fatalf("reset %d jobs after timeout, want 1", n)
	}
}
