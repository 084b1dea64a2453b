package circuit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xraph/odoosync/circuit"
	"github.com/xraph/odoosync/kv"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newBreaker(store kv.Store) (*circuit.Breaker, *clock) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := circuit.New(store, "odoo",
		circuit.WithThreshold(3),
		circuit.WithRecoveryDelay(300*time.Second),
		circuit.WithClock(c.Now),
	)
	return b, c
}

func TestOpensAtThreshold(t *testing.T) {
	ctx := context.Background()
	b, _ := newBreaker(kv.NewMemory())

	for i := 0; i < 2; i++ {
		_ = b.RecordFailure(ctx)
		if !b.IsAvailable(ctx) {
			t.Fatalf("circuit opened after %d failures", i+1)
		}
	}
	_ = b.RecordFailure(ctx)
	if b.IsAvailable(ctx) {
		t.Fatal("circuit should be open after 3 failures")
	}
	if got := b.State(ctx); got != circuit.StateOpen {
		t.Errorf("State = %s, want open", got)
	}
}

func TestHalfOpenAfterRecoveryDelay(t *testing.T) {
	ctx := context.Background()
	b, c := newBreaker(kv.NewMemory())

	for i := 0; i < 3; i++ {
		_ = b.RecordFailure(ctx)
	}
	c.Advance(299 * time.Second)
	if b.IsAvailable(ctx) {
		t.Fatal("circuit should still be open before the recovery delay")
	}
	c.Advance(time.Second)
	if !b.IsAvailable(ctx) {
		t.Fatal("circuit should allow a probe once the delay elapsed")
	}
	if got := b.State(ctx); got != circuit.StateHalfOpen {
		t.Errorf("State = %s, want half_open", got)
	}
}

func TestProbeFailureReopens(t *testing.T) {
	ctx := context.Background()
	b, c := newBreaker(kv.NewMemory())

	for i := 0; i < 3; i++ {
		_ = b.RecordFailure(ctx)
	}
	c.Advance(301 * time.Second)
	_ = b.RecordFailure(ctx)

	if b.IsAvailable(ctx) {
		t.Fatal("failed probe should re-open the circuit")
	}
	c.Advance(300 * time.Second)
	if !b.IsAvailable(ctx) {
		t.Fatal("re-opened circuit should probe again after another delay")
	}
}

func TestFailuresWhileOpenKeepWindow(t *testing.T) {
	ctx := context.Background()
	b, c := newBreaker(kv.NewMemory())

	for i := 0; i < 3; i++ {
		_ = b.RecordFailure(ctx)
	}
	c.Advance(200 * time.Second)
	_ = b.RecordFailure(ctx)
	c.Advance(100 * time.Second)
	if !b.IsAvailable(ctx) {
		t.Fatal("failures inside the open window should not extend it")
	}
}

func TestSuccessResets(t *testing.T) {
	ctx := context.Background()
	b, _ := newBreaker(kv.NewMemory())

	for i := 0; i < 3; i++ {
		_ = b.RecordFailure(ctx)
	}
	_ = b.RecordSuccess(ctx)

	if got := b.State(ctx); got != circuit.StateClosed {
		t.Fatalf("State = %s, want closed", got)
	}
	n, _ := b.Failures(ctx)
	if n != 0 {
		t.Errorf("Failures = %d, want 0", n)
	}

	_ = b.RecordFailure(ctx)
	_ = b.RecordFailure(ctx)
	if !b.IsAvailable(ctx) {
		t.Error("count should restart from zero after a success")
	}
}

func TestSharedState(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	a, _ := newBreaker(store)
	b, _ := newBreaker(store)

	for i := 0; i < 3; i++ {
		_ = a.RecordFailure(ctx)
	}
	if b.IsAvailable(ctx) {
		t.Error("breakers on the same store and name should share state")
	}
}
