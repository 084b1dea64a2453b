package dedup_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/dedup"
	"github.com/xraph/odoosync/failure"
	"github.com/xraph/odoosync/lock"
	"github.com/xraph/odoosync/mapping"
	"github.com/xraph/odoosync/store/memory"
)

var target = dedup.Target{
	Module:     "crm",
	EntityType: "contact",
	WPID:       42,
	OdooModel:  "res.partner",
	Payload:    map[string]any{"name": "Ada"},
}

func TestCreateOnceConcurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	g := dedup.NewGuard(s, s)

	var creates int32
	create := func(context.Context) (int64, error) {
		atomic.AddInt32(&creates, 1)
		time.Sleep(5 * time.Millisecond)
		return 1000, nil
	}

	const n = 20
	var wg sync.WaitGroup
	var created int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := g.CreateOnce(ctx, target, create)
			if err != nil {
				t.Errorf("CreateOnce: %v", err)
				return
			}
			if res.OdooID != 1000 {
				t.Errorf("OdooID = %d, want 1000", res.OdooID)
			}
			if res.Created {
				atomic.AddInt32(&created, 1)
			}
		}()
	}
	wg.Wait()

	if creates != 1 {
		t.Errorf("remote create called %d times, want 1", creates)
	}
	if created != 1 {
		t.Errorf("%d callers report Created, want 1", created)
	}

	m, err := s.GetByWPID(ctx, "crm", "contact", 42)
	if err != nil {
		t.Fatalf("mapping not saved: %v", err)
	}
	if m.OdooID != 1000 || m.OdooModel != "res.partner" || !mapping.Unchanged(m, target.Payload) {
		t.Errorf("mapping = %+v", m)
	}
}

func TestCreateOnceLockTimeoutIsTransient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	g := dedup.NewGuard(s, s, dedup.WithTimeout(10*time.Millisecond))

	if ok, _ := s.Acquire(ctx, lock.PushKey("crm", "contact", 42), 0); !ok {
		t.Fatal("setup acquire failed")
	}

	called := false
	_, err := g.CreateOnce(ctx, target, func(context.Context) (int64, error) {
		called = true
		return 1, nil
	})
	if !errors.Is(err, odoosync.ErrLockTimeout) {
		t.Fatalf("error = %v, want ErrLockTimeout", err)
	}
	if failure.Classify(err) != failure.Transient {
		t.Error("lock timeout should classify as transient")
	}
	if called {
		t.Error("create must not run without the lock")
	}
}

func TestCreateOnceReleasesOnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	g := dedup.NewGuard(s, s)

	boom := errors.New("ValidationError: name required")
	_, err := g.CreateOnce(ctx, target, func(context.Context) (int64, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
	if _, err := s.GetByWPID(ctx, "crm", "contact", 42); !errors.Is(err, odoosync.ErrMappingNotFound) {
		t.Error("failed create must not save a mapping")
	}

	ok, _ := s.Acquire(ctx, lock.PushKey("crm", "contact", 42), 0)
	if !ok {
		t.Error("lock should be released after a failed create")
	}
}

func TestCreateOnceExistingMapping(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	g := dedup.NewGuard(s, s)
	_ = s.SaveMapping(ctx, &mapping.Mapping{Module: "crm", EntityType: "contact", WPID: 42, OdooID: 77})

	res, err := g.CreateOnce(ctx, target, func(context.Context) (int64, error) {
		t.Error("create called although a mapping exists")
		return 0, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Created || res.OdooID != 77 {
		t.Errorf("Result = %+v", res)
	}
}

func TestDistinctEntitiesDoNotContend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()
	g := dedup.NewGuard(s, s, dedup.WithTimeout(10*time.Millisecond))

	_, _ = s.Acquire(ctx, lock.PushKey("crm", "contact", 42), 0)

	other := target
	other.WPID = 43
	res, err := g.CreateOnce(ctx, other, func(context.Context) (int64, error) { return 5, nil })
	if err != nil || !res.Created {
		t.Errorf("CreateOnce(other) = %+v, %v", res, err)
	}
}
