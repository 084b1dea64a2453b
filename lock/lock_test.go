package lock_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/lock"
)

func TestPushKey(t *testing.T) {
	a := lock.PushKey("crm", "contact", 42)
	if a != lock.PushKey("crm", "contact", 42) {
		t.Error("push key should be deterministic")
	}
	for _, other := range []string{
		lock.PushKey("crm", "contact", 43),
		lock.PushKey("crm", "company", 42),
		lock.PushKey("sales", "contact", 42),
	} {
		if other == a {
			t.Errorf("distinct entities share key %q", a)
		}
	}
}

func TestShortKey(t *testing.T) {
	if got := lock.ShortKey("short", 64); got != "short" {
		t.Errorf("ShortKey = %q", got)
	}
	long := strings.Repeat("k", 100)
	got := lock.ShortKey(long, 64)
	if len(got) > 64 {
		t.Errorf("ShortKey length = %d", len(got))
	}
	if got != lock.ShortKey(long, 64) {
		t.Error("ShortKey should be stable")
	}
}

func TestMemoryAcquireRelease(t *testing.T) {
	ctx := context.Background()
	m := lock.NewMemory()

	ok, err := m.Acquire(ctx, "k", 0)
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}
	ok, _ = m.Acquire(ctx, "k", 20*time.Millisecond)
	if ok {
		t.Fatal("second acquire should time out")
	}
	ok, _ = m.Acquire(ctx, "other", 0)
	if !ok {
		t.Fatal("unrelated key should be free")
	}
	if err := m.Release(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if err := m.Release(ctx, "k"); !errors.Is(err, odoosync.ErrLockNotHeld) {
		t.Errorf("double release error = %v", err)
	}
}

func TestMemoryAcquireWaits(t *testing.T) {
	ctx := context.Background()
	m := lock.NewMemory()
	_, _ = m.Acquire(ctx, "k", 0)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = m.Release(ctx, "k")
	}()

	ok, err := m.Acquire(ctx, "k", time.Second)
	if err != nil || !ok {
		t.Fatalf("waiting acquire = %v, %v", ok, err)
	}
}

func TestMemoryAcquireContextCancel(t *testing.T) {
	m := lock.NewMemory()
	_, _ = m.Acquire(context.Background(), "k", 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := m.Acquire(ctx, "k", time.Second)
	if ok || !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire = %v, %v; want false, context.Canceled", ok, err)
	}
}

func TestWithMutualExclusion(t *testing.T) {
	ctx := context.Background()
	m := lock.NewMemory()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lock.With(ctx, m, "k", time.Second, func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					cur := atomic.LoadInt32(&maxInside)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max holders = %d, want 1", maxInside)
	}
}

func TestWithTimeout(t *testing.T) {
	ctx := context.Background()
	m := lock.NewMemory()
	_, _ = m.Acquire(ctx, "k", 0)

	called := false
	err := lock.With(ctx, m, "k", 10*time.Millisecond, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, odoosync.ErrLockTimeout) {
		t.Errorf("With error = %v, want ErrLockTimeout", err)
	}
	if called {
		t.Error("fn must not run without the lock")
	}
}

func TestWithReleasesOnPanic(t *testing.T) {
	ctx := context.Background()
	m := lock.NewMemory()

	func() {
		defer func() { _ = recover() }()
		_ = lock.With(ctx, m, "k", 0, func(context.Context) error {
			panic("boom")
		})
	}()

	ok, _ := m.Acquire(ctx, "k", 0)
	if !ok {
		t.Error("lock should be released after a panic")
	}
}

func TestPoll(t *testing.T) {
	ctx := context.Background()
	var calls int32
	ok, err := lock.Poll(ctx, time.Second, time.Millisecond, func(context.Context) (bool, error) {
		return atomic.AddInt32(&calls, 1) >= 3, nil
	})
	if err != nil || !ok {
		t.Fatalf("Poll = %v, %v", ok, err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	ok, err = lock.Poll(ctx, 10*time.Millisecond, time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	if err != nil || ok {
		t.Errorf("Poll on a held lock = %v, %v", ok, err)
	}

	boom := errors.New("boom")
	_, err = lock.Poll(ctx, time.Second, time.Millisecond, func(context.Context) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Poll error = %v, want boom", err)
	}
}
