package lock

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/odoosync"
)

// Memory is an in-process Locker. Each key is a one-slot semaphore.
type Memory struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

var _ Locker = (*Memory)(nil)

// NewMemory returns an empty in-process locker.
func NewMemory() *Memory {
	return &Memory{slots: make(map[string]chan struct{})}
}

func (m *Memory) slot(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		m.slots[key] = s
	}
	return s
}

// Acquire implements Locker.
func (m *Memory) Acquire(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	s := m.slot(key)

	select {
	case s <- struct{}{}:
		return true, nil
	default:
	}
	if timeout <= 0 {
		return false, nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case s <- struct{}{}:
		return true, nil
	case <-t.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Release implements Locker. Releasing a free key is an error.
func (m *Memory) Release(_ context.Context, key string) error {
	s := m.slot(key)
	select {
	case <-s:
		return nil
	default:
		return odoosync.ErrLockNotHeld
	}
}
