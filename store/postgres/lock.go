package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/lock"
)

// Advisory locks are session scoped, so each held key pins the pool
// connection that took it until Release.

// Acquire implements lock.Locker with pg_try_advisory_lock, polling until
// timeout.
func (s *Store) Acquire(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	return lock.Poll(ctx, timeout, s.pollInterval, func(ctx context.Context) (bool, error) {
		return s.tryLock(ctx, key)
	})
}

func (s *Store) tryLock(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	_, busy := s.held[key]
	s.mu.Unlock()
	if busy {
		return false, nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("odoosync/postgres: acquire lock connection: %w", err)
	}

	var ok bool
	err = conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtextextended($1, 0))`, key).Scan(&ok)
	if err != nil {
		conn.Release()
		return false, fmt.Errorf("odoosync/postgres: try advisory lock %s: %w", key, err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}

	s.mu.Lock()
	s.held[key] = conn
	s.mu.Unlock()
	return true, nil
}

// Release implements lock.Locker.
func (s *Store) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	conn, ok := s.held[key]
	if ok {
		delete(s.held, key)
	}
	s.mu.Unlock()

	if !ok {
		return odoosync.ErrLockNotHeld
	}
	defer conn.Release()

	var released bool
	err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key).Scan(&released)
	if err != nil {
		// The session may be broken; drop it so the lock dies with it.
		_ = conn.Conn().Close(ctx)
		return fmt.Errorf("odoosync/postgres: advisory unlock %s: %w", key, err)
	}
	if !released {
		return odoosync.ErrLockNotHeld
	}
	return nil
}
