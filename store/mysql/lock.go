package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/lock"
)

// Acquire implements lock.Locker with GET_LOCK. The name is bound to the
// session that took it, so the connection stays pinned until Release.
func (s *Store) Acquire(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	name := lock.ShortKey(key, maxLockName)
	return lock.Poll(ctx, timeout, s.pollInterval, func(ctx context.Context) (bool, error) {
		return s.tryLock(ctx, key, name)
	})
}

func (s *Store) tryLock(ctx context.Context, key, name string) (bool, error) {
	s.mu.Lock()
	_, busy := s.held[key]
	s.mu.Unlock()
	if busy {
		return false, nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("odoosync/mysql: acquire lock connection: %w", err)
	}

	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, 0)`, name).Scan(&got); err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("odoosync/mysql: get_lock %s: %w", key, err)
	}
	if !got.Valid || got.Int64 != 1 {
		_ = conn.Close()
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
	defer conn.Close()

	var released sql.NullInt64
	err := conn.QueryRowContext(ctx, `SELECT RELEASE_LOCK(?)`, lock.ShortKey(key, maxLockName)).Scan(&released)
	if err != nil {
		return fmt.Errorf("odoosync/mysql: release_lock %s: %w", key, err)
	}
	if !released.Valid || released.Int64 != 1 {
		return odoosync.ErrLockNotHeld
	}
	return nil
}
