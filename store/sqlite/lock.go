package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/lock"
)

// Acquire implements lock.Locker with a lease row: the insert wins when no
// row exists or the previous lease has expired.
func (s *Store) Acquire(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	return lock.Poll(ctx, timeout, s.pollInterval, func(ctx context.Context) (bool, error) {
		return s.tryLock(ctx, key)
	})
}

func (s *Store) tryLock(ctx context.Context, key string) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO odoosync_locks (name, locked_by, locked_until)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			locked_by = excluded.locked_by,
			locked_until = excluded.locked_until
		WHERE odoosync_locks.locked_until < ?`,
		key, s.owner.String(), toNanos(now.Add(s.lease)), toNanos(now),
	)
	if err != nil {
		return false, fmt.Errorf("odoosync/sqlite: acquire lock %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("odoosync/sqlite: acquire lock %s: %w", key, err)
	}
	return n > 0, nil
}

// Release implements lock.Locker. Only this store's rows are removed.
func (s *Store) Release(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM odoosync_locks WHERE name = ? AND locked_by = ?`,
		key, s.owner.String(),
	)
	if err != nil {
		return fmt.Errorf("odoosync/sqlite: release lock %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return odoosync.ErrLockNotHeld
	}
	return nil
}
