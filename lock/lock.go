// Package lock defines the named, cooperative mutex used for the run-wide
// processor lock and the per-entity push lock.
//
// A Locker is pluggable: the memory implementation serves a single
// process, while the store backends use their database's advisory lock
// primitive (PostgreSQL, MySQL), a lease row (SQLite) or a lease key
// (Redis) so that every process of a deployment contends on the same
// names.
package lock

import (
	"context"
	"crypto/sha1" //nolint:gosec // used for key shortening, not security
	"encoding/hex"
	"fmt"
	"time"

	"github.com/xraph/odoosync"
)

// Locker acquires and releases named locks. Acquire blocks up to timeout
// and reports false when the lock stayed held by someone else; a zero
// timeout makes a single attempt. Locks are not re-entrant.
type Locker interface {
	Acquire(ctx context.Context, key string, timeout time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RunKey is the name of the run-wide processor lock.
const RunKey = "odoosync:sync-processor"

// PushKey derives the lock name guarding the create path of one entity.
func PushKey(module, entityType string, wpID int64) string {
	return fmt.Sprintf("odoosync:push:%s:%s:%d", module, entityType, wpID)
}

// DefaultPollInterval is how often polling backends retry a held lock.
const DefaultPollInterval = 50 * time.Millisecond

// DefaultLease bounds how long a lease-based lock outlives a crashed holder.
const DefaultLease = 5 * time.Minute

// Poll calls try until it reports true, the timeout elapses or ctx ends.
// It is the blocking acquire of backends that only offer a try-lock.
func Poll(ctx context.Context, timeout, interval time.Duration, try func(context.Context) (bool, error)) (bool, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)
	for {
		ok, err := try(ctx)
		if err != nil || ok {
			return ok, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		wait := interval
		if remaining < wait {
			wait = remaining
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return false, ctx.Err()
		case <-t.C:
		}
	}
}

// With runs fn while holding key. It returns odoosync.ErrLockTimeout when
// the lock could not be acquired in time. The lock is released after fn
// returns or panics.
func With(ctx context.Context, l Locker, key string, timeout time.Duration, fn func(context.Context) error) error {
	ok, err := l.Acquire(ctx, key, timeout)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s after %s", odoosync.ErrLockTimeout, key, timeout)
	}
	defer func() {
		// Release with a fresh context so a cancelled caller still unlocks.
		_ = l.Release(context.WithoutCancel(ctx), key)
	}()
	return fn(ctx)
}

// ShortKey returns key unchanged when it fits in limit bytes, otherwise a
// stable digest. MySQL caps lock names at 64 characters.
func ShortKey(key string, limit int) string {
	if len(key) <= limit {
		return key
	}
	sum := sha1.Sum([]byte(key)) //nolint:gosec // see import
	return "odoosync:" + hex.EncodeToString(sum[:])
}
