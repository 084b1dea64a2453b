package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/id"
	"github.com/xraph/odoosync/kv"
	"github.com/xraph/odoosync/lock"
)

// Compile-time interface checks.
var (
	_ lock.Locker = (*Store)(nil)
	_ kv.Store    = (*Store)(nil)
)

// releaseScript deletes a lock key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithLease sets the expiry of lock keys, bounding how long a crashed
// holder blocks others.
func WithLease(d time.Duration) Option {
	return func(s *Store) { s.lease = d }
}

// WithPollInterval sets how often a blocked Acquire retries.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) { s.pollInterval = d }
}

// Store implements lock.Locker and kv.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger

	lease        time.Duration
	pollInterval time.Duration

	mu     sync.Mutex
	tokens map[string]id.Owner
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:       client,
		logger:       slog.Default(),
		lease:        lock.DefaultLease,
		pollInterval: lock.DefaultPollInterval,
		tokens:       make(map[string]id.Owner),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases every lock still held by this store. The client stays
// open.
func (s *Store) Close() error {
	s.mu.Lock()
	keys := make([]string, 0, len(s.tokens))
	for k := range s.tokens {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	for _, k := range keys {
		if err := s.Release(context.Background(), k); err != nil {
			s.logger.Warn("release lock on close",
				slog.String("key", k),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Locker
// ──────────────────────────────────────────────────

// Acquire implements lock.Locker.
func (s *Store) Acquire(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	token := id.NewOwner()
	ok, err := lock.Poll(ctx, timeout, s.pollInterval, func(ctx context.Context) (bool, error) {
		ok, err := s.client.SetNX(ctx, lockKey(key), token.String(), s.lease).Result()
		if err != nil {
			return false, fmt.Errorf("odoosync/redis: acquire lock %s: %w", key, err)
		}
		return ok, nil
	})
	if err != nil || !ok {
		return ok, err
	}

	s.mu.Lock()
	s.tokens[key] = token
	s.mu.Unlock()
	return true, nil
}

// Release implements lock.Locker. A key whose lease expired and was taken
// by another holder is left alone and reported as not held.
func (s *Store) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	token, ok := s.tokens[key]
	delete(s.tokens, key)
	s.mu.Unlock()
	if !ok {
		return odoosync.ErrLockNotHeld
	}

	n, err := releaseScript.Run(ctx, s.client, []string{lockKey(key)}, token.String()).Int64()
	if err != nil {
		return fmt.Errorf("odoosync/redis: release lock %s: %w", key, err)
	}
	if n == 0 {
		return odoosync.ErrLockNotHeld
	}
	return nil
}

// ──────────────────────────────────────────────────
// Key/value state
// ──────────────────────────────────────────────────

// GetInt implements kv.Store.
func (s *Store) GetInt(ctx context.Context, key string) (int64, bool, error) {
	v, err := s.client.Get(ctx, intKey(key)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("odoosync/redis: get %s: %w", key, err)
	}
	return v, true, nil
}

// SetInt implements kv.Store.
func (s *Store) SetInt(ctx context.Context, key string, v int64) error {
	if err := s.client.Set(ctx, intKey(key), strconv.FormatInt(v, 10), 0).Err(); err != nil {
		return fmt.Errorf("odoosync/redis: set %s: %w", key, err)
	}
	return nil
}

// IncrInt implements kv.Store. INCRBY is atomic, so concurrent processes
// never lose an increment.
func (s *Store) IncrInt(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := s.client.IncrBy(ctx, intKey(key), delta).Result()
	if err != nil {
		return 0, fmt.Errorf("odoosync/redis: incr %s: %w", key, err)
	}
	return v, nil
}

// GetTime implements kv.Store.
func (s *Store) GetTime(ctx context.Context, key string) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, timeKey(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("odoosync/redis: get %s: %w", key, err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("odoosync/redis: parse %s: %w", key, err)
	}
	return t, true, nil
}

// SetTime implements kv.Store.
func (s *Store) SetTime(ctx context.Context, key string, t time.Time) error {
	if err := s.client.Set(ctx, timeKey(key), t.UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("odoosync/redis: set %s: %w", key, err)
	}
	return nil
}

// Delete implements kv.Store.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		full = append(full, intKey(k), timeKey(k))
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("odoosync/redis: delete: %w", err)
	}
	return nil
}
