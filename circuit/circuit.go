// Package circuit implements the global gate in front of Odoo calls.
//
// The breaker keeps two values in a kv.Store: a consecutive failure count
// and the time the circuit opened. Its state is recomputed from them on
// every check, so every process sharing the store sees the same circuit.
//
//	closed    → opened_at unset
//	open      → opened_at set, recovery delay not yet elapsed
//	half-open → opened_at set, recovery delay elapsed; calls are let through
//
// A single success resets both values. A failure while half-open re-opens
// the circuit because the count was never cleared.
package circuit

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/odoosync/kv"
)

// State is the derived circuit state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Defaults applied when options are not given.
const (
	DefaultThreshold     = 3
	DefaultRecoveryDelay = 300 * time.Second
)

// Breaker is a failure-count circuit breaker backed by a kv.Store.
type Breaker struct {
	store         kv.Store
	name          string
	threshold     int
	recoveryDelay time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithThreshold sets how many consecutive failures open the circuit.
func WithThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithRecoveryDelay sets how long the circuit stays open before probing.
func WithRecoveryDelay(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.recoveryDelay = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Breaker) { b.logger = l }
}

// New creates a breaker named name. Breakers with the same name on the
// same store share state.
func New(store kv.Store, name string, opts ...Option) *Breaker {
	b := &Breaker{
		store:         store,
		name:          name,
		threshold:     DefaultThreshold,
		recoveryDelay: DefaultRecoveryDelay,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) failuresKey() string { return "odoosync:circuit:" + b.name + ":failures" }
func (b *Breaker) openedKey() string   { return "odoosync:circuit:" + b.name + ":opened_at" }

// RecordFailure counts a failed call and opens the circuit once the count
// reaches the threshold. A failure while half-open restarts the open
// window.
func (b *Breaker) RecordFailure(ctx context.Context) error {
	count, err := b.store.IncrInt(ctx, b.failuresKey(), 1)
	if err != nil {
		return err
	}
	if count < int64(b.threshold) {
		return nil
	}

	now := b.now()
	opened, ok, err := b.store.GetTime(ctx, b.openedKey())
	if err != nil {
		return err
	}
	if ok && now.Sub(opened) < b.recoveryDelay {
		return nil
	}

	if err := b.store.SetTime(ctx, b.openedKey(), now); err != nil {
		return err
	}
	b.logger.Warn("circuit opened",
		slog.String("circuit", b.name),
		slog.Int64("failures", count),
		slog.Duration("recovery_delay", b.recoveryDelay),
	)
	return nil
}

// RecordSuccess closes the circuit and clears the failure count.
func (b *Breaker) RecordSuccess(ctx context.Context) error {
	return b.store.Delete(ctx, b.failuresKey(), b.openedKey())
}

// State derives the current state. Store errors read as closed.
func (b *Breaker) State(ctx context.Context) State {
	opened, ok, err := b.store.GetTime(ctx, b.openedKey())
	if err != nil {
		b.logger.Warn("circuit state unavailable, treating as closed",
			slog.String("circuit", b.name),
			slog.String("error", err.Error()),
		)
		return StateClosed
	}
	if !ok {
		return StateClosed
	}
	if b.now().Sub(opened) < b.recoveryDelay {
		return StateOpen
	}
	return StateHalfOpen
}

// IsAvailable reports whether a call may be attempted. It is false only
// while the circuit is open.
func (b *Breaker) IsAvailable(ctx context.Context) bool {
	return b.State(ctx) != StateOpen
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures(ctx context.Context) (int64, error) {
	n, _, err := b.store.GetInt(ctx, b.failuresKey())
	return n, err
}
