// Package notify alerts an operator when a processor run crosses the
// consecutive-failure threshold. Alerts are rate limited by a cooldown
// whose last-sent timestamp is kept in a kv.Store, so every process
// sharing the store shares the cooldown.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/kv"
)

// Alert describes a run that crossed the failure threshold.
type Alert struct {
	At                     time.Time             `json:"at"`
	Processed              int                   `json:"processed"`
	Succeeded              int                   `json:"succeeded"`
	Failed                 int                   `json:"failed"`
	MaxConsecutiveFailures int                   `json:"max_consecutive_failures"`
	Threshold              int                   `json:"threshold"`
	Failures               []odoosync.RunFailure `json:"failures,omitempty"`
}

// Summary returns a one-line description of the alert.
func (a Alert) Summary() string {
	return fmt.Sprintf("odoosync: %d consecutive sync failures (threshold %d); %d of %d jobs failed",
		a.MaxConsecutiveFailures, a.Threshold, a.Failed, a.Processed)
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// lastSentKey holds the time of the most recent alert.
const lastSentKey = "odoosync:notify:last_sent"

// Policy decides whether a run warrants an alert.
type Policy struct {
	notifier  Notifier
	store     kv.Store
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Policy.
type Option func(*Policy)

// WithThreshold sets how many consecutive failures within one run trigger
// an alert.
func WithThreshold(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.threshold = n
		}
	}
}

// WithCooldown sets the minimum gap between alerts.
func WithCooldown(d time.Duration) Option {
	return func(p *Policy) { p.cooldown = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Policy) { p.logger = l }
}

// NewPolicy creates a Policy with the defaults from odoosync.DefaultConfig.
func NewPolicy(n Notifier, store kv.Store, opts ...Option) *Policy {
	def := odoosync.DefaultConfig().Notify
	p := &Policy{
		notifier:  n,
		store:     store,
		threshold: def.FailureThreshold,
		cooldown:  def.Cooldown,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Observe inspects a finished run and sends an alert when the threshold
// was reached and the cooldown has passed. It reports whether an alert
// went out. Delivery failures do not start the cooldown.
func (p *Policy) Observe(ctx context.Context, res *odoosync.RunResult) (bool, error) {
	if res == nil || res.Skipped || res.MaxConsecutiveFailures < p.threshold {
		return false, nil
	}

	now := p.now()
	last, ok, err := p.store.GetTime(ctx, lastSentKey)
	if err != nil {
		return false, fmt.Errorf("notify: read cooldown: %w", err)
	}
	if ok && now.Sub(last) < p.cooldown {
		p.logger.Debug("failure alert suppressed by cooldown",
			slog.Time("last_sent", last),
			slog.Duration("cooldown", p.cooldown),
		)
		return false, nil
	}

	alert := Alert{
		At:                     now,
		Processed:              res.Processed,
		Succeeded:              res.Succeeded,
		Failed:                 res.Failed,
		MaxConsecutiveFailures: res.MaxConsecutiveFailures,
		Threshold:              p.threshold,
		Failures:               res.Failures,
	}
	if err := p.notifier.Notify(ctx, alert); err != nil {
		return false, fmt.Errorf("notify: send: %w", err)
	}
	if err := p.store.SetTime(ctx, lastSentKey, now); err != nil {
		return true, fmt.Errorf("notify: record cooldown: %w", err)
	}
	return true, nil
}

// ──────────────────────────────────────────────────
// Log notifier
// ──────────────────────────────────────────────────

// Log writes alerts to a logger at error level.
type Log struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (l Log) Notify(ctx context.Context, a Alert) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(ctx, a.Summary(),
		slog.Int("processed", a.Processed),
		slog.Int("failed", a.Failed),
		slog.Int("max_consecutive_failures", a.MaxConsecutiveFailures),
	)
	return nil
}

// Multi fans an alert out to several notifiers and returns the first error.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, a Alert) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil && first == nil {
			first = err
		}
	}
	return first
}
