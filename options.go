package odoosync

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Syncer.
type Option func(*Syncer) error

// Storer is the minimal store interface held by the Syncer. It covers
// lifecycle operations only; the composite store.Store embeds the
// subsystem stores and is asserted by the engine package.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// shutdowner is an internal interface for extension lifecycle events.
type shutdowner interface {
	EmitShutdown(ctx context.Context)
}

// Syncer is the application-level handle built once at wiring time and
// passed to the engine, the adapters and the trigger surfaces. There is no
// package-level instance.
type Syncer struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions shutdowner
}

// New creates a new Syncer with the given options.
func New(opts ...Option) (*Syncer, error) {
	s := &Syncer{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Logger returns the syncer's logger.
func (s *Syncer) Logger() *slog.Logger { return s.logger }

// Store returns the syncer's store.
func (s *Syncer) Store() Storer { return s.store }

// Config returns a copy of the syncer's configuration.
func (s *Syncer) Config() Config { return s.config }

// SetExtensions sets the extension emitter (called by the engine package).
func (s *Syncer) SetExtensions(e shutdowner) { s.extensions = e }

// Close emits shutdown to extensions and closes the store.
func (s *Syncer) Close(ctx context.Context) error {
	if s.extensions != nil {
		s.extensions.EmitShutdown(ctx)
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(s *Syncer) error {
		s.config = cfg
		return nil
	}
}

// WithBatchSize sets the number of due jobs fetched per run.
func WithBatchSize(n int) Option {
	return func(s *Syncer) error {
		if n <= 0 {
			return ErrInvalidJob
		}
		s.config.BatchSize = n
		return nil
	}
}

// WithTimeBudget sets the wall-clock ceiling of a run.
func WithTimeBudget(d time.Duration) Option {
	return func(s *Syncer) error {
		s.config.TimeBudget = d
		return nil
	}
}

// WithDryRun toggles dry-run processing.
func WithDryRun(on bool) Option {
	return func(s *Syncer) error {
		s.config.DryRun = on
		return nil
	}
}

// WithLogger sets the structured logger for the syncer.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) error {
		s.logger = l
		return nil
	}
}

// WithStore sets the persistence backend. It is typically a store.Store,
// which embeds every subsystem store interface.
func WithStore(st Storer) Option {
	return func(s *Syncer) error {
		s.store = st
		return nil
	}
}
