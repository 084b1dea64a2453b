package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register the "sqlite" driver

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/id"
	"github.com/xraph/odoosync/job"
	"github.com/xraph/odoosync/lock"
	"github.com/xraph/odoosync/mapping"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ job.Store     = (*Store)(nil)
	_ mapping.Store = (*Store)(nil)
	_ lock.Locker   = (*Store)(nil)
)

// Store is a database/sql implementation of store.Store on SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	owner        id.Owner
	lease        time.Duration
	pollInterval time.Duration
	owned        bool
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for timestamps, due checks and
// lock leases.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLease bounds how long a lock row outlives a holder that never
// released it.
func WithLease(d time.Duration) Option {
	return func(s *Store) {
		s.lease = d
	}
}

// WithPollInterval sets how often a blocked Acquire retries.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		s.pollInterval = d
	}
}

// Open opens the database file at dsn (":memory:" works) and returns a
// store that owns the handle. SQLite serializes writers, so the pool is
// limited to a single connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("odoosync/sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA journal_mode = WAL`,
		`PRAGMA foreign_keys = ON`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("odoosync/sqlite: %s: %w", pragma, err)
		}
	}

	s := New(db, opts...)
	s.owned = true
	return s, nil
}

// New wraps an existing handle. The caller owns the db lifecycle; Close
// leaves it open.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:           db,
		logger:       slog.Default(),
		now:          func() time.Time { return time.Now().UTC() },
		owner:        id.NewOwner(),
		lease:        lock.DefaultLease,
		pollInterval: lock.DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate runs all embedded SQL migration files in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS odoosync_migrations (
			filename TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("%w: odoosync/sqlite: create migrations table: %w", odoosync.ErrMigrationFailed, err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("%w: odoosync/sqlite: read migrations: %w", odoosync.ErrMigrationFailed, err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var applied int
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM odoosync_migrations WHERE filename = ?`,
			entry.Name(),
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("%w: odoosync/sqlite: check migration %s: %w", odoosync.ErrMigrationFailed, entry.Name(), err)
		}
		if applied > 0 {
			continue
		}

		data, readErr := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if readErr != nil {
			return fmt.Errorf("%w: odoosync/sqlite: read migration %s: %w", odoosync.ErrMigrationFailed, entry.Name(), readErr)
		}

		for _, stmt := range splitStatements(string(data)) {
			if _, execErr := s.db.ExecContext(ctx, stmt); execErr != nil {
				return fmt.Errorf("%w: odoosync/sqlite: execute migration %s: %w", odoosync.ErrMigrationFailed, entry.Name(), execErr)
			}
		}

		_, recErr := s.db.ExecContext(ctx,
			`INSERT INTO odoosync_migrations (filename, applied_at) VALUES (?, ?)`,
			entry.Name(), toNanos(s.now()),
		)
		if recErr != nil {
			return fmt.Errorf("%w: odoosync/sqlite: record migration %s: %w", odoosync.ErrMigrationFailed, entry.Name(), recErr)
		}

		s.logger.Info("applied migration", slog.String("file", entry.Name()))
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases lock rows taken by this store and closes the handle when
// Open created it.
func (s *Store) Close() error {
	_, _ = s.db.Exec(`DELETE FROM odoosync_locks WHERE locked_by = ?`, s.owner.String())
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// Timestamps are stored as UTC unix nanoseconds so ordering and range
// filters are plain integer comparisons.
func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
