package mysql

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
	"sync"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"github.com/xraph/odoosync"
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

// maxLockName is the longest name GET_LOCK accepts.
const maxLockName = 64

// Store is a MySQL implementation of store.Store, suitable for sharing the
// WordPress database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	pollInterval time.Duration

	mu    sync.Mutex
	held  map[string]*sql.Conn
	owned bool
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for timestamps and due checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithPollInterval sets how often a blocked Acquire retries.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		s.pollInterval = d
	}
}

// Open connects with a go-sql-driver DSN such as
// "wp:secret@tcp(localhost:3306)/wordpress". The DSN is adjusted to parse
// DATETIME columns as UTC time.Time and to report matched rows.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("odoosync/mysql: parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true

	connector, err := driver.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("odoosync/mysql: connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("odoosync/mysql: connect: %w", err)
	}

	s := New(db, opts...)
	s.owned = true
	return s, nil
}

// New wraps an existing handle. The handle's DSN must set parseTime=true
// and clientFoundRows=true; Close leaves it open.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:           db,
		logger:       slog.Default(),
		now:          func() time.Time { return time.Now().UTC() },
		pollInterval: lock.DefaultPollInterval,
		held:         make(map[string]*sql.Conn),
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
			filename VARCHAR(255) NOT NULL PRIMARY KEY,
			applied_at DATETIME(6) NOT NULL
		) ENGINE=InnoDB`)
	if err != nil {
		return fmt.Errorf("%w: odoosync/mysql: create migrations table: %w", odoosync.ErrMigrationFailed, err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("%w: odoosync/mysql: read migrations: %w", odoosync.ErrMigrationFailed, err)
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
			return fmt.Errorf("%w: odoosync/mysql: check migration %s: %w", odoosync.ErrMigrationFailed, entry.Name(), err)
		}
		if applied > 0 {
			continue
		}

		data, readErr := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if readErr != nil {
			return fmt.Errorf("%w: odoosync/mysql: read migration %s: %w", odoosync.ErrMigrationFailed, entry.Name(), readErr)
		}

		// The driver runs one statement per Exec unless multiStatements is set.
		for _, stmt := range splitStatements(string(data)) {
			if _, execErr := s.db.ExecContext(ctx, stmt); execErr != nil {
				return fmt.Errorf("%w: odoosync/mysql: execute migration %s: %w", odoosync.ErrMigrationFailed, entry.Name(), execErr)
			}
		}

		_, recErr := s.db.ExecContext(ctx,
			`INSERT INTO odoosync_migrations (filename, applied_at) VALUES (?, ?)`,
			entry.Name(), s.now(),
		)
		if recErr != nil {
			return fmt.Errorf("%w: odoosync/mysql: record migration %s: %w", odoosync.ErrMigrationFailed, entry.Name(), recErr)
		}

		s.logger.Info("applied migration", slog.String("file", entry.Name()))
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close drops every held lock connection and closes the handle when Open
// created it. Closing the session releases its GET_LOCK names.
func (s *Store) Close() error {
	s.mu.Lock()
	for key, conn := range s.held {
		_ = conn.Close()
		delete(s.held, key)
	}
	s.mu.Unlock()

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

// nullTime maps a nil or zero time to NULL.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}
