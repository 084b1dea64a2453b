//go:build integration

package postgres_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/odoosync/store"
	"github.com/xraph/odoosync/store/postgres"
	"github.com/xraph/odoosync/store/storetest"
)

var (
	containerOnce sync.Once
	connString    string
	containerErr  error
)

// postgresURL starts one container for the whole package.
func postgresURL(t *testing.T) string {
	t.Helper()

	containerOnce.Do(func() {
		ctx := context.Background()
		container, err := pgmodule.Run(ctx,
			"postgres:16-alpine",
			pgmodule.WithDatabase("odoosync_test"),
			pgmodule.WithUsername("test"),
			pgmodule.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		if err != nil {
			containerErr = err
			return
		}
		connString, containerErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	if containerErr != nil {
		t.Fatalf("start postgres container: %v", containerErr)
	}
	return connString
}

func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()

	s, err := postgres.New(ctx, postgresURL(t), postgres.WithLogger(slog.Default()))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := s.Pool().Exec(ctx, `TRUNCATE odoosync_jobs, odoosync_mappings RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func TestPostgresStore(t *testing.T) {
	storetest.Run(t, setupTestStore)
}

func TestPostgresStore_MigrateIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestPostgresStore_LockSpansStores(t *testing.T) {
	ctx := context.Background()
	a := setupTestStore(t)
	b, err := postgres.New(ctx, postgresURL(t))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	ok, err := a.Acquire(ctx, "odoosync:test", 0)
	if err != nil || !ok {
		t.Fatalf("a.Acquire = %v, %v", ok, err)
	}
	ok, err = b.Acquire(ctx, "odoosync:test", 100*time.Millisecond)
	if err != nil || ok {
		t.Fatalf("b.Acquire while held = %v, %v", ok, err)
	}
	if err := a.Release(ctx, "odoosync:test"); err != nil {
		t.Fatal(err)
	}
	ok, err = b.Acquire(ctx, "odoosync:test", time.Second)
	if err != nil || !ok {
		t.Fatalf("b.Acquire after release = %v, %v", ok, err)
	}
	_ = b.Release(ctx, "odoosync:test")
}
