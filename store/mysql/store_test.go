//go:build integration

package mysql_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/xraph/odoosync/lock"
	"github.com/xraph/odoosync/store"
	"github.com/xraph/odoosync/store/mysql"
	"github.com/xraph/odoosync/store/storetest"
)

var (
	containerOnce sync.Once
	dsn           string
	containerErr  error
)

func mysqlDSN(t *testing.T) string {
	t.Helper()

	containerOnce.Do(func() {
		ctx := context.Background()
		container, err := tcmysql.Run(ctx, "mysql:8.0",
			tcmysql.WithDatabase("wordpress"),
			tcmysql.WithUsername("wp"),
			tcmysql.WithPassword("wp"),
		)
		if err != nil {
			containerErr = err
			return
		}
		dsn, containerErr = container.ConnectionString(ctx)
	})
	if containerErr != nil {
		t.Fatalf("start mysql container: %v", containerErr)
	}
	return dsn
}

func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()

	s, err := mysql.Open(ctx, mysqlDSN(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"odoosync_jobs", "odoosync_mappings"} {
		if _, err := s.DB().ExecContext(ctx, "TRUNCATE TABLE "+table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return s
}

func TestMySQLStore(t *testing.T) {
	storetest.Run(t, setupTestStore)
}

func TestMySQLStore_LongLockNames(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	key := lock.PushKey("woocommerce_"+strings.Repeat("x", 40), "product_variation", 123456789)
	if len(key) <= 64 {
		t.Fatalf("test key too short: %d", len(key))
	}
	ok, err := s.Acquire(ctx, key, 0)
	if err != nil || !ok {
		t.Fatalf("Acquire = %v, %v", ok, err)
	}

	other, err := mysql.Open(ctx, mysqlDSN(t))
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()
	if ok, _ := other.Acquire(ctx, key, 50*time.Millisecond); ok {
		t.Fatal("second session acquired a held lock")
	}
	if err := s.Release(ctx, key); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ok, err := other.Acquire(ctx, key, time.Second); err != nil || !ok {
		t.Fatalf("Acquire after release = %v, %v", ok, err)
	}
}
