// Package store defines the aggregate persistence interface. Each subsystem
// (job, mapping, lock) defines its own store interface and the composite
// Store composes them all. Backends: Postgres, MySQL, SQLite and Memory;
// Redis provides locks and shared state only.
package store

import (
	"context"

	"github.com/xraph/odoosync/job"
	"github.com/xraph/odoosync/lock"
	"github.com/xraph/odoosync/mapping"
)

// Store is the aggregate persistence interface.
// A single backend (postgres, mysql, sqlite, memory) implements all of them.
type Store interface {
	job.Store
	mapping.Store
	lock.Locker

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
