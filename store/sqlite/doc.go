// Package sqlite implements store.Store on an embedded SQLite database
// through database/sql and the pure-Go modernc.org/sqlite driver. Suitable
// for single-host deployments, CLI tools and tests.
//
// Locks are lease rows in odoosync_locks, so they coordinate every process
// that opens the same database file. A holder that dies without releasing
// blocks the key until its lease expires.
//
//	s, err := sqlite.Open(ctx, "/var/lib/odoosync/queue.db")
//	if err != nil { ... }
//	defer s.Close()
//	if err := s.Migrate(ctx); err != nil { ... }
package sqlite
