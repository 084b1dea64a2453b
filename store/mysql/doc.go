// Package mysql implements store.Store on MySQL or MariaDB using
// database/sql and go-sql-driver/mysql. It is meant to live next to the
// WordPress tables in the same database, and its locks are the server's
// GET_LOCK names, which WordPress plugins can also take.
//
//	s, err := mysql.Open(ctx, "wp:secret@tcp(localhost:3306)/wordpress")
//	if err != nil { ... }
//	defer s.Close()
//	if err := s.Migrate(ctx); err != nil { ... }
package mysql
