// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: ordered due-job fetch, ON CONFLICT mapping upserts, session
// advisory locks on pinned connections, embedded SQL migrations.
package postgres
