package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/id"
	"github.com/xraph/odoosync/job"
)

const jobColumns = `
	id, module, direction, entity_type, action, wp_id, odoo_id, payload,
	priority, status, attempts, max_attempts, error_message,
	scheduled_at, processed_at, created_at, updated_at`

// EnqueueJob persists a new job and returns its assigned ID.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) (id.JobID, error) {
	payload, err := encodePayload(j.Payload)
	if err != nil {
		return id.Nil, err
	}

	now := s.now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = now
	}
	if j.Status == "" {
		j.Status = job.StatusPending
	}

	var jid id.JobID
	err = s.pool.QueryRow(ctx, `
		INSERT INTO odoosync_jobs (
			module, direction, entity_type, action, wp_id, odoo_id, payload,
			priority, status, attempts, max_attempts, error_message,
			scheduled_at, processed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16
		) RETURNING id`,
		j.Module, string(j.Direction), j.EntityType, string(j.Action), j.WPID, j.OdooID, payload,
		j.Priority, string(j.Status), j.Attempts, j.MaxAttempts, j.ErrorMessage,
		j.ScheduledAt.UTC(), nullTime(j.ProcessedAt), j.CreatedAt.UTC(), j.UpdatedAt.UTC(),
	).Scan(&jid)
	if err != nil {
		return id.Nil, fmt.Errorf("odoosync/postgres: enqueue job: %w", err)
	}
	j.ID = jid
	return jid, nil
}

// FetchDue returns up to limit due pending jobs in dispatch order.
func (s *Store) FetchDue(ctx context.Context, limit int, now time.Time) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM odoosync_jobs
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY priority ASC, scheduled_at ASC, id ASC
		LIMIT $2`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("odoosync/postgres: fetch due jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM odoosync_jobs WHERE id = $1`, jobID.Int64())

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, odoosync.ErrJobNotFound
		}
		return nil, fmt.Errorf("odoosync/postgres: get job: %w", err)
	}
	return j, nil
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM odoosync_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}
	if opts.Module != "" {
		query += fmt.Sprintf(" AND module = $%d", argIdx)
		args = append(args, opts.Module)
		argIdx++
	}

	query += " ORDER BY id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("odoosync/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// UpdateStatus sets the status and merges the non-nil fields of u.
func (s *Store) UpdateStatus(ctx context.Context, jobID id.JobID, status job.Status, u job.Update) error {
	sets := []string{"status = $2", "updated_at = $3"}
	args := []any{jobID.Int64(), string(status), s.now()}

	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if u.Attempts != nil {
		add("attempts", *u.Attempts)
	}
	if u.ErrorMessage != nil {
		add("error_message", *u.ErrorMessage)
	}
	if u.ScheduledAt != nil {
		add("scheduled_at", u.ScheduledAt.UTC())
	}
	if u.ProcessedAt != nil {
		add("processed_at", nullTime(u.ProcessedAt))
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE odoosync_jobs SET `+strings.Join(sets, ", ")+` WHERE id = $1`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("odoosync/postgres: update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return odoosync.ErrJobNotFound
	}
	return nil
}

// CancelJob deletes a job that is still pending.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM odoosync_jobs WHERE id = $1 AND status = 'pending'`,
		jobID.Int64(),
	)
	if err != nil {
		return false, fmt.Errorf("odoosync/postgres: cancel job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// JobStats returns counts by status and the latest completion time.
func (s *Store) JobStats(ctx context.Context) (*job.Stats, error) {
	st := &job.Stats{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			MAX(processed_at) FILTER (WHERE status = 'completed')
		FROM odoosync_jobs`,
	).Scan(&st.Pending, &st.Processing, &st.Completed, &st.Failed, &st.LastCompletedAt)
	if err != nil {
		return nil, fmt.Errorf("odoosync/postgres: job stats: %w", err)
	}
	return st, nil
}

// RetryFailed moves failed jobs back to pending with attempts reset.
func (s *Store) RetryFailed(ctx context.Context) (int64, error) {
	now := s.now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE odoosync_jobs SET
			status = 'pending', attempts = 0, error_message = '',
			scheduled_at = $1, processed_at = NULL, updated_at = $1
		WHERE status = 'failed'`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("odoosync/postgres: retry failed jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CleanupJobs deletes finished jobs processed before now-olderThan.
func (s *Store) CleanupJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM odoosync_jobs
		WHERE status IN ('completed', 'failed')
		  AND processed_at IS NOT NULL
		  AND processed_at < $1`,
		s.now().Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("odoosync/postgres: cleanup jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ResetStale returns processing jobs not updated within timeout to pending.
func (s *Store) ResetStale(ctx context.Context, timeout time.Duration) (int64, error) {
	now := s.now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE odoosync_jobs SET status = 'pending', updated_at = $1
		WHERE status = 'processing' AND updated_at < $2`,
		now, now.Add(-timeout),
	)
	if err != nil {
		return 0, fmt.Errorf("odoosync/postgres: reset stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		direction string
		action    string
		status    string
		payload   []byte
	)
	err := row.Scan(
		&j.ID, &j.Module, &direction, &j.EntityType, &action, &j.WPID, &j.OdooID, &payload,
		&j.Priority, &status, &j.Attempts, &j.MaxAttempts, &j.ErrorMessage,
		&j.ScheduledAt, &j.ProcessedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Direction = job.Direction(direction)
	j.Action = job.Action(action)
	j.Status = job.Status(status)
	if j.Payload, err = decodePayload(payload); err != nil {
		return nil, err
	}
	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	jobs := []*job.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("odoosync/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("odoosync/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
