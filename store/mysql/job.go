package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/id"
	"github.com/xraph/odoosync/job"
)

const jobColumns = `
	id, module, direction, entity_type, action, wp_id, odoo_id, payload,
	priority, status, attempts, max_attempts, error_message,
	scheduled_at, processed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

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

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO odoosync_jobs (
			module, direction, entity_type, action, wp_id, odoo_id, payload,
			priority, status, attempts, max_attempts, error_message,
			scheduled_at, processed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.Module, string(j.Direction), j.EntityType, string(j.Action), j.WPID, j.OdooID, payload,
		j.Priority, string(j.Status), j.Attempts, j.MaxAttempts, j.ErrorMessage,
		j.ScheduledAt.UTC(), nullTime(j.ProcessedAt), j.CreatedAt.UTC(), j.UpdatedAt.UTC(),
	)
	if err != nil {
		return id.Nil, fmt.Errorf("odoosync/mysql: enqueue job: %w", err)
	}
	n, err := res.LastInsertId()
	if err != nil {
		return id.Nil, fmt.Errorf("odoosync/mysql: enqueue job id: %w", err)
	}
	j.ID = id.JobID(n)
	return j.ID, nil
}

// FetchDue returns up to limit due pending jobs in dispatch order.
func (s *Store) FetchDue(ctx context.Context, limit int, now time.Time) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM odoosync_jobs
		WHERE status = 'pending' AND scheduled_at <= ?
		ORDER BY priority ASC, scheduled_at ASC, id ASC
		LIMIT ?`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("odoosync/mysql: fetch due jobs: %w", err)
	}
	return collectJobs(rows)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM odoosync_jobs WHERE id = ?`, jobID.Int64())
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, odoosync.ErrJobNotFound
		}
		return nil, fmt.Errorf("odoosync/mysql: get job: %w", err)
	}
	return j, nil
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM odoosync_jobs WHERE 1=1`
	var args []any

	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	if opts.Module != "" {
		query += " AND module = ?"
		args = append(args, opts.Module)
	}
	query += " ORDER BY id DESC"

	// MySQL only accepts OFFSET after a LIMIT.
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := int64(opts.Limit)
		if limit <= 0 {
			limit = math.MaxInt64
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("odoosync/mysql: list jobs: %w", err)
	}
	return collectJobs(rows)
}

// UpdateStatus sets the status and merges the non-nil fields of u.
func (s *Store) UpdateStatus(ctx context.Context, jobID id.JobID, status job.Status, u job.Update) error {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(status), s.now()}

	if u.Attempts != nil {
		sets = append(sets, "attempts = ?")
		args = append(args, *u.Attempts)
	}
	if u.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *u.ErrorMessage)
	}
	if u.ScheduledAt != nil {
		sets = append(sets, "scheduled_at = ?")
		args = append(args, u.ScheduledAt.UTC())
	}
	if u.ProcessedAt != nil {
		sets = append(sets, "processed_at = ?")
		args = append(args, nullTime(u.ProcessedAt))
	}
	args = append(args, jobID.Int64())

	res, err := s.db.ExecContext(ctx,
		`UPDATE odoosync_jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("odoosync/mysql: update job status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return odoosync.ErrJobNotFound
	}
	return nil
}

// CancelJob deletes a job that is still pending.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM odoosync_jobs WHERE id = ? AND status = 'pending'`,
		jobID.Int64(),
	)
	if err != nil {
		return false, fmt.Errorf("odoosync/mysql: cancel job: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// JobStats returns counts by status and the latest completion time.
func (s *Store) JobStats(ctx context.Context) (*job.Stats, error) {
	var last sql.NullTime
	st := &job.Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			MAX(CASE WHEN status = 'completed' THEN processed_at END)
		FROM odoosync_jobs`,
	).Scan(&st.Pending, &st.Processing, &st.Completed, &st.Failed, &last)
	if err != nil {
		return nil, fmt.Errorf("odoosync/mysql: job stats: %w", err)
	}
	st.LastCompletedAt = timePtr(last)
	return st, nil
}

// RetryFailed moves failed jobs back to pending with attempts reset.
func (s *Store) RetryFailed(ctx context.Context) (int64, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE odoosync_jobs SET
			status = 'pending', attempts = 0, error_message = '',
			scheduled_at = ?, processed_at = NULL, updated_at = ?
		WHERE status = 'failed'`,
		now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("odoosync/mysql: retry failed jobs: %w", err)
	}
	return res.RowsAffected()
}

// CleanupJobs deletes finished jobs processed before now-olderThan.
func (s *Store) CleanupJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM odoosync_jobs
		WHERE status IN ('completed', 'failed')
		  AND processed_at IS NOT NULL
		  AND processed_at < ?`,
		s.now().Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("odoosync/mysql: cleanup jobs: %w", err)
	}
	return res.RowsAffected()
}

// ResetStale returns processing jobs not updated within timeout to pending.
func (s *Store) ResetStale(ctx context.Context, timeout time.Duration) (int64, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE odoosync_jobs SET status = 'pending', updated_at = ?
		WHERE status = 'processing' AND updated_at < ?`,
		now, now.Add(-timeout),
	)
	if err != nil {
		return 0, fmt.Errorf("odoosync/mysql: reset stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func scanJob(row rowScanner) (*job.Job, error) {
	var (
		j                         job.Job
		direction, action, status string
		payload                   []byte
		processed                 sql.NullTime
		rawID                     int64
	)
	err := row.Scan(
		&rawID, &j.Module, &direction, &j.EntityType, &action, &j.WPID, &j.OdooID, &payload,
		&j.Priority, &status, &j.Attempts, &j.MaxAttempts, &j.ErrorMessage,
		&j.ScheduledAt, &processed, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.ID = id.JobID(rawID)
	j.Direction = job.Direction(direction)
	j.Action = job.Action(action)
	j.Status = job.Status(status)
	j.ScheduledAt = j.ScheduledAt.UTC()
	j.ProcessedAt = timePtr(processed)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return nil, fmt.Errorf("odoosync/mysql: decode payload: %w", err)
		}
	}
	return &j, nil
}

func collectJobs(rows *sql.Rows) ([]*job.Job, error) {
	defer rows.Close()

	jobs := []*job.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("odoosync/mysql: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("odoosync/mysql: iterate job rows: %w", err)
	}
	return jobs, nil
}

// encodePayload returns the JSON column value; a nil map is stored as NULL.
func encodePayload(p map[string]any) (any, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("odoosync/mysql: encode payload: %w", err)
	}
	return string(data), nil
}
