package job

import (
	"context"
	"time"

	"github.com/xraph/odoosync/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Status filters by status. Empty means all statuses.
	Status Status
	// Module filters by owning module. Empty means all modules.
	Module string
}

// Update carries the optional fields merged by UpdateStatus. Nil fields
// are left untouched; a non-nil empty ErrorMessage clears the message and
// a non-nil zero ProcessedAt clears the processed timestamp.
type Update struct {
	Attempts     *int
	ErrorMessage *string
	ScheduledAt  *time.Time
	ProcessedAt  *time.Time
}

// Stats holds per-status counts and the most recent completion.
type Stats struct {
	Pending         int64      `json:"pending"`
	Processing      int64      `json:"processing"`
	Completed       int64      `json:"completed"`
	Failed          int64      `json:"failed"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
}

// Total returns the number of jobs across every status.
func (s *Stats) Total() int64 {
	return s.Pending + s.Processing + s.Completed + s.Failed
}

// Store defines the persistence contract for sync jobs.
type Store interface {
	// EnqueueJob persists j as pending, assigns its ascending ID and
	// returns it.
	EnqueueJob(ctx context.Context, j *Job) (id.JobID, error)

	// FetchDue returns up to limit pending jobs with ScheduledAt <= now,
	// ordered by priority then ScheduledAt then ID. Rows are not locked;
	// mutual exclusion comes from the run-wide lock.
	FetchDue(ctx context.Context, limit int, now time.Time) ([]*Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// ListJobs returns jobs newest first.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// UpdateStatus sets the status and merges the non-nil fields of u.
	UpdateStatus(ctx context.Context, jobID id.JobID, status Status, u Update) error

	// CancelJob deletes the job only while it is still pending and reports
	// whether it did.
	CancelJob(ctx context.Context, jobID id.JobID) (bool, error)

	// JobStats returns counts by status and the latest completion time.
	JobStats(ctx context.Context) (*Stats, error)

	// RetryFailed moves every failed job back to pending with attempts
	// reset to zero and returns how many moved.
	RetryFailed(ctx context.Context) (int64, error)

	// CleanupJobs deletes completed and failed jobs processed before
	// now-olderThan and returns how many were deleted.
	CleanupJobs(ctx context.Context, olderThan time.Duration) (int64, error)

	// ResetStale returns processing jobs not updated within timeout to
	// pending and reports how many were reset.
	ResetStale(ctx context.Context, timeout time.Duration) (int64, error)
}
