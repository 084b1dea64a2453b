package job

import (
	"fmt"
	"time"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/id"
)

// Status represents the lifecycle status of a job.
type Status string

const (
	// StatusPending means the job waits for a run to pick it up.
	StatusPending Status = "pending"
	// StatusProcessing means a run is dispatching the job right now.
	StatusProcessing Status = "processing"
	// StatusCompleted means the adapter call succeeded (or was a dry run).
	StatusCompleted Status = "completed"
	// StatusFailed means the job ran out of attempts.
	StatusFailed Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further automatic processing happens.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Direction tells which side of the sync is the source of truth for a job.
type Direction string

const (
	// DirectionPush sends a WordPress entity to Odoo.
	DirectionPush Direction = "wp_to_odoo"
	// DirectionPull brings an Odoo record into WordPress.
	DirectionPull Direction = "odoo_to_wp"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionPush || d == DirectionPull
}

// Action is the entity operation to replicate.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Priority bounds. Lower values are dispatched first.
const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5
)

// DefaultMaxAttempts is used when a job is enqueued without a ceiling.
const DefaultMaxAttempts = 3

// Job is one queued sync operation for one entity.
type Job struct {
	odoosync.Entity

	ID           id.JobID       `json:"id"`
	Module       string         `json:"module"`
	Direction    Direction      `json:"direction"`
	EntityType   string         `json:"entity_type"`
	Action       Action         `json:"action"`
	WPID         int64          `json:"wp_id"`
	OdooID       int64          `json:"odoo_id"`
	Payload      map[string]any `json:"payload,omitempty"`
	Priority     int            `json:"priority"`
	Status       Status         `json:"status"`
	Attempts     int            `json:"attempts"`
	MaxAttempts  int            `json:"max_attempts"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ScheduledAt  time.Time      `json:"scheduled_at"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
}

// Validate checks the fields a caller must supply before enqueue.
func (j *Job) Validate() error {
	if j.Module == "" {
		return fmt.Errorf("%w: module is required", odoosync.ErrInvalidJob)
	}
	if j.EntityType == "" {
		return fmt.Errorf("%w: entity type is required", odoosync.ErrInvalidJob)
	}
	if !j.Direction.Valid() {
		return fmt.Errorf("%w: unknown direction %q", odoosync.ErrInvalidJob, j.Direction)
	}
	if !j.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", odoosync.ErrInvalidJob, j.Action)
	}
	return nil
}

// Normalize fills defaults for an enqueue: pending status, zero attempts,
// clamped priority, default max attempts and a scheduled time of now when
// none was given.
func (j *Job) Normalize(now time.Time, defaultMaxAttempts int) {
	j.Status = StatusPending
	j.Attempts = 0
	j.ErrorMessage = ""
	j.ProcessedAt = nil
	j.Priority = ClampPriority(j.Priority)
	if j.MaxAttempts <= 0 {
		if defaultMaxAttempts <= 0 {
			defaultMaxAttempts = DefaultMaxAttempts
		}
		j.MaxAttempts = defaultMaxAttempts
	}
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = now
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
}

// Due reports whether the job may be dispatched at now.
func (j *Job) Due(now time.Time) bool {
	return j.Status == StatusPending && !j.ScheduledAt.After(now)
}

// ClampPriority maps p into [MinPriority, MaxPriority]. Zero means default.
func ClampPriority(p int) int {
	switch {
	case p == 0:
		return DefaultPriority
	case p < MinPriority:
		return MinPriority
	case p > MaxPriority:
		return MaxPriority
	}
	return p
}

// TruncateError bounds msg to limit runes. A non-positive limit disables it.
func TruncateError(msg string, limit int) string {
	if limit <= 0 {
		return msg
	}
	r := []rune(msg)
	if len(r) <= limit {
		return msg
	}
	return string(r[:limit])
}

// Less orders due jobs for dispatch: priority ascending, then scheduled
// time ascending, then ID ascending.
func Less(a, b *Job) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.ScheduledAt.Equal(b.ScheduledAt) {
		return a.ScheduledAt.Before(b.ScheduledAt)
	}
	return a.ID < b.ID
}
