package job

import "time"

// Option adjusts a job before it is enqueued.
type Option func(*Job)

// WithPriority sets the dispatch priority. Lower values run first.
func WithPriority(p int) Option {
	return func(j *Job) {
		j.Priority = p
	}
}

// WithMaxAttempts sets the attempt ceiling past which a failure is terminal.
func WithMaxAttempts(n int) Option {
	return func(j *Job) {
		j.MaxAttempts = n
	}
}

// WithScheduledAt delays the first dispatch until t.
func WithScheduledAt(t time.Time) Option {
	return func(j *Job) {
		j.ScheduledAt = t
	}
}

// WithPayload sets the adapter-interpreted payload.
func WithPayload(p map[string]any) Option {
	return func(j *Job) {
		j.Payload = p
	}
}

// WithOdooID sets the known remote identifier.
func WithOdooID(odooID int64) Option {
	return func(j *Job) {
		j.OdooID = odooID
	}
}

// Push builds a WordPress to Odoo job.
func Push(module, entityType string, action Action, wpID int64, opts ...Option) *Job {
	j := &Job{
		Module:     module,
		Direction:  DirectionPush,
		EntityType: entityType,
		Action:     action,
		WPID:       wpID,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Pull builds an Odoo to WordPress job.
func Pull(module, entityType string, action Action, odooID int64, opts ...Option) *Job {
	j := &Job{
		Module:     module,
		Direction:  DirectionPull,
		EntityType: entityType,
		Action:     action,
		OdooID:     odooID,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Ptr returns a pointer to v. It keeps Update literals short.
func Ptr[T any](v T) *T { return &v }
