// Package worker dispatches a single sync job: it marks the job
// processing, resolves the owning module adapter, calls it through the
// middleware chain and applies the retry policy to the outcome.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/backoff"
	"github.com/xraph/odoosync/ext"
	"github.com/xraph/odoosync/failure"
	"github.com/xraph/odoosync/job"
	"github.com/xraph/odoosync/middleware"
	"github.com/xraph/odoosync/module"
)

// DryRunPrefix marks the error_message of jobs completed by a dry run.
const DryRunPrefix = "[dry-run]"

// Outcome reports what Execute did with one job.
type Outcome struct {
	// Status is the job's status after Execute.
	Status job.Status
	// Err is the adapter failure, or a store failure while marking the
	// job processing. Nil on success.
	Err  error
	Kind failure.Kind
	// NextRunAt is set when the job was rescheduled.
	NextRunAt time.Time
	Elapsed   time.Duration
}

// Succeeded reports whether the job completed.
func (o Outcome) Succeeded() bool { return o.Err == nil }

// Executor runs a single job through middleware and its module adapter,
// then records the outcome and emits lifecycle events.
type Executor struct {
	registry   *module.Registry
	extensions *ext.Registry
	store      job.Store
	backoff    backoff.Strategy
	mw         middleware.Middleware
	logger     *slog.Logger

	dryRun   bool
	errorMax int
	now      func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithMiddleware sets the middleware wrapped around adapter calls, in
// registration order.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Executor) { e.mw = middleware.Chain(mws...) }
}

// WithDryRun completes jobs without invoking adapters.
func WithDryRun(on bool) Option {
	return func(e *Executor) { e.dryRun = on }
}

// WithErrorLimit caps stored error messages at n runes.
func WithErrorLimit(n int) Option {
	return func(e *Executor) { e.errorMax = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *module.Registry,
	extensions *ext.Registry,
	store job.Store,
	bo backoff.Strategy,
	logger *slog.Logger,
	opts ...Option,
) *Executor {
	e := &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		backoff:    bo,
		mw:         middleware.Chain(),
		logger:     logger,
		errorMax:   odoosync.DefaultConfig().ErrorMessageMax,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute dispatches j. Adapter failures are folded into the Outcome and
// the job's row; Execute never panics on adapter misbehaviour when the
// Recover middleware is installed.
func (e *Executor) Execute(ctx context.Context, j *job.Job) Outcome {
	start := e.now()

	if err := e.store.UpdateStatus(ctx, j.ID, job.StatusProcessing, job.Update{}); err != nil {
		e.logger.Error("failed to mark job processing",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return Outcome{Status: j.Status, Err: fmt.Errorf("mark processing: %w", err)}
	}
	j.Status = job.StatusProcessing
	e.extensions.EmitJobStarted(ctx, j)

	if e.dryRun {
		return e.handleDryRun(ctx, j, start)
	}

	err := e.dispatch(ctx, j)
	now := e.now()
	elapsed := now.Sub(start)

	if err != nil {
		return e.handleFailure(ctx, j, err, now, elapsed)
	}
	return e.handleSuccess(ctx, j, now, elapsed)
}

func (e *Executor) dispatch(ctx context.Context, j *job.Job) error {
	adapter, ok := e.registry.Get(j.Module)
	if !ok {
		return fmt.Errorf("module %q: %w", j.Module, odoosync.ErrAdapterNotFound)
	}

	terminal := func(ctx context.Context) error {
		req := module.RequestFor(j)
		switch j.Direction {
		case job.DirectionPull:
			return adapter.PullFromOdoo(ctx, req)
		case job.DirectionPush:
			return adapter.PushToOdoo(ctx, req)
		}
		return fmt.Errorf("job %s: direction %q: %w", j.ID, j.Direction, odoosync.ErrInvalidJob)
	}
	return e.mw(ctx, j, terminal)
}

// handleSuccess marks the job completed and emits the lifecycle event.
func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, now time.Time, elapsed time.Duration) Outcome {
	j.Status = job.StatusCompleted
	j.ErrorMessage = ""
	j.ProcessedAt = &now

	if err := e.store.UpdateStatus(ctx, j.ID, job.StatusCompleted, job.Update{
		ErrorMessage: job.Ptr(""),
		ProcessedAt:  &now,
	}); err != nil {
		e.logger.Error("failed to update job after success",
			slog.String("job_id", j.ID.String()),
			slog.String("module", j.Module),
			slog.String("error", err.Error()),
		)
	}

	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return Outcome{Status: job.StatusCompleted, Elapsed: elapsed}
}

func (e *Executor) handleDryRun(ctx context.Context, j *job.Job, start time.Time) Outcome {
	now := e.now()
	ref := fmt.Sprintf("wp_id=%d", j.WPID)
	if j.Direction == job.DirectionPull {
		ref = fmt.Sprintf("odoo_id=%d", j.OdooID)
	}
	note := fmt.Sprintf("%s would %s %s/%s %s %s", DryRunPrefix, j.Direction, j.Module, j.EntityType, j.Action, ref)

	e.logger.Info("dry run: adapter not invoked",
		slog.String("job_id", j.ID.String()),
		slog.String("module", j.Module),
		slog.String("entity_type", j.EntityType),
		slog.String("direction", string(j.Direction)),
		slog.String("action", string(j.Action)),
	)

	j.Status = job.StatusCompleted
	j.ErrorMessage = note
	j.ProcessedAt = &now
	if err := e.store.UpdateStatus(ctx, j.ID, job.StatusCompleted, job.Update{
		ErrorMessage: &note,
		ProcessedAt:  &now,
	}); err != nil {
		e.logger.Error("failed to update job after dry run",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	elapsed := now.Sub(start)
	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return Outcome{Status: job.StatusCompleted, Elapsed: elapsed}
}

// handleFailure counts the attempt and either reschedules or fails the
// job. The classification only picks the log level: permanent errors
// still retry until max attempts.
func (e *Executor) handleFailure(ctx context.Context, j *job.Job, cause error, now time.Time, elapsed time.Duration) Outcome {
	kind := failure.Classify(cause)
	j.Attempts++
	j.ErrorMessage = job.TruncateError(cause.Error(), e.errorMax)

	if j.Attempts < j.MaxAttempts {
		return e.scheduleRetry(ctx, j, cause, kind, now, elapsed)
	}

	j.Status = job.StatusFailed
	j.ProcessedAt = &now
	if err := e.store.UpdateStatus(ctx, j.ID, job.StatusFailed, job.Update{
		Attempts:     &j.Attempts,
		ErrorMessage: &j.ErrorMessage,
		ProcessedAt:  &now,
	}); err != nil {
		e.logger.Error("failed to update job as failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	e.extensions.EmitJobFailed(ctx, j, cause)

	e.logger.Log(ctx, failure.Severity(kind), "sync job failed, attempts exhausted",
		slog.String("job_id", j.ID.String()),
		slog.String("module", j.Module),
		slog.String("entity_type", j.EntityType),
		slog.Int("attempts", j.Attempts),
		slog.String("kind", kind.String()),
		slog.String("error", j.ErrorMessage),
	)
	return Outcome{Status: job.StatusFailed, Err: cause, Kind: kind, Elapsed: elapsed}
}

// scheduleRetry puts the job back to pending after the backoff delay.
func (e *Executor) scheduleRetry(ctx context.Context, j *job.Job, cause error, kind failure.Kind, now time.Time, elapsed time.Duration) Outcome {
	delay := e.backoff.Delay(j.Attempts)
	nextRunAt := now.Add(delay)
	j.Status = job.StatusPending
	j.ScheduledAt = nextRunAt

	if err := e.store.UpdateStatus(ctx, j.ID, job.StatusPending, job.Update{
		Attempts:     &j.Attempts,
		ErrorMessage: &j.ErrorMessage,
		ScheduledAt:  &nextRunAt,
	}); err != nil {
		e.logger.Error("failed to update job for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	e.extensions.EmitJobRetrying(ctx, j, j.Attempts, nextRunAt)

	e.logger.Log(ctx, failure.Severity(kind), "sync job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("module", j.Module),
		slog.Int("attempt", j.Attempts),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.Duration("delay", delay),
		slog.String("kind", kind.String()),
	)
	return Outcome{Status: job.StatusPending, Err: cause, Kind: kind, NextRunAt: nextRunAt, Elapsed: elapsed}
}
