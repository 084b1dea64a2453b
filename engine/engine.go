package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/backoff"
	"github.com/xraph/odoosync/dedup"
	"github.com/xraph/odoosync/ext"
	"github.com/xraph/odoosync/failure"
	"github.com/xraph/odoosync/id"
	"github.com/xraph/odoosync/job"
	"github.com/xraph/odoosync/lock"
	"github.com/xraph/odoosync/mapping"
	mw "github.com/xraph/odoosync/middleware"
	"github.com/xraph/odoosync/module"
	"github.com/xraph/odoosync/notify"
	"github.com/xraph/odoosync/observability"
	"github.com/xraph/odoosync/worker"
)

// runFailureMessageMax bounds the per-failure message kept on a RunResult.
const runFailureMessageMax = 200

// Engine is the queue processor. Use Build to create one from a Syncer.
type Engine struct {
	syncer     *odoosync.Syncer
	cfg        odoosync.Config
	extensions *ext.Registry
	registry   *module.Registry
	jobs       job.Store
	mappings   mapping.Store
	locker     lock.Locker
	guard      *dedup.Guard
	bo         backoff.Strategy
	mws        []mw.Middleware
	policy     *notify.Policy
	logger     *slog.Logger
	now        func() time.Time

	executor    *worker.Executor
	dryExecutor *worker.Executor

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain. It runs inside the
// default stack, closest to the adapter.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy. If not set, the strategy
// named by Config.BackoffStrategy is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithRegistry supplies the module adapter registry.
func WithRegistry(r *module.Registry) Option {
	return func(eng *Engine) {
		eng.registry = r
	}
}

// WithLocker replaces the lock service. By default the store's own locks
// are used.
func WithLocker(l lock.Locker) Option {
	return func(eng *Engine) {
		eng.locker = l
	}
}

// WithNotifier installs the failure notification policy consulted after
// each run.
func WithNotifier(p *notify.Policy) Option {
	return func(eng *Engine) {
		eng.policy = p
	}
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(eng *Engine) {
		eng.now = now
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for both the metrics
// middleware and the observability extension. If not set, the global
// otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from a Syncer. The Syncer's store must implement
// job.Store and mapping.Store; it must implement lock.Locker unless
// WithLocker is given.
func Build(s *odoosync.Syncer, opts ...Option) (*Engine, error) {
	logger := s.Logger()
	store := s.Store()

	if store == nil {
		return nil, odoosync.ErrNoStore
	}

	js, ok := store.(job.Store)
	if !ok {
		return nil, fmt.Errorf("odoosync: store does not implement job.Store")
	}
	ms, ok := store.(mapping.Store)
	if !ok {
		return nil, fmt.Errorf("odoosync: store does not implement mapping.Store")
	}

	eng := &Engine{
		syncer:     s,
		cfg:        s.Config(),
		extensions: ext.NewRegistry(logger),
		jobs:       js,
		mappings:   ms,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if l, ok := store.(lock.Locker); ok {
		eng.locker = l
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.locker == nil {
		return nil, fmt.Errorf("odoosync: store does not implement lock.Locker and no locker was given")
	}
	if eng.registry == nil {
		eng.registry = module.NewRegistry()
	}
	if eng.bo == nil {
		bo, err := backoff.Named(eng.cfg.BackoffStrategy, eng.cfg.BackoffUnit, 0)
		if err != nil {
			return nil, err
		}
		eng.bo = bo
	}

	eng.guard = dedup.NewGuard(eng.locker, eng.mappings,
		dedup.WithTimeout(eng.cfg.PushLockTimeout),
		dedup.WithLogger(logger),
	)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/xraph/odoosync"))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware and the observability extension.
	var metricsMw mw.Middleware
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/xraph/odoosync"))
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter("github.com/xraph/odoosync/observability"))
	} else {
		metricsMw = mw.Metrics()
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// Default stack: recover → tracing → metrics → logging → importing → timeout.
	// A single adapter call may not outlive the run budget.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Importing(),
		mw.Timeout(logger, eng.cfg.TimeBudget),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	execOpts := []worker.Option{
		worker.WithMiddleware(allMws...),
		worker.WithErrorLimit(eng.cfg.ErrorMessageMax),
		worker.WithClock(eng.now),
	}
	eng.executor = worker.NewExecutor(eng.registry, eng.extensions, eng.jobs, eng.bo, logger,
		append(execOpts, worker.WithDryRun(eng.cfg.DryRun))...)
	eng.dryExecutor = worker.NewExecutor(eng.registry, eng.extensions, eng.jobs, eng.bo, logger,
		append(execOpts, worker.WithDryRun(true))...)

	s.SetExtensions(eng.extensions)
	return eng, nil
}

// Register adds a module adapter.
func (eng *Engine) Register(a module.Adapter) error {
	return eng.registry.Register(a)
}

// ──────────────────────────────────────────────────
// Enqueue
// ──────────────────────────────────────────────────

// Enqueue validates j, fills defaults and stores it as pending. It is the
// entry point for hook callbacks.
//
// A push enqueued while ctx carries the importing flag is dropped and
// (id.Nil, nil) is returned: the change came from Odoo and must not be
// sent back. Storage failures are logged and returned wrapped in
// odoosync.ErrEnqueueFailed; hooks may ignore them.
func (eng *Engine) Enqueue(ctx context.Context, j *job.Job) (id.JobID, error) {
	if j.Direction == job.DirectionPush && odoosync.IsImporting(ctx) {
		eng.logger.Debug("push enqueue suppressed while importing",
			slog.String("module", j.Module),
			slog.String("entity_type", j.EntityType),
			slog.Int64("wp_id", j.WPID),
		)
		return id.Nil, nil
	}
	if err := j.Validate(); err != nil {
		return id.Nil, err
	}
	j.Normalize(eng.now(), eng.cfg.DefaultMaxAttempts)

	jobID, err := eng.jobs.EnqueueJob(ctx, j)
	if err != nil {
		eng.logger.Error("failed to enqueue sync job",
			slog.String("module", j.Module),
			slog.String("entity_type", j.EntityType),
			slog.String("direction", string(j.Direction)),
			slog.String("error", err.Error()),
		)
		return id.Nil, fmt.Errorf("%w: %w", odoosync.ErrEnqueueFailed, err)
	}
	j.ID = jobID

	eng.extensions.EmitJobEnqueued(ctx, j)
	return jobID, nil
}

// ──────────────────────────────────────────────────
// Processing
// ──────────────────────────────────────────────────

// RunOption adjusts a single ProcessQueue call.
type RunOption func(*runConfig)

type runConfig struct {
	dryRun bool
}

// DryRun processes the batch without invoking adapters, whatever the
// configuration says.
func DryRun() RunOption {
	return func(c *runConfig) { c.dryRun = true }
}

// ProcessQueue runs one batch. If another processor holds the run lock it
// returns immediately with Skipped set. Jobs are dispatched one at a time
// in dispatch order until the batch is done, the time budget is spent or
// ctx is cancelled. Individual job failures never abort the batch.
func (eng *Engine) ProcessQueue(ctx context.Context, opts ...RunOption) (*odoosync.RunResult, error) {
	rc := runConfig{dryRun: eng.cfg.DryRun}
	for _, opt := range opts {
		opt(&rc)
	}
	exec := eng.executor
	if rc.dryRun {
		exec = eng.dryExecutor
	}

	start := eng.now()
	res := &odoosync.RunResult{StartedAt: start, DryRun: rc.dryRun}

	acquired, err := eng.locker.Acquire(ctx, lock.RunKey, eng.cfg.RunLockTimeout)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		res.Skipped = true
		eng.logger.Info("sync run skipped, another processor is running")
		return res, nil
	}
	defer func() {
		if relErr := eng.locker.Release(context.WithoutCancel(ctx), lock.RunKey); relErr != nil {
			eng.logger.Warn("failed to release run lock", slog.String("error", relErr.Error()))
		}
	}()

	batch, err := eng.jobs.FetchDue(ctx, eng.cfg.BatchSize, start)
	if err != nil {
		return nil, fmt.Errorf("fetch due jobs: %w", err)
	}
	res.Fetched = len(batch)

	consecutive := 0
	for _, j := range batch {
		if ctx.Err() != nil {
			break
		}
		if eng.cfg.TimeBudget > 0 && eng.now().Sub(start) >= eng.cfg.TimeBudget {
			res.BudgetExhausted = true
			break
		}

		out := exec.Execute(ctx, j)
		res.Processed++
		if out.Succeeded() {
			res.Succeeded++
			consecutive = 0
			continue
		}

		res.Failed++
		consecutive++
		res.MaxConsecutiveFailures = max(res.MaxConsecutiveFailures, consecutive)
		res.Failures = append(res.Failures, odoosync.RunFailure{
			JobID:    j.ID,
			Module:   j.Module,
			Kind:     failure.Classify(out.Err).String(),
			Terminal: out.Status == job.StatusFailed,
			Message:  job.TruncateError(out.Err.Error(), runFailureMessageMax),
		})
	}
	res.Elapsed = eng.now().Sub(start)

	eng.logger.Info("sync run completed",
		slog.Int("fetched", res.Fetched),
		slog.Int("processed", res.Processed),
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed),
		slog.Bool("dry_run", res.DryRun),
		slog.Bool("budget_exhausted", res.BudgetExhausted),
		slog.Duration("elapsed", res.Elapsed),
	)

	eng.extensions.EmitRunCompleted(ctx, res)

	if eng.policy != nil {
		if _, err := eng.policy.Observe(ctx, res); err != nil {
			eng.logger.Warn("failure notification error", slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// ──────────────────────────────────────────────────
// Maintenance
// ──────────────────────────────────────────────────

// Reap returns jobs stuck in processing longer than Config.StaleTimeout to
// pending.
func (eng *Engine) Reap(ctx context.Context) (int64, error) {
	n, err := eng.jobs.ResetStale(ctx, eng.cfg.StaleTimeout)
	if err != nil {
		return 0, fmt.Errorf("reset stale jobs: %w", err)
	}
	if n > 0 {
		eng.logger.Warn("stale processing jobs reset",
			slog.Int64("count", n),
			slog.Duration("timeout", eng.cfg.StaleTimeout),
		)
	}
	return n, nil
}

// Stats returns job counts by status.
func (eng *Engine) Stats(ctx context.Context) (*job.Stats, error) {
	return eng.jobs.JobStats(ctx)
}

// List returns jobs newest first.
func (eng *Engine) List(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return eng.jobs.ListJobs(ctx, opts)
}

// Job returns one job.
func (eng *Engine) Job(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return eng.jobs.GetJob(ctx, jobID)
}

// Retry moves every failed job back to pending with attempts reset.
func (eng *Engine) Retry(ctx context.Context) (int64, error) {
	n, err := eng.jobs.RetryFailed(ctx)
	if err != nil {
		return 0, err
	}
	eng.logger.Info("failed jobs requeued", slog.Int64("count", n))
	return n, nil
}

// Cleanup deletes finished jobs processed more than olderThan ago. A
// non-positive olderThan uses Config.CleanupAfter.
func (eng *Engine) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = eng.cfg.CleanupAfter
	}
	n, err := eng.jobs.CleanupJobs(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	eng.logger.Info("finished jobs cleaned up",
		slog.Int64("count", n),
		slog.Duration("older_than", olderThan),
	)
	return n, nil
}

// Cancel deletes a job that has not started and reports whether it did.
func (eng *Engine) Cancel(ctx context.Context, jobID id.JobID) (bool, error) {
	return eng.jobs.CancelJob(ctx, jobID)
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the module adapter registry.
func (eng *Engine) Registry() *module.Registry { return eng.registry }

// Mappings returns the entity mapping store.
func (eng *Engine) Mappings() mapping.Store { return eng.mappings }

// Guard returns the push dedup guard for adapters to share.
func (eng *Engine) Guard() *dedup.Guard { return eng.guard }

// Syncer returns the underlying Syncer.
func (eng *Engine) Syncer() *odoosync.Syncer { return eng.syncer }
