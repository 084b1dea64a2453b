package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/ext"
	"github.com/xraph/odoosync/failure"
	"github.com/xraph/odoosync/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobEnqueued  = (*MetricsExtension)(nil)
	_ ext.JobCompleted = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
	_ ext.JobRetrying  = (*MetricsExtension)(nil)
	_ ext.RunCompleted = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/odoosync/observability"

// MetricsExtension records queue lifecycle metrics through OpenTelemetry.
// Register it as an extension to track enqueue rates, completions,
// retries, terminal failures and processor runs.
type MetricsExtension struct {
	JobEnqueued  metric.Int64Counter
	JobCompleted metric.Int64Counter
	JobRetried   metric.Int64Counter
	JobFailed    metric.Int64Counter
	JobDuration  metric.Float64Histogram
	Runs         metric.Int64Counter
	RunJobs      metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Tests pass a meter from an sdk MeterProvider with a ManualReader.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// On error the OTel API returns noop instruments.
	enq, _ := meter.Int64Counter("odoosync.job.enqueued",
		metric.WithDescription("Sync jobs written to the queue"))
	done, _ := meter.Int64Counter("odoosync.job.completed",
		metric.WithDescription("Sync jobs completed"))
	retried, _ := meter.Int64Counter("odoosync.job.retried",
		metric.WithDescription("Sync jobs rescheduled after a failure"))
	failed, _ := meter.Int64Counter("odoosync.job.failed",
		metric.WithDescription("Sync jobs that exhausted their attempts"))
	dur, _ := meter.Float64Histogram("odoosync.job.duration",
		metric.WithDescription("Time from start to completion of a sync job"),
		metric.WithUnit("s"))
	runs, _ := meter.Int64Counter("odoosync.run.completed",
		metric.WithDescription("Queue processor runs"))
	runJobs, _ := meter.Int64Counter("odoosync.run.jobs",
		metric.WithDescription("Jobs handled by queue processor runs"))

	return &MetricsExtension{
		JobEnqueued:  enq,
		JobCompleted: done,
		JobRetried:   retried,
		JobFailed:    failed,
		JobDuration:  dur,
		Runs:         runs,
		RunJobs:      runJobs,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.JobEnqueued.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	attrs := jobAttrs(j)
	m.JobCompleted.Add(ctx, 1, attrs)
	m.JobDuration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.JobRetried.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, err error) error {
	m.JobFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("module", j.Module),
		attribute.String("direction", string(j.Direction)),
		attribute.String("kind", failure.Classify(err).String()),
	))
	return nil
}

// ── Run hooks ───────────────────────────────────────

// OnRunCompleted implements ext.RunCompleted.
func (m *MetricsExtension) OnRunCompleted(ctx context.Context, res *odoosync.RunResult) error {
	outcome := "ran"
	switch {
	case res.Skipped:
		outcome = "skipped"
	case res.BudgetExhausted:
		outcome = "budget_exhausted"
	}
	m.Runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("dry_run", res.DryRun),
	))
	if res.Succeeded > 0 {
		m.RunJobs.Add(ctx, int64(res.Succeeded), metric.WithAttributes(attribute.String("status", "ok")))
	}
	if res.Failed > 0 {
		m.RunJobs.Add(ctx, int64(res.Failed), metric.WithAttributes(attribute.String("status", "error")))
	}
	return nil
}

func jobAttrs(j *job.Job) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("module", j.Module),
		attribute.String("direction", string(j.Direction)),
	)
}
