package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/odoosync/job"
)

// meterName is the instrumentation scope name for odoosync metrics.
const meterName = "github.com/xraph/odoosync"

// Metrics returns middleware that records per-call metrics using the
// global OTel MeterProvider.
//
// Instruments:
//   - odoosync.adapter.duration (Float64Histogram): call time in seconds
//   - odoosync.adapter.calls (Int64Counter): total calls
//
// Both carry module, entity_type, direction and status ("ok" or "error").
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the OTel API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"odoosync.adapter.duration",
		metric.WithDescription("Duration of module adapter calls in seconds"),
		metric.WithUnit("s"),
	)
	calls, _ := meter.Int64Counter(
		"odoosync.adapter.calls",
		metric.WithDescription("Total number of module adapter calls"),
		metric.WithUnit("{call}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("module", j.Module),
			attribute.String("entity_type", j.EntityType),
			attribute.String("direction", string(j.Direction)),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		calls.Add(ctx, 1, attrs)

		return err
	}
}
