package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/odoosync/job"
)

// tracerName is the instrumentation scope name for odoosync tracing.
const tracerName = "github.com/xraph/odoosync"

// Tracing returns middleware that wraps each adapter call in an
// OpenTelemetry span. With no TracerProvider configured globally the noop
// tracer is used.
//
// Span attributes: odoosync.job.id, odoosync.module, odoosync.entity_type,
// odoosync.direction, odoosync.action, odoosync.attempt.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "odoosync.job.dispatch",
			trace.WithAttributes(
				attribute.String("odoosync.job.id", j.ID.String()),
				attribute.String("odoosync.module", j.Module),
				attribute.String("odoosync.entity_type", j.EntityType),
				attribute.String("odoosync.direction", string(j.Direction)),
				attribute.String("odoosync.action", string(j.Action)),
				attribute.Int("odoosync.attempt", j.Attempts+1),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
