package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	mw "github.com/xraph/odoosync/middleware"
)

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("test")
}

func TestTracing_SpanAttributes(t *testing.T) {
	sr, tracer := setupTestTracer()
	m := mw.TracingWithTracer(tracer)
	j := newTestJob()

	if err := m(context.Background(), j, func(_ context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "odoosync.job.dispatch" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", spans[0].Status().Code)
	}

	expected := map[attribute.Key]attribute.Value{
		"odoosync.job.id":      attribute.StringValue("11"),
		"odoosync.module":      attribute.StringValue("crm"),
		"odoosync.entity_type": attribute.StringValue("contact"),
		"odoosync.direction":   attribute.StringValue("wp_to_odoo"),
		"odoosync.action":      attribute.StringValue("update"),
		"odoosync.attempt":     attribute.IntValue(3),
	}
	got := make(map[attribute.Key]attribute.Value)
	for _, kv := range spans[0].Attributes() {
		got[kv.Key] = kv.Value
	}
	for k, want := range expected {
		if got[k] != want {
			t.Errorf("attribute %s = %v, want %v", k, got[k].Emit(), want.Emit())
		}
	}
}

func TestTracing_RecordsError(t *testing.T) {
	sr, tracer := setupTestTracer()
	m := mw.TracingWithTracer(tracer)

	want := errors.New("odoo down")
	err := m(context.Background(), newTestJob(), func(_ context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}

	span := sr.Ended()[0]
	if span.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status().Code)
	}
	if span.Status().Description != "odoo down" {
		t.Errorf("description = %q", span.Status().Description)
	}
	if len(span.Events()) == 0 {
		t.Error("expected an exception event")
	}
}

func TestTracing_PropagatesSpanContext(t *testing.T) {
	_, tracer := setupTestTracer()
	m := mw.TracingWithTracer(tracer)

	_ = m(context.Background(), newTestJob(), func(ctx context.Context) error {
		if !trace.SpanFromContext(ctx).SpanContext().IsValid() {
			t.Error("adapter should see the dispatch span in ctx")
		}
		return nil
	})
}
