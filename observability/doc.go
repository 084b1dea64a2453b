// Package observability provides an OpenTelemetry metrics extension for
// odoosync. The MetricsExtension implements lifecycle hooks to record
// counters for job enqueue, completion, retry and terminal failure, and
// for processor runs.
//
// For per-call tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
