// Package middleware provides composable middleware around module adapter
// calls.
//
// A [Middleware] wraps the push or pull call of one job. Middleware are
// composed with [Chain]; the first middleware in the slice is the
// outermost wrapper.
//
//	// logging → recover → adapter
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging]: logs module, entity, attempt, duration and outcome
//   - [Recover]: turns adapter panics into job failures
//   - [Importing]: marks pull jobs so local writes do not push back
//   - [Timeout]: bounds a single adapter call
//   - [Tracing]: wraps the call in an OpenTelemetry span
//   - [Metrics]: records per-call duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
package middleware
