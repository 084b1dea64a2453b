// Package middleware provides composable middleware around adapter calls.
// Middleware wraps the push or pull call of one job synchronously and can
// modify execution (recover from panics, mark imports, log, trace, etc.).
package middleware

import (
	"context"

	"github.com/xraph/odoosync/job"
)

// Handler is the terminal function that calls the module adapter.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the job being dispatched and the next
// handler to call. Middleware must call next to continue the chain unless
// it short-circuits with an error.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// The first middleware in the list is the outermost wrapper.
//
// Example: Chain(logging, recover, importing) executes as:
//
//	logging → recover → importing → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}

func jobAttrs(j *job.Job) []any {
	return []any{
		"job_id", j.ID.String(),
		"module", j.Module,
		"entity_type", j.EntityType,
		"direction", string(j.Direction),
		"action", string(j.Action),
	}
}
