package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/odoosync/job"
)

// Recover returns middleware that turns an adapter panic into a job failure.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("module adapter panicked", append(jobAttrs(j),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)...)
				retErr = fmt.Errorf("panic in %s adapter: %v", j.Module, r)
			}
		}()
		return next(ctx)
	}
}
