package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/odoosync/job"
)

// Timeout returns middleware that bounds a single adapter call. A
// non-positive d disables it. The adapter must honor ctx for the deadline
// to take effect.
func Timeout(logger *slog.Logger, d time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if d > 0 {
			logger.Debug("adapter timeout set",
				slog.String("job_id", j.ID.String()),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
