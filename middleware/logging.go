package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/odoosync/job"
)

// Logging returns middleware that logs adapter call start and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		logger.Debug("sync job started", append(jobAttrs(j),
			slog.Int64("wp_id", j.WPID),
			slog.Int64("odoo_id", j.OdooID),
			slog.Int("attempt", j.Attempts+1),
		)...)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("sync job failed", append(jobAttrs(j),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)...)
		} else {
			logger.Info("sync job completed", append(jobAttrs(j),
				slog.Duration("elapsed", elapsed),
			)...)
		}

		return err
	}
}
