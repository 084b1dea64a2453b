package middleware

import (
	"context"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/job"
)

// Importing returns middleware that marks pull jobs with
// odoosync.WithImporting, so local writes made by the adapter do not
// enqueue a push of the same entity back to Odoo.
func Importing() Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.Direction == job.DirectionPull {
			ctx = odoosync.WithImporting(ctx)
		}
		return next(ctx)
	}
}
