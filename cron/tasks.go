package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/engine"
)

// Task names.
const (
	TaskProcessQueue = "process-queue"
	TaskReapStale    = "reap-stale"
	TaskCleanup      = "cleanup"
)

// Processor is the part of the engine the periodic tasks drive.
type Processor interface {
	ProcessQueue(ctx context.Context, opts ...engine.RunOption) (*odoosync.RunResult, error)
	Reap(ctx context.Context) (int64, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Schedules holds the cron expression of each task. An empty expression
// disables the task.
type Schedules struct {
	ProcessQueue string `mapstructure:"process_queue"`
	ReapStale    string `mapstructure:"reap_stale"`
	Cleanup      string `mapstructure:"cleanup"`
}

// DefaultSchedules returns one processor pass a minute, a reap every five
// minutes and a daily cleanup.
func DefaultSchedules() Schedules {
	return Schedules{
		ProcessQueue: "@every 1m",
		ReapStale:    "@every 5m",
		Cleanup:      "@daily",
	}
}

// Tasks builds the periodic tasks around p. Cleanup uses the engine's
// configured retention.
func Tasks(p Processor, sch Schedules, logger *slog.Logger) []Task {
	if logger == nil {
		logger = slog.Default()
	}
	return []Task{
		{
			Name:     TaskProcessQueue,
			Schedule: sch.ProcessQueue,
			Run: func(ctx context.Context) error {
				res, err := p.ProcessQueue(ctx)
				if err != nil {
					return err
				}
				if res.Skipped {
					logger.Debug("processor run skipped, lock held elsewhere")
				}
				return nil
			},
		},
		{
			Name:     TaskReapStale,
			Schedule: sch.ReapStale,
			Run: func(ctx context.Context) error {
				_, err := p.Reap(ctx)
				return err
			},
		},
		{
			Name:     TaskCleanup,
			Schedule: sch.Cleanup,
			Run: func(ctx context.Context) error {
				n, err := p.Cleanup(ctx, 0)
				if err != nil {
					return err
				}
				logger.Info("finished jobs cleaned up", slog.Int64("deleted", n))
				return nil
			},
		},
	}
}
