// Package cron runs the periodic triggers of the sync queue on
// robfig/cron.
//
// Three tasks are registered by default:
//   - process-queue (@every 1m) runs one queue processor pass
//   - reap-stale (@every 5m) returns jobs stuck in processing to pending
//   - cleanup (@daily) deletes finished jobs older than the retention
//
// Every task runs behind SkipIfStillRunning, so a slow pass never overlaps
// the next tick within one process. Across processes the engine's run lock
// keeps passes exclusive, so running the scheduler on several hosts is
// safe.
//
//	s := cron.NewScheduler(cron.WithLogger(logger))
//	for _, t := range cron.Tasks(eng, cron.DefaultSchedules(), logger) {
//	    if err := s.Add(t); err != nil { ... }
//	}
//	s.Start(ctx)
//	defer s.Stop(ctx)
package cron
