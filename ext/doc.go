// Package ext defines the extension system for odoosync.
//
// Extensions are notified of lifecycle events and can react to them,
// for example by recording metrics or alerting an operator. Each hook is a
// separate interface so extensions opt in only to the events they care
// about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	func (e *MyExtension) OnJobFailed(ctx context.Context, j *job.Job, err error) error {
//	    log.Printf("job %s for %s failed for good: %v", j.ID, j.Module, err)
//	    return nil
//	}
//
// # Hooks
//
//   - [JobEnqueued]: a hook callback queued a job
//   - [JobStarted]: the processor marked a job processing
//   - [JobCompleted]: the adapter call succeeded
//   - [JobRetrying]: the job failed and was rescheduled
//   - [JobFailed]: the job ran out of attempts
//   - [RunCompleted]: a processor run finished
//   - [Shutdown]: the syncer is closing
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never reach the processor.
package ext
