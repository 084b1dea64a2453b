package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobEnqueued  = "job.enqueued"
	ActionJobStarted   = "job.started"
	ActionJobCompleted = "job.completed"
	ActionJobRetrying  = "job.retrying"
	ActionJobFailed    = "job.failed"
	ActionRunCompleted = "run.completed"
)

// Audit event categories group related actions.
const (
	CategoryJob = "odoosync.job"
	CategoryRun = "odoosync.run"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob = "sync_job"
	ResourceRun = "processor_run"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobRetrying,
		ActionJobFailed,
		ActionRunCompleted,
	}
}
