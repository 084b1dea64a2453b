// Package audithook is an extension that turns sync lifecycle events into
// an audit trail.
//
// Every job hook and every completed run emits a structured [AuditEvent]
// through the [Recorder] interface. Severity is info for normal operations,
// warning for retries and skipped runs, and critical for jobs that ran out
// of attempts. [LogRecorder] writes the trail to a dedicated logger.
//
//	eng, err := engine.Build(s,
//	    engine.WithExtension(audithook.New(audithook.LogRecorder{Logger: auditLog})),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionRunCompleted,
//	    ),
//	)
package audithook
