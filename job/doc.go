// Package job defines the sync job entity, its status machine and the
// store interface.
//
// # Job Entity
//
// A [Job] is one queued sync operation for one entity. It embeds
// [odoosync.Entity] for timestamps and progresses through:
//
//	pending → processing → completed
//	pending → processing → pending (retry, ScheduledAt pushed out)
//	pending → processing → failed (Attempts reached MaxAttempts)
//	processing → pending (stale reaper)
//	failed → pending (operator retry, Attempts reset)
//
// Fields of note:
//   - Module / EntityType: resolve the adapter and its entity kind
//   - Direction: wp_to_odoo (push) or odoo_to_wp (pull)
//   - Priority: 1..10, lower values are dispatched first
//   - Attempts / MaxAttempts: the retry budget
//   - ScheduledAt: earliest time the job may be fetched
//
// # Building Jobs
//
// Hooks build jobs with [Push] or [Pull] and options:
//
//	j := job.Push("crm", "contact", job.ActionUpdate, 42,
//	    job.WithPriority(3),
//	    job.WithPayload(map[string]any{"email": "a@example.com"}),
//	)
//
// The engine package normalizes and enqueues them.
package job
