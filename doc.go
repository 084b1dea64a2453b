// Package odoosync provides a durable, retryable sync queue that moves
// WordPress entities to an Odoo ERP instance and back.
//
// Hook callbacks enqueue jobs into a job store. A periodic trigger runs the
// queue processor, which takes a run-wide lock, fetches a bounded batch of
// due jobs and dispatches each one to the module adapter that owns it.
// Failures are rescheduled with linear backoff until the job runs out of
// attempts.
//
// # Quick Start
//
//	s, err := odoosync.New(
//	    odoosync.WithStore(pgStore),
//	    odoosync.WithBatchSize(50),
//	)
//
// # Architecture
//
// Each subsystem (job, mapping, lock) defines its own store interface and a
// single backend implements all of them. Remote calls go through the odoo
// package, which is gated by a process-wide circuit breaker. Push creates are
// serialized per entity by the dedup package so concurrent triggers never
// create the same remote record twice.
package odoosync
