// Package module defines the adapter contract between the sync engine and
// the per-integration modules that translate local entities to Odoo
// models, plus a registry the engine resolves adapters from.
//
// An adapter is registered once at wiring time:
//
//	reg := module.NewRegistry()
//	reg.Register(crmAdapter)
//
// The engine looks up job.Module in the registry and calls PushToOdoo or
// PullFromOdoo depending on the job direction. A missing adapter is a job
// failure, not a crash.
//
// [Generic] is a configurable adapter covering the common search-or-create
// push and read-and-upsert pull flows.
package module
