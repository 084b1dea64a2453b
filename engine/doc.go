// Package engine is the queue processor. It wires the store, the module
// adapter registry, the middleware chain, the executor, the extension
// registry and the notification policy together, and exposes the
// operations the trigger surfaces call.
//
// The package exists to break an import cycle: the root odoosync package
// defines Config and Entity (imported by job, mapping and friends) and so
// cannot import those packages back. Engine sits above the subsystem
// packages and below the application layer.
//
// # Building an Engine
//
//	s, err := odoosync.New(
//	    odoosync.WithStore(pgStore),
//	    odoosync.WithLogger(logger),
//	)
//
//	eng, err := engine.Build(s,
//	    engine.WithRegistry(modules),
//	    engine.WithNotifier(notify.NewPolicy(notify.Log{Logger: logger}, kvStore)),
//	    engine.WithExtension(myExtension),
//	)
//
// # Enqueuing
//
//	eng.Enqueue(ctx, job.Push("crm", "contact", job.ActionUpdate, wpID,
//	    job.WithPayload(fields)))
//
// # Processing
//
// A periodic trigger calls [Engine.ProcessQueue]. Only one run proceeds at
// a time across every process sharing the lock service; the others return
// a RunResult with Skipped set.
//
//	res, err := eng.ProcessQueue(ctx)
//	res, err = eng.ProcessQueue(ctx, engine.DryRun())
//
// # Options
//
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the adapter call chain
//   - [WithBackoff]: set the retry backoff strategy
//   - [WithRegistry]: supply the module adapter registry
//   - [WithLocker]: use a lock service other than the store's
//   - [WithNotifier]: alert on runs with too many consecutive failures
//   - [WithTracerProvider] and [WithMeterProvider]: OpenTelemetry providers
package engine
