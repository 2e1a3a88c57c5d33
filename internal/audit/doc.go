// Package audit keeps a SQLite journal of every invocation: the gate
// decision, recipient fallbacks, skipped pairs, sends, and persistence
// outcomes, all keyed by run id.
//
// The journal is diagnostic only. Nothing in the pipeline reads it back to
// make decisions, and a missing or stale database never blocks a run.
package audit
