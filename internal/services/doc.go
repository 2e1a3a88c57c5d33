// Package services defines shared utilities consumed by the cadence
// orchestrator and its adapters.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, report profiles, and cadences so
//     log lines and audit events can be correlated per invocation.
//   - Structured error markers plus the Wrap helper that keep failures
//     classifiable with errors.Is once they cross package boundaries.
//
// Use these helpers when wiring new adapters so operational behaviour (error
// handling, observability) stays uniform across the pipeline.
package services
