// Package notifications sends operator alerts to ntfy.
//
// Alerts cover delivered reports, report/cadence pairs skipped for lack of
// recipients, and run failures. When no topic is configured the service is a
// no-op, so the pipeline can call it unconditionally.
package notifications
