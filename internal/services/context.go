package services

import "context"

type contextKey string

const (
	runIDKey   contextKey = "run_id"
	reportKey  contextKey = "report"
	cadenceKey contextKey = "cadence"
)

// WithRunID annotates context with the invocation identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the invocation identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithReport annotates context with the report profile being produced.
func WithReport(ctx context.Context, report string) context.Context {
	if report == "" {
		return ctx
	}
	return context.WithValue(ctx, reportKey, report)
}

// ReportFromContext returns the report profile if present.
func ReportFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(reportKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithCadence annotates context with the cadence tier being produced.
func WithCadence(ctx context.Context, cadence string) context.Context {
	if cadence == "" {
		return ctx
	}
	return context.WithValue(ctx, cadenceKey, cadence)
}

// CadenceFromContext returns the cadence tier if present.
func CadenceFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(cadenceKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
