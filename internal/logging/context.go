package logging

import (
	"context"
	"log/slog"

	"newsagent/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized key for the invocation identifier.
	FieldRunID = "run_id"
	// FieldReport is the standardized key for the report profile.
	FieldReport = "report"
	// FieldCadence is the standardized key for the cadence tier.
	FieldCadence = "cadence"
	// FieldEventType classifies a record for log queries.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType names the decision being logged.
	FieldDecisionType = "decision_type"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if report, ok := services.ReportFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldReport, report))
	}
	if cadence, ok := services.CadenceFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCadence, cadence))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
