package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"newsagent/internal/cadence"
	"newsagent/internal/config"
)

// Journal records run history in SQLite.
type Journal struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// EventKind classifies a journal event.
type EventKind string

const (
	EventCollected      EventKind = "collected"
	EventSkipped        EventKind = "skipped"
	EventFallback       EventKind = "recipient_fallback"
	EventNoRecipients   EventKind = "no_recipients"
	EventIncompleteYear EventKind = "incomplete_year"
	EventSent           EventKind = "sent"
	EventStateSaved     EventKind = "state_saved"
	EventRollupSaved    EventKind = "rollup_saved"
	EventError          EventKind = "error"
)

// Event is one journal entry within a run.
type Event struct {
	ID        int64             `json:"id"`
	RunID     string            `json:"run_id"`
	Report    cadence.ReportKey `json:"report,omitempty"`
	Cadence   cadence.Cadence   `json:"cadence,omitempty"`
	Kind      EventKind         `json:"kind"`
	Detail    string            `json:"detail,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Run is one recorded invocation.
type Run struct {
	ID               string     `json:"run_id"`
	Trigger          string     `json:"trigger"`
	RequestedCadence string     `json:"requested_cadence,omitempty"`
	Reports          []string   `json:"reports"`
	Proceed          bool       `json:"proceed"`
	Reason           string     `json:"reason"`
	LocalTime        string     `json:"local_time"`
	DecisionJSON     string     `json:"-"`
	DecidedAt        time.Time  `json:"decided_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	Outcome          string     `json:"outcome,omitempty"`
}

// Open opens the journal at the configured path.
func Open(cfg *config.Config) (*Journal, error) {
	return OpenPath(cfg.Paths.AuditDB)
}

// OpenPath opens or creates the journal database at path.
func OpenPath(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	journal := &Journal{db: db, path: path}
	if err := journal.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return journal, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Path returns the database location.
func (j *Journal) Path() string { return j.path }

// RecordDecision stores the gate decision that opens a run.
func (j *Journal) RecordDecision(ctx context.Context, runID string, requested cadence.Cadence, d cadence.Decision) error {
	if strings.TrimSpace(runID) == "" {
		return errors.New("record decision: run id is required")
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	reports := make([]string, 0, len(d.Reports))
	for _, r := range d.Reports {
		reports = append(reports, string(r))
	}
	return j.exec(ctx,
		`INSERT INTO runs (
            run_id, trigger, requested_cadence, reports, proceed, reason,
            local_time, decision_json, decided_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		string(d.Trigger),
		nullableString(string(requested)),
		strings.Join(reports, ","),
		boolToInt(d.Proceed),
		nullableString(d.Reason),
		d.Now.Format(time.RFC3339),
		string(payload),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
}

// RecordEvent appends an event to a run.
func (j *Journal) RecordEvent(ctx context.Context, event Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return j.exec(ctx,
		`INSERT INTO events (run_id, report, cadence, kind, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		event.RunID,
		nullableString(string(event.Report)),
		nullableString(string(event.Cadence)),
		string(event.Kind),
		nullableString(event.Detail),
		event.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
}

// FinishRun stamps the run's completion and outcome.
func (j *Journal) FinishRun(ctx context.Context, runID, outcome string) error {
	return j.exec(ctx,
		`UPDATE runs SET finished_at = ?, outcome = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		nullableString(outcome),
		runID,
	)
}

// Recent returns the newest runs first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY decided_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Events returns a run's events in insertion order.
func (j *Journal) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, report, cadence, kind, detail, created_at FROM events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev         Event
			report     sql.NullString
			cad        sql.NullString
			kind       string
			detail     sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&ev.ID, &ev.RunID, &report, &cad, &kind, &detail, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Report = cadence.ReportKey(report.String)
		ev.Cadence = cadence.Cadence(cad.String)
		ev.Kind = EventKind(kind)
		ev.Detail = detail.String
		ev.CreatedAt = parseTime(createdRaw)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Prune deletes runs decided before cutoff together with their events.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := j.db.ExecContext(ctx, `DELETE FROM runs WHERE decided_at < ?`, cutoff.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return removed, nil
}

const runColumns = "run_id, trigger, requested_cadence, reports, proceed, reason, local_time, decision_json, decided_at, finished_at, outcome"

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run         Run
		requested   sql.NullString
		reports     string
		proceed     int
		reason      sql.NullString
		decidedRaw  string
		finishedRaw sql.NullString
		outcome     sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Trigger,
		&requested,
		&reports,
		&proceed,
		&reason,
		&run.LocalTime,
		&run.DecisionJSON,
		&decidedRaw,
		&finishedRaw,
		&outcome,
	); err != nil {
		return Run{}, err
	}
	run.RequestedCadence = requested.String
	if reports != "" {
		run.Reports = strings.Split(reports, ",")
	}
	run.Proceed = proceed != 0
	run.Reason = reason.String
	run.DecidedAt = parseTime(decidedRaw)
	if finishedRaw.Valid {
		finished := parseTime(finishedRaw.String)
		run.FinishedAt = &finished
	}
	run.Outcome = outcome.String
	return run, nil
}

func (j *Journal) exec(ctx context.Context, query string, args ...any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return retryOnBusy(ctx, func() error {
		_, err := j.db.ExecContext(ctx, query, args...)
		return err
	})
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := range busyRetryAttempts {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTime(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
