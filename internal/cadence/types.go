package cadence

import (
	"fmt"
	"strings"
	"time"

	"newsagent/internal/services"
)

// Cadence is a recurrence tier.
type Cadence string

const (
	Daily   Cadence = "daily"
	Weekly  Cadence = "weekly"
	Monthly Cadence = "monthly"
	Yearly  Cadence = "yearly"
)

// AllCadences lists every cadence in ascending period length.
var AllCadences = []Cadence{Daily, Weekly, Monthly, Yearly}

// ParseCadence converts a user or CI supplied string into a Cadence.
func ParseCadence(value string) (Cadence, error) {
	switch c := Cadence(strings.ToLower(strings.TrimSpace(value))); c {
	case Daily, Weekly, Monthly, Yearly:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown cadence %q", services.ErrValidation, value)
	}
}

func (c Cadence) String() string { return string(c) }

// WritesState reports whether runs of this cadence own the processed-item
// document. Only daily runs mark items seen or prune.
func (c Cadence) WritesState() bool { return c == Daily }

// UnmarshalText rejects unknown cadences when decoding documents.
func (c *Cadence) UnmarshalText(text []byte) error {
	parsed, err := ParseCadence(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ReportKey identifies a report profile.
type ReportKey string

const (
	Cybermed   ReportKey = "cybermed"
	Cyberlurch ReportKey = "cyberlurch"
)

// AllReports lists every report profile.
var AllReports = []ReportKey{Cybermed, Cyberlurch}

// ParseReport converts a string into a ReportKey.
func ParseReport(value string) (ReportKey, error) {
	switch r := ReportKey(strings.ToLower(strings.TrimSpace(value))); r {
	case Cybermed, Cyberlurch:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown report %q", services.ErrValidation, value)
	}
}

// ParseReports accepts a comma separated selection. "both", "all" and the
// empty string select every report.
func ParseReports(value string) ([]ReportKey, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	switch trimmed {
	case "", "both", "all":
		return append([]ReportKey(nil), AllReports...), nil
	}
	var out []ReportKey
	seen := make(map[ReportKey]bool)
	for _, part := range strings.Split(trimmed, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		report, err := ParseReport(part)
		if err != nil {
			return nil, err
		}
		if seen[report] {
			continue
		}
		seen[report] = true
		out = append(out, report)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty report selection %q", services.ErrValidation, value)
	}
	return out, nil
}

func (r ReportKey) String() string { return string(r) }

// UnmarshalText rejects unknown report keys when decoding documents.
func (r *ReportKey) UnmarshalText(text []byte) error {
	parsed, err := ParseReport(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// TriggerKind distinguishes cron invocations from operator requests.
type TriggerKind string

const (
	Scheduled TriggerKind = "scheduled"
	Manual    TriggerKind = "manual"
)

// ParseTrigger accepts the canonical names plus the CI event names
// "schedule" and "workflow_dispatch".
func ParseTrigger(value string) (TriggerKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "scheduled", "schedule", "cron":
		return Scheduled, nil
	case "manual", "workflow_dispatch", "dispatch":
		return Manual, nil
	default:
		return "", fmt.Errorf("%w: unknown trigger %q", services.ErrValidation, value)
	}
}

func (t TriggerKind) String() string { return string(t) }

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekday accepts short or long English weekday names.
func ParseWeekday(value string) (time.Weekday, error) {
	day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown weekday %q", services.ErrValidation, value)
	}
	return day, nil
}

// Period is a target reporting period. Month zero means the whole year.
type Period struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month,omitempty"`
}

// IsZero reports whether no period is set.
func (p Period) IsZero() bool { return p.Year == 0 }

func (p Period) String() string {
	switch {
	case p.IsZero():
		return ""
	case p.Month == 0:
		return fmt.Sprintf("%04d", p.Year)
	default:
		return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
	}
}

// Bounds returns the half-open instant range covered by the period in loc.
func (p Period) Bounds(loc *time.Location) (time.Time, time.Time) {
	if p.Month == 0 {
		start := time.Date(p.Year, time.January, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(1, 0, 0)
	}
	start := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}
