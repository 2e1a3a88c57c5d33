package recipients

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"newsagent/internal/cadence"
)

var (
	// ErrSourceAbsent means a source has nothing for the requested pair.
	ErrSourceAbsent = errors.New("recipient source absent")
	// ErrNoRecipientsConfigured means no source yielded a list; delivery must not be attempted.
	ErrNoRecipientsConfigured = errors.New("no recipients configured")
)

// MalformedSourceError reports a source that is present but unusable.
type MalformedSourceError struct {
	Source string
	Err    error
}

func (e *MalformedSourceError) Error() string {
	return fmt.Sprintf("recipient source %s is malformed: %v", e.Source, e.Err)
}

func (e *MalformedSourceError) Unwrap() error { return e.Err }

// Source is one origin in the cascade.
type Source interface {
	Name() string
	// Lookup returns the list for the pair, ErrSourceAbsent when the source
	// has none, or a *MalformedSourceError when it cannot be read.
	Lookup(report cadence.ReportKey, c cadence.Cadence) ([]string, error)
}

// Fallback records a source that was skipped because it was malformed.
type Fallback struct {
	Source  string          `json:"source"`
	Cadence cadence.Cadence `json:"cadence"`
	Reason  string          `json:"reason"`
}

// Resolution is the outcome for one (report, cadence) pair.
type Resolution struct {
	Report     cadence.ReportKey `json:"report"`
	Cadence    cadence.Cadence   `json:"cadence"`
	Recipients []string          `json:"recipients"`
	Source     string            `json:"source"`
	Fallbacks  []Fallback        `json:"fallbacks,omitempty"`
}

// Resolve walks sources in order for the pair. Yearly resolves the union of
// the daily, weekly, and monthly lists and fails only when all three do.
func Resolve(report cadence.ReportKey, c cadence.Cadence, sources []Source) (Resolution, error) {
	if c == cadence.Yearly {
		return resolveYearly(report, sources)
	}
	res := Resolution{Report: report, Cadence: c}
	for _, src := range sources {
		list, err := src.Lookup(report, c)
		if err != nil {
			if errors.Is(err, ErrSourceAbsent) {
				continue
			}
			res.Fallbacks = append(res.Fallbacks, Fallback{Source: src.Name(), Cadence: c, Reason: err.Error()})
			continue
		}
		list = Dedupe(list)
		if len(list) == 0 {
			continue
		}
		res.Recipients = list
		res.Source = src.Name()
		return res, nil
	}
	return res, fmt.Errorf("%w for %s/%s", ErrNoRecipientsConfigured, report, c)
}

func resolveYearly(report cadence.ReportKey, sources []Source) (Resolution, error) {
	res := Resolution{Report: report, Cadence: cadence.Yearly}
	var union, origins []string
	for _, c := range []cadence.Cadence{cadence.Daily, cadence.Weekly, cadence.Monthly} {
		part, err := Resolve(report, c, sources)
		res.Fallbacks = append(res.Fallbacks, part.Fallbacks...)
		if err != nil {
			continue
		}
		union = append(union, part.Recipients...)
		origins = append(origins, fmt.Sprintf("%s=%s", c, part.Source))
	}
	if len(origins) == 0 {
		return res, fmt.Errorf("%w for %s/%s", ErrNoRecipientsConfigured, report, cadence.Yearly)
	}
	res.Recipients = Dedupe(union)
	res.Source = strings.Join(origins, ",")
	return res, nil
}

// Dedupe trims addresses and removes case-insensitive duplicates, keeping
// the first-seen spelling and order.
func Dedupe(list []string) []string {
	fold := cases.Fold()
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, addr := range list {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		key := fold.String(addr)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}
