package rollups

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"newsagent/internal/cadence"
	"newsagent/internal/services"
)

// ErrIncompleteYear marks a year with fewer than twelve monthly entries.
var ErrIncompleteYear = errors.New("incomplete year")

// IncompleteYearError reports which months of a year have no rollup.
type IncompleteYearError struct {
	Report  cadence.ReportKey
	Year    int
	Missing []time.Month
}

func (e *IncompleteYearError) Error() string {
	return fmt.Sprintf("%s %d has %d of 12 monthly rollups", e.Report, e.Year, 12-len(e.Missing))
}

// Is reports ErrIncompleteYear as the error's category.
func (e *IncompleteYearError) Is(target error) bool { return target == ErrIncompleteYear }

// UpsertMonth stores entry as the rollup for (report, year, month),
// replacing any existing entry for that month. Items and summary bullets are
// sanitized on the way in.
func (d *Document) UpsertMonth(report cadence.ReportKey, year int, month time.Month, entry Entry) error {
	if year <= 0 || month < time.January || month > time.December {
		return fmt.Errorf("%w: invalid rollup month %04d-%02d", services.ErrValidation, year, int(month))
	}
	if d.Reports == nil {
		d.Reports = make(map[cadence.ReportKey][]Entry)
	}
	entry.Year = year
	entry.Month = month
	entry.GeneratedAt = entry.GeneratedAt.UTC()
	entry = sanitizeEntry(entry)

	entries := d.Reports[report]
	idx := slices.IndexFunc(entries, func(e Entry) bool { return e.Year == year && e.Month == month })
	if idx >= 0 {
		entries[idx] = entry
	} else {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].before(entries[j]) })
	d.Reports[report] = entries
	return nil
}

// Entries returns the report's entries in (year, month) order.
func (d *Document) Entries(report cadence.ReportKey) []Entry {
	return slices.Clone(d.Reports[report])
}

// Year returns the report's entries for year in ascending month order. With
// fewer than twelve entries it returns them together with an
// *IncompleteYearError; the caller decides whether a partial year is usable.
func (d *Document) Year(report cadence.ReportKey, year int) ([]Entry, error) {
	var out []Entry
	for _, entry := range d.Reports[report] {
		if entry.Year == year {
			out = append(out, entry)
		}
	}
	if len(out) == 12 {
		return out, nil
	}
	var missing []time.Month
	for m := time.January; m <= time.December; m++ {
		if !slices.ContainsFunc(out, func(e Entry) bool { return e.Month == m }) {
			missing = append(missing, m)
		}
	}
	return out, &IncompleteYearError{Report: report, Year: year, Missing: missing}
}

// MonthsIn returns how many monthly entries exist for the report and year.
func (d *Document) MonthsIn(report cadence.ReportKey, year int) int {
	count := 0
	for _, entry := range d.Reports[report] {
		if entry.Year == year {
			count++
		}
	}
	return count
}

// Prune keeps the newest maxMonths entries for report plus the entry for
// keep, if any, and returns how many were removed. maxMonths <= 0 disables pruning.
func (d *Document) Prune(report cadence.ReportKey, maxMonths int, keep cadence.Period) int {
	entries := d.Reports[report]
	if maxMonths <= 0 || len(entries) <= maxMonths {
		return 0
	}
	cut := len(entries) - maxMonths
	kept := make([]Entry, 0, maxMonths+1)
	for i, entry := range entries {
		if i >= cut || entry.Period() == keep {
			kept = append(kept, entry)
		}
	}
	d.Reports[report] = kept
	return len(entries) - len(kept)
}
