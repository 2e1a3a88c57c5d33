package state

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"newsagent/internal/cadence"
)

// ErrStateMutationForbidden is returned when a read-only store is asked to change.
var ErrStateMutationForbidden = errors.New("state mutation forbidden in read-only mode")

// Mode selects whether a Store may mutate its document.
type Mode int

const (
	ReadWrite Mode = iota
	ReadOnly
)

func (m Mode) String() string {
	if m == ReadOnly {
		return "read-only"
	}
	return "read-write"
}

// ModeFor returns the access mode a run of the given cadence is allowed.
func ModeFor(c cadence.Cadence) Mode {
	if c.WritesState() {
		return ReadWrite
	}
	return ReadOnly
}

// Store wraps a Document with dedup queries and guarded mutations.
type Store struct {
	doc   *Document
	mode  Mode
	dirty bool
}

// NewStore wraps doc. A nil doc is replaced with an empty document.
func NewStore(doc *Document, mode Mode) *Store {
	if doc == nil {
		doc = NewDocument()
	}
	if doc.Reports == nil {
		doc.Reports = make(map[cadence.ReportKey]*ReportState)
	}
	return &Store{doc: doc, mode: mode}
}

// Document returns the wrapped document.
func (s *Store) Document() *Document { return s.doc }

// Mode returns the store's access mode.
func (s *Store) Mode() Mode { return s.mode }

// Dirty reports whether any mutation changed the document.
func (s *Store) Dirty() bool { return s.dirty }

func (s *Store) guard(op string) error {
	if s.mode == ReadOnly {
		return fmt.Errorf("%s: %w", op, ErrStateMutationForbidden)
	}
	return nil
}

func (s *Store) report(report cadence.ReportKey, create bool) *ReportState {
	rs := s.doc.Reports[report]
	if rs == nil && create {
		rs = &ReportState{Items: make(map[string]time.Time)}
		s.doc.Reports[report] = rs
	}
	if rs != nil && rs.Items == nil && create {
		rs.Items = make(map[string]time.Time)
	}
	return rs
}

// HasSeen reports whether fingerprint was already processed for report.
func (s *Store) HasSeen(report cadence.ReportKey, fingerprint string) bool {
	rs := s.report(report, false)
	if rs == nil {
		return false
	}
	_, ok := rs.Items[fingerprint]
	return ok
}

// MarkSeen records fingerprint for report. Marking a known fingerprint is a
// no-op and keeps the original first-seen time.
func (s *Store) MarkSeen(report cadence.ReportKey, fingerprint string, at time.Time) error {
	if err := s.guard("mark seen"); err != nil {
		return err
	}
	if fingerprint == "" {
		return errors.New("mark seen: empty fingerprint")
	}
	rs := s.report(report, true)
	if _, ok := rs.Items[fingerprint]; ok {
		return nil
	}
	rs.Items[fingerprint] = at.UTC()
	s.dirty = true
	return nil
}

// Prune removes records older than retentionDays that also lie outside the
// protect window. Records at the cutoff are kept.
func (s *Store) Prune(report cadence.ReportKey, retentionDays int, protect time.Duration, now time.Time) (int, error) {
	if err := s.guard("prune"); err != nil {
		return 0, err
	}
	if retentionDays < 0 || protect < 0 {
		return 0, errors.New("prune: retention and protect window must not be negative")
	}
	rs := s.report(report, false)
	if rs == nil {
		return 0, nil
	}
	cutoff := now.Add(-max(time.Duration(retentionDays)*24*time.Hour, protect))
	removed := 0
	for fp, seen := range rs.Items {
		if seen.Before(cutoff) {
			delete(rs.Items, fp)
			removed++
		}
	}
	if removed > 0 {
		s.dirty = true
	}
	return removed, nil
}

// PruneCap keeps at most maxEntries records for report, dropping the oldest
// first. Records inside the protect window are never dropped, so the count
// may stay above the cap. maxEntries <= 0 disables the cap.
func (s *Store) PruneCap(report cadence.ReportKey, maxEntries int, protect time.Duration, now time.Time) (int, error) {
	if err := s.guard("prune cap"); err != nil {
		return 0, err
	}
	rs := s.report(report, false)
	if rs == nil || maxEntries <= 0 || len(rs.Items) <= maxEntries {
		return 0, nil
	}
	records := s.Records(report)
	horizon := now.Add(-protect)
	excess := len(records) - maxEntries
	removed := 0
	for _, rec := range records {
		if removed == excess || !rec.FirstSeenAt.Before(horizon) {
			break
		}
		delete(rs.Items, rec.Fingerprint)
		removed++
	}
	if removed > 0 {
		s.dirty = true
	}
	return removed, nil
}

// RecordRun stores the completion time of a successful run.
func (s *Store) RecordRun(report cadence.ReportKey, c cadence.Cadence, at time.Time) error {
	if err := s.guard("record run"); err != nil {
		return err
	}
	rs := s.report(report, true)
	if rs.LastRuns == nil {
		rs.LastRuns = make(map[cadence.Cadence]time.Time)
	}
	rs.LastRuns[c] = at.UTC()
	s.dirty = true
	return nil
}

// LastRun returns the last successful run of cadence c for report.
func (s *Store) LastRun(report cadence.ReportKey, c cadence.Cadence) (time.Time, bool) {
	rs := s.report(report, false)
	if rs == nil {
		return time.Time{}, false
	}
	at, ok := rs.LastRuns[c]
	return at, ok
}

// LastRuns returns the last successful run of cadence c for every report that has one.
func (s *Store) LastRuns(c cadence.Cadence) map[cadence.ReportKey]time.Time {
	out := make(map[cadence.ReportKey]time.Time)
	for report := range s.doc.Reports {
		if at, ok := s.LastRun(report, c); ok {
			out[report] = at
		}
	}
	return out
}

// Count returns the number of records held for report.
func (s *Store) Count(report cadence.ReportKey) int {
	rs := s.report(report, false)
	if rs == nil {
		return 0
	}
	return len(rs.Items)
}

// Records returns report's records ordered oldest first.
func (s *Store) Records(report cadence.ReportKey) []Record {
	rs := s.report(report, false)
	if rs == nil {
		return nil
	}
	out := make([]Record, 0, len(rs.Items))
	for fp, seen := range rs.Items {
		out = append(out, Record{Fingerprint: fp, FirstSeenAt: seen})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeenAt.Equal(out[j].FirstSeenAt) {
			return out[i].Fingerprint < out[j].Fingerprint
		}
		return out[i].FirstSeenAt.Before(out[j].FirstSeenAt)
	})
	return out
}

// Fingerprinter is implemented by candidate items.
type Fingerprinter interface {
	Fingerprint() string
}

// Unseen returns the items not yet recorded for report, in their original
// order. Repeated fingerprints within items keep only the first occurrence.
func Unseen[T Fingerprinter](s *Store, report cadence.ReportKey, items []T) []T {
	out := make([]T, 0, len(items))
	batch := make(map[string]struct{}, len(items))
	for _, item := range items {
		fp := item.Fingerprint()
		if s.HasSeen(report, fp) {
			continue
		}
		if _, dup := batch[fp]; dup {
			continue
		}
		batch[fp] = struct{}{}
		out = append(out, item)
	}
	return out
}
