package rollups

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"time"

	"newsagent/internal/cadence"
	"newsagent/internal/docstore"
	"newsagent/internal/logging"
)

// CurrentVersion is the document schema version written by Save.
const CurrentVersion = 1

const (
	maxSummaryBullets = 8
	maxBottomLine     = 600
)

// Item is one highlighted piece of content inside a monthly rollup.
type Item struct {
	Title      string `json:"title"`
	Link       string `json:"url"`
	Date       string `json:"date,omitempty"`
	Source     string `json:"source,omitempty"`
	Channel    string `json:"channel,omitempty"`
	TopPick    bool   `json:"top_pick,omitempty"`
	BottomLine string `json:"bottom_line,omitempty"`
}

// Entry is the rollup for one (report, year, month). On disk the month is
// written as "YYYY-MM"; the older numeric year/month pair is still read.
type Entry struct {
	Year             int
	Month            time.Month
	TopItems         []Item
	ExecutiveSummary []string
	GeneratedAt      time.Time
}

type entryJSON struct {
	Month            string    `json:"month"`
	GeneratedAt      time.Time `json:"generated_at,omitzero"`
	ExecutiveSummary []string  `json:"executive_summary"`
	TopItems         []Item    `json:"top_items"`
}

type entryInput struct {
	Month            json.RawMessage `json:"month"`
	Year             int             `json:"year"`
	GeneratedAt      string          `json:"generated_at"`
	ExecutiveSummary json.RawMessage `json:"executive_summary"`
	TopItems         []Item          `json:"top_items"`
}

// Period returns the entry's month as a cadence period.
func (e Entry) Period() cadence.Period {
	return cadence.Period{Year: e.Year, Month: e.Month}
}

func (e Entry) before(other Entry) bool {
	if e.Year != other.Year {
		return e.Year < other.Year
	}
	return e.Month < other.Month
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Month:            fmt.Sprintf("%04d-%02d", e.Year, int(e.Month)),
		GeneratedAt:      e.GeneratedAt,
		ExecutiveSummary: e.ExecutiveSummary,
		TopItems:         e.TopItems,
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var in entryInput
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	year, month, err := parseMonth(in.Month, in.Year)
	if err != nil {
		return err
	}
	summary, err := parseSummary(in.ExecutiveSummary)
	if err != nil {
		return err
	}
	*e = Entry{
		Year:             year,
		Month:            month,
		TopItems:         in.TopItems,
		ExecutiveSummary: summary,
		GeneratedAt:      parseGeneratedAt(in.GeneratedAt),
	}
	return nil
}

// parseMonth accepts "YYYY-MM" or a month number paired with a year field.
func parseMonth(raw json.RawMessage, year int) (int, time.Month, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		parsed, err := time.Parse("2006-01", strings.TrimSpace(text))
		if err != nil {
			return 0, 0, fmt.Errorf("month %q: want YYYY-MM", text)
		}
		return parsed.Year(), parsed.Month(), nil
	}
	var number int
	if err := json.Unmarshal(raw, &number); err != nil {
		return 0, 0, fmt.Errorf("month %s: want YYYY-MM", raw)
	}
	return year, time.Month(number), nil
}

func parseSummary(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return lines, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, fmt.Errorf("executive_summary: %w", err)
	}
	return strings.Split(text, "\n"), nil
}

func parseGeneratedAt(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

// Document is the persisted rollup file. Each report's entries are sorted by
// (year, month) ascending with at most one entry per month. Sections for
// unknown report keys are carried through unchanged.
type Document struct {
	Version   int
	UpdatedAt time.Time
	Reports   map[cadence.ReportKey][]Entry

	foreign map[string]json.RawMessage
	dropped map[cadence.ReportKey]int
	source  docstore.LoadResult
}

type documentJSON struct {
	Version   int                        `json:"version"`
	UpdatedAt time.Time                  `json:"updated_at,omitzero"`
	Reports   map[string]json.RawMessage `json:"reports"`
}

// NewDocument returns an empty rollup document.
func NewDocument() *Document {
	return &Document{Version: CurrentVersion, Reports: make(map[cadence.ReportKey][]Entry)}
}

// UnmarshalJSON decodes entries one at a time; entries that do not decode are
// counted per report and left out.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw documentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Version = raw.Version
	d.UpdatedAt = raw.UpdatedAt
	d.Reports = make(map[cadence.ReportKey][]Entry, len(raw.Reports))
	d.foreign = nil
	d.dropped = nil
	for key, section := range raw.Reports {
		report, err := cadence.ParseReport(key)
		if err != nil {
			if d.foreign == nil {
				d.foreign = make(map[string]json.RawMessage)
			}
			d.foreign[key] = section
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(section, &items); err != nil {
			d.drop(report, 1)
			continue
		}
		entries := make([]Entry, 0, len(items))
		for _, item := range items {
			var entry Entry
			if err := json.Unmarshal(item, &entry); err != nil {
				d.drop(report, 1)
				continue
			}
			entries = append(entries, entry)
		}
		d.Reports[report] = entries
	}
	return nil
}

func (d *Document) MarshalJSON() ([]byte, error) {
	out := documentJSON{
		Version:   d.Version,
		UpdatedAt: d.UpdatedAt,
		Reports:   make(map[string]json.RawMessage, len(d.Reports)+len(d.foreign)),
	}
	maps.Copy(out.Reports, d.foreign)
	for report, entries := range d.Reports {
		if entries == nil {
			entries = []Entry{}
		}
		section, err := json.Marshal(entries)
		if err != nil {
			return nil, err
		}
		out.Reports[string(report)] = section
	}
	return json.Marshal(out)
}

func (d *Document) drop(report cadence.ReportKey, n int) {
	if n == 0 {
		return
	}
	if d.dropped == nil {
		d.dropped = make(map[cadence.ReportKey]int)
	}
	d.dropped[report] += n
}

// Load reads the rollup document without modifying the file and repairs what
// it can in memory: unreadable entries and entries outside the calendar are
// dropped with a warning, duplicates collapse to the newest generation, and
// items and summaries are re-sanitized.
func Load(path string, logger *slog.Logger) (*Document, error) {
	doc, res, err := docstore.Load[Document](path, logger)
	if err != nil {
		return nil, fmt.Errorf("load rollups: %w", err)
	}
	if doc == nil {
		doc = NewDocument()
	}
	doc.source = res
	if doc.Version > CurrentVersion {
		return nil, fmt.Errorf("load rollups: document version %d is newer than supported %d", doc.Version, CurrentVersion)
	}
	doc.Version = CurrentVersion
	if doc.Reports == nil {
		doc.Reports = make(map[cadence.ReportKey][]Entry)
	}
	for report, entries := range doc.Reports {
		kept, invalid := normalizeEntries(entries)
		doc.Reports[report] = kept
		doc.drop(report, invalid)
	}
	for report, n := range doc.dropped {
		logging.WarnWithContext(logger, "rollup entries dropped", "rollup_entries_dropped",
			logging.String("path", path),
			logging.String(logging.FieldReport, string(report)),
			logging.Int("dropped", n),
			logging.String(logging.FieldErrorHint, `each entry needs "month" as YYYY-MM`),
			logging.String(logging.FieldImpact, "dropped months are missing from yearly editions and are not written back"),
		)
	}
	return doc, nil
}

// Dropped returns how many stored entries per report could not be read.
func (d *Document) Dropped() map[cadence.ReportKey]int {
	return maps.Clone(d.dropped)
}

// Save stamps UpdatedAt and atomically replaces the file at path.
func Save(path string, doc *Document, now time.Time) error {
	doc.Version = CurrentVersion
	doc.UpdatedAt = now.UTC()
	if _, err := docstore.Save(path, doc, doc.source); err != nil {
		return fmt.Errorf("save rollups: %w", err)
	}
	doc.source = docstore.LoadResult{Found: true}
	return nil
}

func normalizeEntries(entries []Entry) ([]Entry, int) {
	byMonth := make(map[cadence.Period]Entry, len(entries))
	invalid := 0
	for _, entry := range entries {
		if entry.Year <= 0 || entry.Month < time.January || entry.Month > time.December {
			invalid++
			continue
		}
		entry = sanitizeEntry(entry)
		if existing, ok := byMonth[entry.Period()]; ok && existing.GeneratedAt.After(entry.GeneratedAt) {
			continue
		}
		byMonth[entry.Period()] = entry
	}
	out := make([]Entry, 0, len(byMonth))
	for _, entry := range byMonth {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].before(out[j]) })
	return out, invalid
}

func sanitizeEntry(entry Entry) Entry {
	items := make([]Item, 0, len(entry.TopItems))
	for _, item := range entry.TopItems {
		item = sanitizeItem(item)
		if item.Title == "" && item.Link == "" {
			continue
		}
		items = append(items, item)
	}
	entry.TopItems = items
	entry.ExecutiveSummary = SanitizeSummary(entry.ExecutiveSummary, FallbackSummary(items))
	if len(entry.ExecutiveSummary) > maxSummaryBullets {
		entry.ExecutiveSummary = entry.ExecutiveSummary[:maxSummaryBullets]
	}
	return entry
}

func sanitizeItem(item Item) Item {
	item.Title = strings.TrimSpace(item.Title)
	item.Link = strings.TrimSpace(item.Link)
	item.Source = strings.TrimSpace(item.Source)
	item.Channel = strings.TrimSpace(item.Channel)
	item.Date = normalizeDate(item.Date)
	item.BottomLine = strings.Join(strings.Fields(item.BottomLine), " ")
	if runes := []rune(item.BottomLine); len(runes) > maxBottomLine {
		item.BottomLine = string(runes[:maxBottomLine])
	}
	return item
}

// normalizeDate reduces RFC 3339 timestamps to their UTC calendar date and
// leaves anything else as given.
func normalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC().Format("2006-01-02")
		}
	}
	return value
}
