package pipeline

import (
	"context"
	"strings"
	"time"

	"newsagent/internal/audit"
	"newsagent/internal/cadence"
	"newsagent/internal/rollups"
	"newsagent/internal/state"
)

// Item is one candidate newsletter entry produced by an external collector.
type Item struct {
	Source    string    `json:"source"`
	ID        string    `json:"id,omitempty"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Published time.Time `json:"published,omitzero"`
	Summary   string    `json:"summary,omitempty"`
	TopPick   bool      `json:"top_pick,omitempty"`
}

// Fingerprint identifies the item by source and id, or by URL when the
// collector supplied no id.
func (i Item) Fingerprint() string {
	id := strings.TrimSpace(i.ID)
	if id == "" {
		id = strings.TrimSpace(i.URL)
	}
	if id == "" {
		id = strings.TrimSpace(i.Title)
	}
	return state.Fingerprint(i.Source, id)
}

// RollupItem converts the item to its persisted rollup form.
func (i Item) RollupItem() rollups.Item {
	item := rollups.Item{
		Title:      i.Title,
		Link:       i.URL,
		Source:     i.Source,
		Channel:    i.Channel,
		TopPick:    i.TopPick,
		BottomLine: i.Summary,
	}
	if !i.Published.IsZero() {
		item.Date = i.Published.Format(time.DateOnly)
	}
	return item
}

// CollectRequest bounds a collection to [Since, Until).
type CollectRequest struct {
	Report  cadence.ReportKey
	Cadence cadence.Cadence
	Since   time.Time
	Until   time.Time
}

// Collector fetches candidate items for a report.
type Collector interface {
	Collect(ctx context.Context, req CollectRequest) ([]Item, error)
}

// RenderInput is everything a renderer needs for one (report, cadence) pair.
// Yearly is set only for yearly runs.
type RenderInput struct {
	Report  cadence.ReportKey
	Title   string
	Cadence cadence.Cadence
	Period  cadence.Period
	Since   time.Time
	Until   time.Time
	Items   []Item
	Yearly  *rollups.YearlyPayload
}

// Rendered is a finished report body.
type Rendered struct {
	Subject string
	Body    string
}

// Renderer turns collected items into a report.
type Renderer interface {
	Render(ctx context.Context, in RenderInput) (Rendered, error)
}

// Message is a rendered report addressed to its recipients.
type Message struct {
	RunID      string
	Report     cadence.ReportKey
	Cadence    cadence.Cadence
	Date       time.Time
	Recipients []string
	Subject    string
	Body       string
}

// Mailer delivers a message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Journal receives the run history.
type Journal interface {
	RecordDecision(ctx context.Context, runID string, requested cadence.Cadence, d cadence.Decision) error
	RecordEvent(ctx context.Context, event audit.Event) error
	FinishRun(ctx context.Context, runID, outcome string) error
}
