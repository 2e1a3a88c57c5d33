package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"newsagent/internal/cadence"
	"newsagent/internal/docstore"
)

// CurrentVersion is the document schema version written by Save.
const CurrentVersion = 1

// Record is one processed item. Records are created once and only removed by pruning.
type Record struct {
	Fingerprint string    `json:"fingerprint"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

// ReportState holds one report profile's processed items keyed by
// fingerprint and the last successful run per cadence.
type ReportState struct {
	Items    map[string]time.Time          `json:"items"`
	LastRuns map[cadence.Cadence]time.Time `json:"last_runs,omitempty"`
}

// Document is the persisted state file. Sections for report keys this build
// does not know are carried through unchanged.
type Document struct {
	Version   int
	UpdatedAt time.Time
	Reports   map[cadence.ReportKey]*ReportState

	foreign map[string]json.RawMessage
	source  docstore.LoadResult
}

type documentJSON struct {
	Version   int                        `json:"version"`
	UpdatedAt time.Time                  `json:"updated_at,omitzero"`
	Reports   map[string]json.RawMessage `json:"reports"`
}

// NewDocument returns an empty document at the current schema version.
func NewDocument() *Document {
	return &Document{Version: CurrentVersion, Reports: make(map[cadence.ReportKey]*ReportState)}
}

// Foreign returns the raw sections of report keys outside the known set.
func (d *Document) Foreign() map[string]json.RawMessage {
	return maps.Clone(d.foreign)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var raw documentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Version = raw.Version
	d.UpdatedAt = raw.UpdatedAt
	d.Reports = make(map[cadence.ReportKey]*ReportState, len(raw.Reports))
	d.foreign = nil
	for key, section := range raw.Reports {
		report, err := cadence.ParseReport(key)
		if err != nil {
			if d.foreign == nil {
				d.foreign = make(map[string]json.RawMessage)
			}
			d.foreign[key] = section
			continue
		}
		var rs ReportState
		if err := json.Unmarshal(section, &rs); err != nil {
			return fmt.Errorf("report %s: %w", key, err)
		}
		d.Reports[report] = &rs
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
	for report, rs := range d.Reports {
		section, err := json.Marshal(rs)
		if err != nil {
			return nil, err
		}
		out.Reports[string(report)] = section
	}
	return json.Marshal(out)
}

// Load reads the state document without modifying the file. Missing and
// unreadable files yield an empty document; an unreadable file is moved
// aside by the Save that replaces it.
func Load(path string, logger *slog.Logger) (*Document, error) {
	doc, res, err := docstore.Load[Document](path, logger)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if doc == nil {
		doc = NewDocument()
	}
	doc.source = res
	if doc.Version == 0 {
		doc.Version = CurrentVersion
	}
	if doc.Version > CurrentVersion {
		return nil, fmt.Errorf("load state: document version %d is newer than supported %d", doc.Version, CurrentVersion)
	}
	if doc.Reports == nil {
		doc.Reports = make(map[cadence.ReportKey]*ReportState)
	}
	return doc, nil
}

// Save stamps UpdatedAt and atomically replaces the file at path.
func Save(path string, doc *Document, now time.Time) error {
	doc.Version = CurrentVersion
	doc.UpdatedAt = now.UTC()
	if _, err := docstore.Save(path, doc, doc.source); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	doc.source = docstore.LoadResult{Found: true}
	return nil
}
