package state_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"newsagent/internal/cadence"
	"newsagent/internal/logging"
	"newsagent/internal/state"
)

var baseTime = time.Date(2025, time.September, 8, 4, 0, 0, 0, time.UTC)

type candidate struct {
	id    string
	title string
}

func (c candidate) Fingerprint() string { return state.Fingerprint("pubmed", c.id) }

func TestMarkSeenIsIdempotent(t *testing.T) {
	store := state.NewStore(nil, state.ReadWrite)
	fps := []string{state.Fingerprint("pubmed", "1"), state.Fingerprint("youtube", "abc"), state.Fingerprint("pubmed", "2")}
	for _, fp := range fps {
		if err := store.MarkSeen(cadence.Cybermed, fp, baseTime); err != nil {
			t.Fatalf("MarkSeen: %v", err)
		}
		if !store.HasSeen(cadence.Cybermed, fp) {
			t.Fatalf("expected %s seen", fp)
		}
		before := store.Count(cadence.Cybermed)
		if err := store.MarkSeen(cadence.Cybermed, fp, baseTime.Add(time.Hour)); err != nil {
			t.Fatalf("second MarkSeen: %v", err)
		}
		if store.Count(cadence.Cybermed) != before {
			t.Fatalf("second MarkSeen changed count %d -> %d", before, store.Count(cadence.Cybermed))
		}
	}
	records := store.Records(cadence.Cybermed)
	for _, rec := range records {
		if !rec.FirstSeenAt.Equal(baseTime) {
			t.Fatalf("first-seen time changed for %s: %v", rec.Fingerprint, rec.FirstSeenAt)
		}
	}
	if store.HasSeen(cadence.Cyberlurch, fps[0]) {
		t.Fatal("records must be scoped to their report")
	}
}

func TestReadOnlyStoreForbidsMutation(t *testing.T) {
	doc := state.NewDocument()
	rw := state.NewStore(doc, state.ReadWrite)
	if err := rw.MarkSeen(cadence.Cyberlurch, "fp", baseTime); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}

	ro := state.NewStore(doc, state.ReadOnly)
	if !ro.HasSeen(cadence.Cyberlurch, "fp") {
		t.Fatal("read-only store must still answer queries")
	}
	checks := map[string]error{
		"mark seen":  ro.MarkSeen(cadence.Cyberlurch, "other", baseTime),
		"record run": ro.RecordRun(cadence.Cyberlurch, cadence.Weekly, baseTime),
	}
	_, checks["prune"] = ro.Prune(cadence.Cyberlurch, 1, 0, baseTime)
	_, checks["prune cap"] = ro.PruneCap(cadence.Cyberlurch, 1, 0, baseTime)
	for name, err := range checks {
		if !errors.Is(err, state.ErrStateMutationForbidden) {
			t.Fatalf("%s: expected ErrStateMutationForbidden, got %v", name, err)
		}
	}
	if ro.Dirty() || ro.Count(cadence.Cyberlurch) != 1 {
		t.Fatal("read-only store changed the document")
	}
}

func TestModeForCadence(t *testing.T) {
	if state.ModeFor(cadence.Daily) != state.ReadWrite {
		t.Fatal("daily runs must be read-write")
	}
	for _, c := range []cadence.Cadence{cadence.Weekly, cadence.Monthly, cadence.Yearly} {
		if state.ModeFor(c) != state.ReadOnly {
			t.Fatalf("%s runs must be read-only", c)
		}
	}
}

func TestPruneNeverRemovesRecentOrProtectedRecords(t *testing.T) {
	ages := []time.Duration{0, 12 * time.Hour, 3 * 24 * time.Hour, 10 * 24 * time.Hour, 40 * 24 * time.Hour, 200 * 24 * time.Hour}
	configs := []struct {
		retentionDays int
		protect       time.Duration
	}{
		{0, 0},
		{1, 0},
		{7, 72 * time.Hour},
		{30, 24 * time.Hour},
		{2, 14 * 24 * time.Hour},
		{120, 7 * 24 * time.Hour},
	}
	for _, cfg := range configs {
		t.Run(fmt.Sprintf("retention=%d protect=%s", cfg.retentionDays, cfg.protect), func(t *testing.T) {
			store := state.NewStore(nil, state.ReadWrite)
			for i, age := range ages {
				if err := store.MarkSeen(cadence.Cybermed, fmt.Sprintf("fp-%d", i), baseTime.Add(-age)); err != nil {
					t.Fatalf("MarkSeen: %v", err)
				}
			}
			removed, err := store.Prune(cadence.Cybermed, cfg.retentionDays, cfg.protect, baseTime)
			if err != nil {
				t.Fatalf("Prune: %v", err)
			}
			retention := time.Duration(cfg.retentionDays) * 24 * time.Hour
			wantRemoved := 0
			for i, age := range ages {
				fp := fmt.Sprintf("fp-%d", i)
				mustKeep := age <= retention || age <= cfg.protect
				if mustKeep && !store.HasSeen(cadence.Cybermed, fp) {
					t.Fatalf("pruned %s aged %s", fp, age)
				}
				if !mustKeep {
					wantRemoved++
					if store.HasSeen(cadence.Cybermed, fp) {
						t.Fatalf("expected %s aged %s to be pruned", fp, age)
					}
				}
			}
			if removed != wantRemoved {
				t.Fatalf("removed = %d, want %d", removed, wantRemoved)
			}
		})
	}
}

func TestPruneCapKeepsNewestAndProtected(t *testing.T) {
	store := state.NewStore(nil, state.ReadWrite)
	for i := range 10 {
		if err := store.MarkSeen(cadence.Cyberlurch, fmt.Sprintf("fp-%02d", i), baseTime.Add(-time.Duration(i)*24*time.Hour)); err != nil {
			t.Fatalf("MarkSeen: %v", err)
		}
	}
	removed, err := store.PruneCap(cadence.Cyberlurch, 4, 6*24*time.Hour, baseTime)
	if err != nil {
		t.Fatalf("PruneCap: %v", err)
	}
	// fp-00..fp-06 are inside the protect window; only fp-07..fp-09 may go.
	if removed != 3 || store.Count(cadence.Cyberlurch) != 7 {
		t.Fatalf("removed=%d count=%d", removed, store.Count(cadence.Cyberlurch))
	}
	if !store.HasSeen(cadence.Cyberlurch, "fp-06") || store.HasSeen(cadence.Cyberlurch, "fp-07") {
		t.Fatal("unexpected records removed")
	}
}

func TestUnseenKeepsOrderAndDropsRepeats(t *testing.T) {
	store := state.NewStore(nil, state.ReadWrite)
	items := []candidate{{"1", "one"}, {"2", "two"}, {"3", "three"}, {"2", "two again"}, {"4", "four"}}
	if err := store.MarkSeen(cadence.Cybermed, items[2].Fingerprint(), baseTime); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	got := state.Unseen(store, cadence.Cybermed, items)
	want := []string{"one", "two", "four"}
	if len(got) != len(want) {
		t.Fatalf("Unseen returned %d items: %+v", len(got), got)
	}
	for i, item := range got {
		if item.title != want[i] {
			t.Fatalf("item %d = %q, want %q", i, item.title, want[i])
		}
	}
}

func TestLastRunsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_items.json")
	store := state.NewStore(nil, state.ReadWrite)
	if err := store.MarkSeen(cadence.Cybermed, "fp", baseTime); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	if err := store.RecordRun(cadence.Cybermed, cadence.Daily, baseTime); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if err := state.Save(path, store.Document(), baseTime); err != nil {
		t.Fatalf("Save: %v", err)
	}

	doc, err := state.Load(path, logging.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	reloaded := state.NewStore(doc, state.ReadOnly)
	at, ok := reloaded.LastRun(cadence.Cybermed, cadence.Daily)
	if !ok || !at.Equal(baseTime) {
		t.Fatalf("LastRun = %v, %v", at, ok)
	}
	if runs := reloaded.LastRuns(cadence.Daily); len(runs) != 1 {
		t.Fatalf("unexpected last runs %v", runs)
	}
	if !reloaded.HasSeen(cadence.Cybermed, "fp") {
		t.Fatal("expected record after reload")
	}
}

func TestReadOnlyAccessLeavesFileByteIdentical(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_items.json")
	rw := state.NewStore(nil, state.ReadWrite)
	_ = rw.MarkSeen(cadence.Cyberlurch, state.Fingerprint("youtube", "v1"), baseTime)
	if err := state.Save(path, rw.Document(), baseTime); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	doc, err := state.Load(path, logging.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ro := state.NewStore(doc, state.ReadOnly)
	_ = ro.HasSeen(cadence.Cyberlurch, "anything")
	_ = ro.MarkSeen(cadence.Cyberlurch, "blocked", baseTime)

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("read-only access changed the state file")
	}
}

func TestLoadKeepsUnknownReportKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_items.json")
	known := state.Fingerprint("pubmed", "1")
	content := fmt.Sprintf(`{"version":1,"reports":{"cybermed":{"items":{%q:"2025-09-01T04:00:00Z"}},"legacy":{"items":{"x":"2024-01-01T00:00:00Z"},"note":"kept"}}}`, known)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	doc, err := state.Load(path, logging.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	store := state.NewStore(doc, state.ReadWrite)
	if store.Count(cadence.Cybermed) != 1 || !store.HasSeen(cadence.Cybermed, known) {
		t.Fatalf("expected the known report to load, got %+v", doc.Reports)
	}
	if _, ok := doc.Foreign()["legacy"]; !ok {
		t.Fatalf("expected legacy section to be kept, got %v", doc.Foreign())
	}

	if err := store.MarkSeen(cadence.Cybermed, state.Fingerprint("pubmed", "2"), baseTime); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	if err := state.Save(path, doc, baseTime); err != nil {
		t.Fatalf("Save: %v", err)
	}
	reloaded, err := state.Load(path, logging.NewNop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := state.NewStore(reloaded, state.ReadOnly).Count(cadence.Cybermed); got != 2 {
		t.Fatalf("expected 2 records after save, got %d", got)
	}
	var legacy struct {
		Note string `json:"note"`
	}
	if err := json.Unmarshal(reloaded.Foreign()["legacy"], &legacy); err != nil || legacy.Note != "kept" {
		t.Fatalf("legacy section not preserved: %s err=%v", reloaded.Foreign()["legacy"], err)
	}
	if matches, _ := filepath.Glob(path + ".corrupt.*"); len(matches) != 0 {
		t.Fatalf("valid document must not be quarantined: %v", matches)
	}
}

func TestLoadDiscardsPartiallyDecodedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_items.json")
	content := `{"version":1,"reports":{"cybermed":{"items":{"a":"2025-09-01T04:00:00Z"}},"cyberlurch":{"items":{"b":"not a time"}}}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := state.Load(path, logging.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	store := state.NewStore(doc, state.ReadOnly)
	if store.Count(cadence.Cybermed) != 0 || store.Count(cadence.Cyberlurch) != 0 {
		t.Fatalf("expected an empty document, got %+v", doc.Reports)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != content {
		t.Fatalf("load must leave the file in place: %q err=%v", data, err)
	}
}

func TestSaveMovesUnreadableFileAside(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_items.json")
	if err := os.WriteFile(path, []byte(`{"reports":`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := state.Load(path, logging.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if matches, _ := filepath.Glob(path + ".corrupt.*"); len(matches) != 0 {
		t.Fatalf("load must not quarantine: %v", matches)
	}

	store := state.NewStore(doc, state.ReadWrite)
	if err := store.MarkSeen(cadence.Cybermed, "fp", baseTime); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	if err := state.Save(path, doc, baseTime); err != nil {
		t.Fatalf("Save: %v", err)
	}
	matches, _ := filepath.Glob(path + ".corrupt.*")
	if len(matches) != 1 {
		t.Fatalf("expected one quarantined copy, got %v", matches)
	}
	if data, _ := os.ReadFile(matches[0]); string(data) != `{"reports":` {
		t.Fatalf("quarantined copy lost content: %q", data)
	}

	if err := state.Save(path, doc, baseTime.Add(time.Hour)); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if again, _ := filepath.Glob(path + ".corrupt.*"); len(again) != 1 {
		t.Fatalf("a good file must not be quarantined again: %v", again)
	}
}

func TestFingerprintIsStableAndUnambiguous(t *testing.T) {
	a := state.Fingerprint("PubMed", " 12345 ")
	b := state.Fingerprint("pubmed", "12345")
	if a != b {
		t.Fatalf("expected normalized fingerprints to match: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("unexpected fingerprint length %d", len(a))
	}
	if state.Fingerprint("a|", "b") == state.Fingerprint("a", "|b") {
		t.Fatal("delimiter collision")
	}
	if state.Fingerprint("a%7C", "b") == state.Fingerprint("a|", "b") {
		t.Fatal("escape collision")
	}
}
