package recipients_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"newsagent/internal/cadence"
	"newsagent/internal/recipients"
)

func envOf(values map[string]string) recipients.LookupEnv {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

type fakeSource struct {
	name  string
	lists map[cadence.Cadence][]string
	err   error
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Lookup(_ cadence.ReportKey, c cadence.Cadence) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	list, ok := f.lists[c]
	if !ok {
		return nil, recipients.ErrSourceAbsent
	}
	return list, nil
}

func TestMalformedModeSpecificFallsBackToReportList(t *testing.T) {
	env := envOf(map[string]string{
		"RECIPIENTS_JSON_CYBERMED_DAILY": `{"cybermed": [`,
		"RECIPIENTS_JSON_CYBERMED":       `["doc@clinic.example", "nurse@clinic.example"]`,
		"EMAIL_TO":                       "legacy@example.com",
	})
	res, err := recipients.Resolve(cadence.Cybermed, cadence.Daily, recipients.DefaultSources(env, ""))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !slices.Equal(res.Recipients, []string{"doc@clinic.example", "nurse@clinic.example"}) {
		t.Fatalf("unexpected recipients %v", res.Recipients)
	}
	if res.Source != "env:RECIPIENTS_JSON_<REPORT>" {
		t.Fatalf("unexpected source %q", res.Source)
	}
	if len(res.Fallbacks) != 1 || !strings.Contains(res.Fallbacks[0].Source, "RECIPIENTS_JSON_<REPORT>_<CADENCE>") {
		t.Fatalf("expected one recorded fallback, got %+v", res.Fallbacks)
	}
}

func TestResolveIsFirstMatchWinsWithoutMixing(t *testing.T) {
	first := &fakeSource{name: "first", lists: map[cadence.Cadence][]string{cadence.Weekly: {"a@x.com"}}}
	second := &fakeSource{name: "second", lists: map[cadence.Cadence][]string{cadence.Daily: {"b@x.com"}, cadence.Weekly: {"c@x.com"}}}
	sources := []recipients.Source{first, second}

	daily, err := recipients.Resolve(cadence.Cyberlurch, cadence.Daily, sources)
	if err != nil || daily.Source != "second" || !slices.Equal(daily.Recipients, []string{"b@x.com"}) {
		t.Fatalf("daily = %+v, %v", daily, err)
	}
	weekly, err := recipients.Resolve(cadence.Cyberlurch, cadence.Weekly, sources)
	if err != nil || weekly.Source != "first" || !slices.Equal(weekly.Recipients, []string{"a@x.com"}) {
		t.Fatalf("weekly = %+v, %v", weekly, err)
	}
}

func TestResolveDedupesCaseInsensitivelyAndIsDeterministic(t *testing.T) {
	src := &fakeSource{name: "only", lists: map[cadence.Cadence][]string{
		cadence.Daily: {"Alice@x.com", "bob@x.com", "alice@x.com", " BOB@X.COM ", "carol@x.com"},
	}}
	want := []string{"Alice@x.com", "bob@x.com", "carol@x.com"}
	for range 3 {
		res, err := recipients.Resolve(cadence.Cybermed, cadence.Daily, []recipients.Source{src})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if !slices.Equal(res.Recipients, want) {
			t.Fatalf("recipients = %v, want %v", res.Recipients, want)
		}
	}
}

func TestYearlyIsUnionOfOtherCadences(t *testing.T) {
	src := &fakeSource{name: "doc", lists: map[cadence.Cadence][]string{
		cadence.Daily:   {"a@x.com", "B@x.com"},
		cadence.Weekly:  {"b@x.com", "c@x.com"},
		cadence.Monthly: {"d@x.com"},
		cadence.Yearly:  {"ignored@x.com"},
	}}
	res, err := recipients.Resolve(cadence.Cyberlurch, cadence.Yearly, []recipients.Source{src})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"a@x.com", "B@x.com", "c@x.com", "d@x.com"}
	if !slices.Equal(res.Recipients, want) {
		t.Fatalf("recipients = %v, want %v", res.Recipients, want)
	}
	if res.Source != "daily=doc,weekly=doc,monthly=doc" {
		t.Fatalf("unexpected source %q", res.Source)
	}

	partial := &fakeSource{name: "partial", lists: map[cadence.Cadence][]string{cadence.Monthly: {"m@x.com"}}}
	res, err = recipients.Resolve(cadence.Cyberlurch, cadence.Yearly, []recipients.Source{partial})
	if err != nil || !slices.Equal(res.Recipients, []string{"m@x.com"}) {
		t.Fatalf("partial yearly = %+v, %v", res, err)
	}
}

func TestNoRecipientsConfigured(t *testing.T) {
	broken := &fakeSource{name: "broken", err: &recipients.MalformedSourceError{Source: "broken", Err: errors.New("bad json")}}
	empty := &fakeSource{name: "empty", lists: map[cadence.Cadence][]string{cadence.Daily: {"  "}}}
	for _, c := range []cadence.Cadence{cadence.Daily, cadence.Yearly} {
		res, err := recipients.Resolve(cadence.Cybermed, c, []recipients.Source{broken, empty})
		if !errors.Is(err, recipients.ErrNoRecipientsConfigured) {
			t.Fatalf("%s: expected ErrNoRecipientsConfigured, got %v", c, err)
		}
		if len(res.Recipients) != 0 || len(res.Fallbacks) == 0 {
			t.Fatalf("%s: unexpected resolution %+v", c, res)
		}
	}
}

func TestDocumentShapes(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		report  cadence.ReportKey
		cadence cadence.Cadence
		want    []string
	}{
		{"nested", `{"cybermed": {"daily": ["a@x"], "weekly": ["b@x"]}}`, cadence.Cybermed, cadence.Weekly, []string{"b@x"}},
		{"nested default", `{"cybermed": {"default": ["d@x"]}}`, cadence.Cybermed, cadence.Monthly, []string{"d@x"}},
		{"flattened underscore", `{"cyberlurch_daily": ["u@x"]}`, cadence.Cyberlurch, cadence.Daily, []string{"u@x"}},
		{"flattened dash", `{"Cyberlurch-Weekly": ["d@x"]}`, cadence.Cyberlurch, cadence.Weekly, []string{"d@x"}},
		{"flattened joined", `{"cyberlurchmonthly": ["j@x"]}`, cadence.Cyberlurch, cadence.Monthly, []string{"j@x"}},
		{"per report list", `{"cybermed": ["r@x"]}`, cadence.Cybermed, cadence.Daily, []string{"r@x"}},
		{"global default", `{"cyberlurch": {"weekly": ["w@x"]}, "all": ["g@x"]}`, cadence.Cyberlurch, cadence.Daily, []string{"g@x"}},
		{"plain list", `["p@x", "q@x"]`, cadence.Cybermed, cadence.Daily, []string{"p@x", "q@x"}},
		{"comments and trailing commas", "{\n  // ops list\n  \"cybermed\": [\"c@x\",],\n}", cadence.Cybermed, cadence.Daily, []string{"c@x"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := envOf(map[string]string{"RECIPIENTS_JSON": tc.doc})
			res, err := recipients.Resolve(tc.report, tc.cadence, recipients.DefaultSources(env, ""))
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !slices.Equal(res.Recipients, tc.want) {
				t.Fatalf("recipients = %v, want %v", res.Recipients, tc.want)
			}
			if res.Source != "env:RECIPIENTS_JSON" {
				t.Fatalf("unexpected source %q", res.Source)
			}
		})
	}
}

func TestWrongShapeIsRecordedAsFallback(t *testing.T) {
	env := envOf(map[string]string{
		"RECIPIENTS_CONFIG_JSON": `{"cybermed": {"daily": 42}}`,
		"EMAIL_TO":               "ops@example.com, OPS@example.com",
	})
	res, err := recipients.Resolve(cadence.Cybermed, cadence.Daily, recipients.DefaultSources(env, ""))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Source != "env:EMAIL_TO" || !slices.Equal(res.Recipients, []string{"ops@example.com"}) {
		t.Fatalf("unexpected resolution %+v", res)
	}
	if len(res.Fallbacks) != 1 || res.Fallbacks[0].Source != "env:RECIPIENTS_CONFIG_JSON" {
		t.Fatalf("expected config fallback recorded, got %+v", res.Fallbacks)
	}
}

func TestFileSourceSitsBetweenGenericEnvAndLegacyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipients.json")
	if err := os.WriteFile(path, []byte(`{"cyberlurch": {"weekly": ["file@x.com"]}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	env := envOf(map[string]string{"EMAIL_TO": "legacy@x.com"})
	sources := recipients.DefaultSources(env, path)

	res, err := recipients.Resolve(cadence.Cyberlurch, cadence.Weekly, sources)
	if err != nil || res.Source != "file:"+path {
		t.Fatalf("weekly = %+v, %v", res, err)
	}
	res, err = recipients.Resolve(cadence.Cyberlurch, cadence.Daily, sources)
	if err != nil || res.Source != "env:EMAIL_TO" {
		t.Fatalf("daily = %+v, %v", res, err)
	}

	if err := os.WriteFile(path, []byte(`not json`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	res, err = recipients.Resolve(cadence.Cyberlurch, cadence.Weekly, sources)
	if err != nil || res.Source != "env:EMAIL_TO" || len(res.Fallbacks) != 1 {
		t.Fatalf("malformed file = %+v, %v", res, err)
	}
}
