package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"newsagent/internal/cadence"
	"newsagent/internal/config"
	"newsagent/internal/recipients"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDocument(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "valid.json")
	invalid := filepath.Join(dir, "invalid.json")
	if err := os.WriteFile(valid, []byte(`{"version": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(invalid, []byte(`{"version": `), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		path   string
		passed bool
	}{
		{"missing", filepath.Join(dir, "missing.json"), true},
		{"valid", valid, true},
		{"invalid", invalid, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := CheckDocument("doc", tc.path)
			if result.Passed != tc.passed {
				t.Fatalf("Passed = %v, want %v (%s)", result.Passed, tc.passed, result.Detail)
			}
		})
	}
	if data, _ := os.ReadFile(invalid); string(data) != `{"version": ` {
		t.Fatal("check must not modify the document")
	}
}

func TestCheckRecipientsReportsEachCadence(t *testing.T) {
	env := func(key string) (string, bool) {
		if key == "EMAIL_TO" {
			return "a@example.org", true
		}
		return "", false
	}
	results := CheckRecipients(cadence.Cybermed, []recipients.Source{recipients.EnvList{Var: "EMAIL_TO", Env: env}})
	if len(results) != len(cadence.AllCadences) {
		t.Fatalf("expected %d results, got %d", len(cadence.AllCadences), len(results))
	}
	for _, r := range results {
		if !r.Passed || !strings.Contains(r.Detail, "1 recipients") {
			t.Fatalf("unexpected result %+v", r)
		}
	}

	missing := CheckRecipients(cadence.Cybermed, nil)
	if missing[0].Passed {
		t.Fatal("expected failure without sources")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatalf("expected nil, got %v", results)
	}
}

func TestRunAll_RequiresWritableDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Reports.Enabled = []string{"cybermed"}
	cfg.Paths.StateFile = filepath.Join(base, "state", "processed_items.json")
	cfg.Paths.RollupsFile = filepath.Join(base, "state", "rollups.json")
	cfg.Paths.ReportDir = filepath.Join(base, "reports")

	failed := Failed(RunAll(context.Background(), &cfg, nil))
	if len(failed) != 3 {
		t.Fatalf("expected 3 missing directories, got %+v", failed)
	}

	for _, dir := range []string{filepath.Join(base, "state"), cfg.Paths.ReportDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	results := RunAll(context.Background(), &cfg, nil)
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected required checks to pass, got %+v", failed)
	}
	var advisoryFailures int
	for _, r := range results {
		if !r.Required && !r.Passed {
			advisoryFailures++
		}
	}
	if advisoryFailures != len(cadence.AllCadences) {
		t.Fatalf("expected recipient checks to fail advisory-only, got %d", advisoryFailures)
	}
}
