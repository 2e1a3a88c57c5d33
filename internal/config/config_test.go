package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"newsagent/internal/cadence"
	"newsagent/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndAppliesEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())
	t.Setenv("NTFY_TOPIC", "https://ntfy.example/newsagent")
	stateOverride := filepath.Join(tempHome, "custom", "state.json")
	t.Setenv("NEWSAGENT_STATE_PATH", stateOverride)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent")
	}
	if resolved != filepath.Join(tempHome, ".config", "newsagent", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if cfg.Paths.StateFile != stateOverride {
		t.Fatalf("expected state override, got %q", cfg.Paths.StateFile)
	}
	if !filepath.IsAbs(cfg.Paths.RollupsFile) {
		t.Fatalf("expected absolute rollups path, got %q", cfg.Paths.RollupsFile)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/newsagent" {
		t.Fatalf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.Schedule.Timezone != "Europe/Stockholm" {
		t.Fatalf("unexpected timezone %q", cfg.Schedule.Timezone)
	}
	if !cfg.Rollups.AllowPartialYear {
		t.Fatal("expected partial years allowed by default")
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected log format %q", cfg.Logging.Format)
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	cfg := config.Default()
	cfg.Paths.StateFile = "~/state/items.json"
	cfg.Schedule.TargetTime = "07:30"
	cfg.Schedule.ActiveWeekdays = []string{"Mon", "wed", "MON"}
	cfg.Reports.Enabled = []string{"CyberMed"}
	cfg.Logging.Format = "JSON"

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected explicit path to resolve, got %q exists=%v", resolved, exists)
	}
	home, _ := os.UserHomeDir()
	if loaded.Paths.StateFile != filepath.Join(home, "state", "items.json") {
		t.Fatalf("expected tilde expansion, got %q", loaded.Paths.StateFile)
	}
	if got := strings.Join(loaded.Schedule.ActiveWeekdays, ","); got != "mon,wed" {
		t.Fatalf("unexpected weekdays %q", got)
	}
	if got := strings.Join(loaded.Reports.Enabled, ","); got != "cybermed" {
		t.Fatalf("unexpected reports %q", got)
	}
	if loaded.Logging.Format != "json" {
		t.Fatalf("expected json format, got %q", loaded.Logging.Format)
	}

	policy, err := loaded.GatePolicy()
	if err != nil {
		t.Fatalf("GatePolicy: %v", err)
	}
	if policy.TargetHour != 7 || policy.TargetMinute != 30 {
		t.Fatalf("unexpected target %02d:%02d", policy.TargetHour, policy.TargetMinute)
	}
	if len(policy.ActiveWeekdays) != 2 || policy.ActiveWeekdays[1] != time.Wednesday {
		t.Fatalf("unexpected active weekdays %v", policy.ActiveWeekdays)
	}
	reports, err := loaded.EnabledReports()
	if err != nil {
		t.Fatalf("EnabledReports: %v", err)
	}
	if len(reports) != 1 || reports[0] != cadence.Cybermed {
		t.Fatalf("unexpected enabled reports %v", reports)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[schedule]\ntarget_hour = 6\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to fail parsing")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"timezone", func(c *config.Config) { c.Schedule.Timezone = "Mars/Olympus" }, "schedule.timezone"},
		{"target", func(c *config.Config) { c.Schedule.TargetTime = "25:00" }, "schedule.target_time"},
		{"window", func(c *config.Config) { c.Schedule.LateToleranceMinutes = 90 }, "tolerance"},
		{"weekday", func(c *config.Config) { c.Schedule.ActiveWeekdays = []string{"funday"} }, "schedule.active_weekdays"},
		{"report", func(c *config.Config) { c.Reports.Enabled = []string{"weather"} }, "reports.enabled"},
		{"retention", func(c *config.Config) { c.State.RetentionDays = 0 }, "state.retention_days"},
		{"rollups", func(c *config.Config) { c.Rollups.MaxMonths = 0 }, "rollups.max_months"},
		{"level", func(c *config.Config) { c.Logging.Level = "chatty" }, "logging.level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.ReportTitle("cyberlurch") != "The Cyberlurch Report" {
		t.Fatalf("unexpected title %q", cfg.ReportTitle("cyberlurch"))
	}
}

func TestProtectWindowCoversCatchup(t *testing.T) {
	cfg := config.Default()
	if got := cfg.ProtectWindow(); got != 7*24*time.Hour {
		t.Fatalf("unexpected protect window %v", got)
	}
}
