package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file and directory locations. Relative paths resolve against
// the working directory, which in CI is the repository checkout.
type Paths struct {
	StateFile      string `toml:"state_file"`
	RollupsFile    string `toml:"rollups_file"`
	RecipientsFile string `toml:"recipients_file"`
	ItemsDir       string `toml:"items_dir"`
	ReportDir      string `toml:"report_dir"`
	AuditDB        string `toml:"audit_db"`
	LockFile       string `toml:"lock_file"`
	LogDir         string `toml:"log_dir"`
}

// Schedule contains the delivery-window policy used by the cadence gate.
type Schedule struct {
	Timezone              string   `toml:"timezone"`
	TargetTime            string   `toml:"target_time"`
	EarlyToleranceMinutes int      `toml:"early_tolerance_minutes"`
	LateToleranceMinutes  int      `toml:"late_tolerance_minutes"`
	ActiveWeekdays        []string `toml:"active_weekdays"`
	DefaultLookbackHours  int      `toml:"default_lookback_hours"`
	MaxCatchupDays        int      `toml:"max_catchup_days"`
}

// State contains retention settings for the processed-item document.
type State struct {
	RetentionDays       int `toml:"retention_days"`
	MaxEntriesPerReport int `toml:"max_entries_per_report"`
}

// Rollups contains retention settings for monthly rollups.
type Rollups struct {
	MaxMonths        int  `toml:"max_months"`
	AllowPartialYear bool `toml:"allow_partial_year"`
	MaxTopItems      int  `toml:"max_top_items"`
}

// Reports lists the enabled report profiles and their display titles.
type Reports struct {
	Enabled []string          `toml:"enabled"`
	Titles  map[string]string `toml:"titles"`
}

// Notifications contains configuration for ntfy operator alerts.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	ReportSent     bool   `toml:"report_sent"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for newsagent.
//
// Configuration sections by subsystem:
//   - Paths: state, rollup, recipient, outbox and audit locations
//   - Schedule: time zone, delivery window and catch-up policy for the gate
//   - State: dedup record retention
//   - Rollups: monthly rollup retention and yearly compilation policy
//   - Reports: enabled report profiles and titles
//   - Notifications: ntfy operator alerts
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Schedule      Schedule      `toml:"schedule"`
	State         State         `toml:"state"`
	Rollups       Rollups       `toml:"rollups"`
	Reports       Reports       `toml:"reports"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/newsagent/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("newsagent.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the parent directories of every persisted file.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Paths.StateFile),
		filepath.Dir(c.Paths.RollupsFile),
		filepath.Dir(c.Paths.AuditDB),
		filepath.Dir(c.Paths.LockFile),
		c.Paths.ReportDir,
	}
	if c.Paths.LogDir != "" {
		dirs = append(dirs, c.Paths.LogDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ReportTitle returns the configured display title for a report key, falling
// back to the key itself.
func (c *Config) ReportTitle(report string) string {
	if title := strings.TrimSpace(c.Reports.Titles[report]); title != "" {
		return title
	}
	return report
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
