package testsupport

import (
	"path/filepath"
	"testing"

	"newsagent/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose document, outbox, and journal paths live
// in a unique temp directory per test. Notifications are disabled unless an
// option sets a topic.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths = config.Paths{
		StateFile:      filepath.Join(base, "state", "processed_items.json"),
		RollupsFile:    filepath.Join(base, "state", "rollups.json"),
		RecipientsFile: filepath.Join(base, "data", "recipients.json"),
		ItemsDir:       filepath.Join(base, "data", "items"),
		ReportDir:      filepath.Join(base, "reports"),
		AuditDB:        filepath.Join(base, "state", "audit.db"),
		LockFile:       filepath.Join(base, "state", "newsagent.lock"),
		LogDir:         filepath.Join(base, "logs"),
	}
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithNtfyTopic points notifications at topic, typically an httptest server.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithPartialYears toggles rollups.allow_partial_year.
func WithPartialYears(allow bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Rollups.AllowPartialYear = allow
	}
}

// WithReports overrides the enabled report list.
func WithReports(reports ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Reports.Enabled = reports
	}
}

// WithConfig applies an arbitrary mutation.
func WithConfig(fn func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		fn(b.cfg)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ReportDir)
}
