package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnvOverrides()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSchedule()
	c.normalizeReports()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) applyEnvOverrides() {
	if value, ok := os.LookupEnv("NEWSAGENT_STATE_PATH"); ok && strings.TrimSpace(value) != "" {
		c.Paths.StateFile = value
	}
	if value, ok := os.LookupEnv("NEWSAGENT_ROLLUPS_PATH"); ok && strings.TrimSpace(value) != "" {
		c.Paths.RollupsFile = value
	}
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name     string
		value    *string
		fallback string
	}{
		{"paths.state_file", &c.Paths.StateFile, defaultStateFile},
		{"paths.rollups_file", &c.Paths.RollupsFile, defaultRollupsFile},
		{"paths.recipients_file", &c.Paths.RecipientsFile, defaultRecipientsFile},
		{"paths.items_dir", &c.Paths.ItemsDir, defaultItemsDir},
		{"paths.report_dir", &c.Paths.ReportDir, defaultReportDir},
		{"paths.audit_db", &c.Paths.AuditDB, defaultAuditDB},
		{"paths.lock_file", &c.Paths.LockFile, defaultLockFile},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	var err error
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSchedule() {
	c.Schedule.Timezone = strings.TrimSpace(c.Schedule.Timezone)
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = defaultTimezone
	}
	c.Schedule.TargetTime = strings.TrimSpace(c.Schedule.TargetTime)
	if c.Schedule.TargetTime == "" {
		c.Schedule.TargetTime = defaultTargetTime
	}
	c.Schedule.ActiveWeekdays = normalizeList(c.Schedule.ActiveWeekdays)
	if len(c.Schedule.ActiveWeekdays) == 0 {
		c.Schedule.ActiveWeekdays = append([]string(nil), defaultActiveWeekdays...)
	}
	if c.Schedule.DefaultLookbackHours == 0 {
		c.Schedule.DefaultLookbackHours = defaultLookbackHours
	}
}

func (c *Config) normalizeReports() {
	c.Reports.Enabled = normalizeList(c.Reports.Enabled)
	if len(c.Reports.Titles) == 0 {
		return
	}
	titles := make(map[string]string, len(c.Reports.Titles))
	for key, title := range c.Reports.Titles {
		titles[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(title)
	}
	c.Reports.Titles = titles
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// normalizeList lower-cases, trims, and de-duplicates values while keeping order.
func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" || slices.Contains(out, value) {
			continue
		}
		out = append(out, value)
	}
	return out
}
