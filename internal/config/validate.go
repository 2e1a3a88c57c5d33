package config

import (
	"errors"
	"fmt"
	"time"

	"newsagent/internal/cadence"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateState(); err != nil {
		return err
	}
	if err := c.validateRollups(); err != nil {
		return err
	}
	if err := c.validateReports(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone %q is not a known IANA zone: %w", c.Schedule.Timezone, err)
	}
	if _, _, err := parseClock(c.Schedule.TargetTime); err != nil {
		return fmt.Errorf("schedule.target_time: %w", err)
	}
	if c.Schedule.EarlyToleranceMinutes < 0 {
		return errors.New("schedule.early_tolerance_minutes must be >= 0")
	}
	if c.Schedule.LateToleranceMinutes <= 0 {
		return errors.New("schedule.late_tolerance_minutes must be positive")
	}
	// Two redundant cron triggers an hour apart must not both land in the window.
	if c.Schedule.EarlyToleranceMinutes+c.Schedule.LateToleranceMinutes > 60 {
		return errors.New("schedule early + late tolerance must not exceed 60 minutes")
	}
	for _, day := range c.Schedule.ActiveWeekdays {
		if _, err := cadence.ParseWeekday(day); err != nil {
			return fmt.Errorf("schedule.active_weekdays: %w", err)
		}
	}
	if c.Schedule.DefaultLookbackHours < 1 {
		return errors.New("schedule.default_lookback_hours must be >= 1")
	}
	if c.Schedule.MaxCatchupDays < 1 {
		return errors.New("schedule.max_catchup_days must be >= 1")
	}
	return nil
}

func (c *Config) validateState() error {
	if c.State.RetentionDays < 1 {
		return errors.New("state.retention_days must be >= 1")
	}
	if c.State.MaxEntriesPerReport < 0 {
		return errors.New("state.max_entries_per_report must be >= 0")
	}
	return nil
}

func (c *Config) validateRollups() error {
	if c.Rollups.MaxMonths < 1 {
		return errors.New("rollups.max_months must be >= 1")
	}
	if c.Rollups.MaxTopItems < 1 {
		return errors.New("rollups.max_top_items must be >= 1")
	}
	return nil
}

func (c *Config) validateReports() error {
	if len(c.Reports.Enabled) == 0 {
		return errors.New("reports.enabled must list at least one report")
	}
	for _, name := range c.Reports.Enabled {
		if _, err := cadence.ParseReport(name); err != nil {
			return fmt.Errorf("reports.enabled: %w", err)
		}
	}
	for name := range c.Reports.Titles {
		if _, err := cadence.ParseReport(name); err != nil {
			return fmt.Errorf("reports.titles: %w", err)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
}
