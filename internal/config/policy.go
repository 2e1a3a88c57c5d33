package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"newsagent/internal/cadence"
)

// GatePolicy converts the schedule section into the cadence gate policy.
func (c *Config) GatePolicy() (cadence.Policy, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return cadence.Policy{}, fmt.Errorf("schedule.timezone: %w", err)
	}
	hour, minute, err := parseClock(c.Schedule.TargetTime)
	if err != nil {
		return cadence.Policy{}, fmt.Errorf("schedule.target_time: %w", err)
	}
	weekdays := make([]time.Weekday, 0, len(c.Schedule.ActiveWeekdays))
	for _, name := range c.Schedule.ActiveWeekdays {
		day, err := cadence.ParseWeekday(name)
		if err != nil {
			return cadence.Policy{}, fmt.Errorf("schedule.active_weekdays: %w", err)
		}
		weekdays = append(weekdays, day)
	}
	return cadence.Policy{
		Location:        loc,
		TargetHour:      hour,
		TargetMinute:    minute,
		EarlyTolerance:  time.Duration(c.Schedule.EarlyToleranceMinutes) * time.Minute,
		LateTolerance:   time.Duration(c.Schedule.LateToleranceMinutes) * time.Minute,
		ActiveWeekdays:  weekdays,
		DefaultLookback: time.Duration(c.Schedule.DefaultLookbackHours) * time.Hour,
		MaxCatchupDays:  c.Schedule.MaxCatchupDays,
	}, nil
}

// EnabledReports returns the configured report keys in configuration order.
func (c *Config) EnabledReports() ([]cadence.ReportKey, error) {
	reports := make([]cadence.ReportKey, 0, len(c.Reports.Enabled))
	for _, name := range c.Reports.Enabled {
		report, err := cadence.ParseReport(name)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// ProtectWindow is the horizon inside which processed records are never pruned.
func (c *Config) ProtectWindow() time.Duration {
	lookback := time.Duration(c.Schedule.DefaultLookbackHours) * time.Hour
	catchup := time.Duration(c.Schedule.MaxCatchupDays) * 24 * time.Hour
	return max(lookback, catchup)
}

func parseClock(value string) (int, int, error) {
	hourText, minuteText, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%q must use HH:MM", value)
	}
	hour, err := strconv.Atoi(hourText)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%q has an invalid hour", value)
	}
	minute, err := strconv.Atoi(minuteText)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%q has an invalid minute", value)
	}
	return hour, minute, nil
}
