package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"newsagent/internal/cadence"
	"newsagent/internal/pipeline"
)

// invocationFlags are shared by `run` and `gate`.
type invocationFlags struct {
	trigger       string
	cadence       string
	reports       string
	lookbackHours int
	year          int
}

func (f *invocationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.trigger, "trigger", "", "Trigger kind: scheduled or manual (defaults from GITHUB_EVENT_NAME, else manual)")
	cmd.Flags().StringVar(&f.cadence, "cadence", "", "Cadence: daily, weekly, monthly or yearly")
	cmd.Flags().StringVar(&f.reports, "reports", "", "Reports to run: cybermed, cyberlurch, both (defaults to enabled reports)")
	cmd.Flags().IntVar(&f.lookbackHours, "lookback-hours", 0, "Override the collection lookback in hours")
	cmd.Flags().IntVar(&f.year, "year", 0, "Override the target year for yearly runs")
}

func (f *invocationFlags) invocation() (pipeline.Invocation, error) {
	var inv pipeline.Invocation

	rawTrigger := strings.TrimSpace(f.trigger)
	if rawTrigger == "" {
		rawTrigger = os.Getenv("GITHUB_EVENT_NAME")
	}
	if rawTrigger == "" {
		inv.Trigger = cadence.Manual
	} else {
		trigger, err := cadence.ParseTrigger(rawTrigger)
		if err != nil {
			return inv, err
		}
		inv.Trigger = trigger
	}

	if strings.TrimSpace(f.cadence) != "" {
		c, err := cadence.ParseCadence(f.cadence)
		if err != nil {
			return inv, err
		}
		inv.Cadence = c
	}
	if strings.TrimSpace(f.reports) != "" {
		reports, err := cadence.ParseReports(f.reports)
		if err != nil {
			return inv, err
		}
		inv.Reports = reports
	}
	if f.lookbackHours < 0 {
		return inv, fmt.Errorf("--lookback-hours must not be negative")
	}
	inv.LookbackOverride = time.Duration(f.lookbackHours) * time.Hour
	if f.year < 0 {
		return inv, fmt.Errorf("--year must not be negative")
	}
	inv.YearOverride = f.year
	return inv, nil
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("2006-01-02 15:04 MST")
}

func formatLookback(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	}
	return d.Round(time.Minute).String()
}
