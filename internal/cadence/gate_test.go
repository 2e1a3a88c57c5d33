package cadence_test

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"newsagent/internal/cadence"
	"newsagent/internal/services"
)

type rollupCounts map[cadence.ReportKey]map[int]int

func (r rollupCounts) MonthsIn(report cadence.ReportKey, year int) int {
	return r[report][year]
}

func newGate(t *testing.T) *cadence.Gate {
	t.Helper()
	gate, err := cadence.NewGate(cadence.DefaultPolicy())
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return gate
}

func stockholm(t *testing.T, year int, month time.Month, day, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Stockholm")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func findRun(t *testing.T, d cadence.Decision, report cadence.ReportKey, c cadence.Cadence) cadence.Run {
	t.Helper()
	for _, run := range d.Runs {
		if run.Report == report && run.Cadence == c {
			return run
		}
	}
	t.Fatalf("no run for %s/%s in %+v", report, c, d.Runs)
	return cadence.Run{}
}

func TestScheduledMondayIncludesWeekly(t *testing.T) {
	gate := newGate(t)
	// 2025-09-08 06:00 CEST expressed in UTC.
	now := time.Date(2025, time.September, 8, 4, 0, 0, 0, time.UTC)

	decision, err := gate.Decide(cadence.Request{Now: now, Trigger: cadence.Scheduled})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !decision.Proceed {
		t.Fatalf("expected proceed, reason %q", decision.Reason)
	}
	want := []cadence.Cadence{cadence.Daily, cadence.Weekly}
	if got := decision.EligibleCadences(); !slices.Equal(got, want) {
		t.Fatalf("eligible = %v, want %v", got, want)
	}
	if len(decision.Runs) != 4 {
		t.Fatalf("expected one run per report and cadence, got %d", len(decision.Runs))
	}
	if decision.Now.Location().String() != "Europe/Stockholm" {
		t.Fatalf("expected decision in Stockholm time, got %s", decision.Now.Location())
	}
}

func TestScheduledFirstMondayIncludesMonthly(t *testing.T) {
	gate := newGate(t)
	now := stockholm(t, 2025, time.September, 1, 6, 0)

	decision, err := gate.Decide(cadence.Request{Now: now, Trigger: cadence.Scheduled, Reports: []cadence.ReportKey{cadence.Cybermed}})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	want := []cadence.Cadence{cadence.Daily, cadence.Weekly, cadence.Monthly}
	if got := decision.EligibleCadences(); !slices.Equal(got, want) {
		t.Fatalf("eligible = %v, want %v", got, want)
	}
	monthly := findRun(t, decision, cadence.Cybermed, cadence.Monthly)
	if monthly.Period != (cadence.Period{Year: 2025, Month: time.August}) {
		t.Fatalf("unexpected monthly period %v", monthly.Period)
	}
	if monthly.Lookback != 31*24*time.Hour {
		t.Fatalf("unexpected monthly lookback %v", monthly.Lookback)
	}
	if !monthly.Since.Equal(stockholm(t, 2025, time.August, 1, 0, 0)) {
		t.Fatalf("unexpected monthly since %v", monthly.Since)
	}
	weekly := findRun(t, decision, cadence.Cybermed, cadence.Weekly)
	if weekly.Lookback != 7*24*time.Hour {
		t.Fatalf("unexpected weekly lookback %v", weekly.Lookback)
	}
}

func TestScheduledDeliveryWindowBoundaries(t *testing.T) {
	gate := newGate(t)
	base := stockholm(t, 2025, time.September, 9, 6, 0)
	tests := []struct {
		name    string
		offset  time.Duration
		proceed bool
	}{
		{"one hour early", -time.Hour, false},
		{"just before window", -10*time.Minute - time.Second, false},
		{"window opens", -10 * time.Minute, true},
		{"on target", 0, true},
		{"late but inside", 49*time.Minute + 59*time.Second, true},
		{"window closes", 50 * time.Minute, false},
		{"second cron an hour later", time.Hour, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := gate.Decide(cadence.Request{Now: base.Add(tc.offset), Trigger: cadence.Scheduled})
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if decision.Proceed != tc.proceed {
				t.Fatalf("proceed = %v, want %v (reason %q)", decision.Proceed, tc.proceed, decision.Reason)
			}
			if !decision.Proceed && decision.Reason == "" {
				t.Fatal("expected reason for suppressed decision")
			}
		})
	}
}

func TestDecisionIgnoresInputZone(t *testing.T) {
	gate := newGate(t)
	instant := stockholm(t, 2025, time.September, 9, 6, 5)
	zones := []*time.Location{time.UTC, time.FixedZone("PDT", -7*3600), time.FixedZone("JST", 9*3600)}

	var reference cadence.Decision
	for i, zone := range zones {
		decision, err := gate.Decide(cadence.Request{Now: instant.In(zone), Trigger: cadence.Scheduled})
		if err != nil {
			t.Fatalf("Decide: %v", err)
		}
		if i == 0 {
			reference = decision
			continue
		}
		if decision.Proceed != reference.Proceed || !slices.Equal(decision.EligibleCadences(), reference.EligibleCadences()) {
			t.Fatalf("decision differs for zone %s: %+v vs %+v", zone, decision, reference)
		}
	}
	if !reference.Proceed {
		t.Fatalf("expected proceed, reason %q", reference.Reason)
	}
}

func TestScheduledWeekendSuppressed(t *testing.T) {
	gate := newGate(t)
	decision, err := gate.Decide(cadence.Request{Now: stockholm(t, 2025, time.September, 6, 6, 0), Trigger: cadence.Scheduled})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision.Proceed {
		t.Fatal("expected Saturday to be suppressed")
	}
	if !strings.Contains(decision.Reason, "no cadence due") {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}
}

func TestDailyLookbackCatchesUpAfterGap(t *testing.T) {
	gate := newGate(t)
	tests := []struct {
		name    string
		now     time.Time
		lastRun time.Time
		want    time.Duration
	}{
		{
			name: "monday covers weekend",
			now:  stockholm(t, 2025, time.September, 8, 6, 0),
			want: 72 * time.Hour,
		},
		{
			name:    "monday after friday run",
			now:     stockholm(t, 2025, time.September, 8, 6, 0),
			lastRun: stockholm(t, 2025, time.September, 5, 6, 4),
			want:    72 * time.Hour,
		},
		{
			name:    "tuesday after monday run",
			now:     stockholm(t, 2025, time.September, 9, 6, 0),
			lastRun: stockholm(t, 2025, time.September, 8, 6, 3),
			want:    24 * time.Hour,
		},
		{
			name:    "tuesday after missed monday",
			now:     stockholm(t, 2025, time.September, 9, 6, 0),
			lastRun: stockholm(t, 2025, time.September, 5, 6, 0),
			want:    96 * time.Hour,
		},
		{
			name:    "bounded by max catch-up",
			now:     stockholm(t, 2025, time.September, 9, 6, 0),
			lastRun: stockholm(t, 2025, time.July, 1, 6, 0),
			want:    7 * 24 * time.Hour,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := cadence.Request{
				Now:     tc.now,
				Trigger: cadence.Scheduled,
				Cadence: cadence.Daily,
				Reports: []cadence.ReportKey{cadence.Cyberlurch},
			}
			if !tc.lastRun.IsZero() {
				req.LastDailyRun = map[cadence.ReportKey]time.Time{cadence.Cyberlurch: tc.lastRun}
			}
			decision, err := gate.Decide(req)
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			run := findRun(t, decision, cadence.Cyberlurch, cadence.Daily)
			if run.Lookback != tc.want {
				t.Fatalf("lookback = %v, want %v", run.Lookback, tc.want)
			}
			if !run.Since.Equal(decision.Now.Add(-tc.want)) {
				t.Fatalf("since = %v, want %v", run.Since, decision.Now.Add(-tc.want))
			}
		})
	}
}

func TestDailyWindowHasNoGapAcrossWindowJitter(t *testing.T) {
	gate := newGate(t)
	tests := []struct {
		name    string
		now     time.Time
		lastRun time.Time
	}{
		{
			name:    "late run after early run",
			now:     stockholm(t, 2025, time.September, 9, 6, 49),
			lastRun: stockholm(t, 2025, time.September, 8, 5, 50),
		},
		{
			name:    "early run after late run",
			now:     stockholm(t, 2025, time.September, 9, 5, 50),
			lastRun: stockholm(t, 2025, time.September, 8, 6, 49),
		},
		{
			name:    "late monday after early friday",
			now:     stockholm(t, 2025, time.September, 8, 6, 49),
			lastRun: stockholm(t, 2025, time.September, 5, 5, 50),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := gate.Decide(cadence.Request{
				Now:          tc.now,
				Trigger:      cadence.Scheduled,
				Cadence:      cadence.Daily,
				Reports:      []cadence.ReportKey{cadence.Cybermed},
				LastDailyRun: map[cadence.ReportKey]time.Time{cadence.Cybermed: tc.lastRun},
			})
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			run := findRun(t, decision, cadence.Cybermed, cadence.Daily)
			if run.Since.After(tc.lastRun) {
				t.Fatalf("since %v leaves %v uncovered after last run %v",
					run.Since, run.Since.Sub(tc.lastRun), tc.lastRun)
			}
			if !run.Since.Equal(decision.Now.Add(-run.Lookback)) {
				t.Fatalf("since %v does not match lookback %v", run.Since, run.Lookback)
			}
			if run.Lookback > 7*24*time.Hour {
				t.Fatalf("lookback %v exceeds catch-up bound", run.Lookback)
			}
		})
	}
}

func TestScheduledYearlyWithoutRollupsSuppressesOnlyThatRun(t *testing.T) {
	gate := newGate(t)
	// 2026-01-01 is a Thursday, so daily is due as well.
	now := stockholm(t, 2026, time.January, 1, 6, 10)
	index := rollupCounts{cadence.Cyberlurch: {2025: 4}}

	decision, err := gate.Decide(cadence.Request{Now: now, Trigger: cadence.Scheduled, Rollups: index})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !decision.Proceed {
		t.Fatalf("expected decision to proceed, reason %q", decision.Reason)
	}
	cybermed := findRun(t, decision, cadence.Cybermed, cadence.Yearly)
	if cybermed.Proceed {
		t.Fatal("expected cybermed yearly to be suppressed")
	}
	if !strings.Contains(cybermed.Reason, "no monthly rollups") {
		t.Fatalf("unexpected reason %q", cybermed.Reason)
	}
	if cybermed.Period.Year != 2025 {
		t.Fatalf("expected previous year on Jan 1, got %d", cybermed.Period.Year)
	}
	if lurch := findRun(t, decision, cadence.Cyberlurch, cadence.Yearly); !lurch.Proceed {
		t.Fatalf("expected cyberlurch yearly to proceed, reason %q", lurch.Reason)
	}
	for _, report := range cadence.AllReports {
		if daily := findRun(t, decision, report, cadence.Daily); !daily.Proceed {
			t.Fatalf("expected %s daily unaffected", report)
		}
	}
}

func TestScheduledYearlyOnlyWithoutRollupsDoesNotProceed(t *testing.T) {
	gate := newGate(t)
	now := stockholm(t, 2026, time.January, 1, 6, 0)
	decision, err := gate.Decide(cadence.Request{Now: now, Trigger: cadence.Scheduled, Cadence: cadence.Yearly, Rollups: rollupCounts{}})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision.Proceed {
		t.Fatal("expected suppressed yearly decision")
	}
	if !strings.Contains(decision.Reason, "no monthly rollups") {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}
}

func TestManualYearlyNeverSuppressed(t *testing.T) {
	gate := newGate(t)
	now := stockholm(t, 2025, time.March, 3, 14, 30)

	decision, err := gate.Decide(cadence.Request{
		Now:     now,
		Trigger: cadence.Manual,
		Cadence: cadence.Yearly,
		Reports: []cadence.ReportKey{cadence.Cybermed},
		Rollups: rollupCounts{},
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !decision.Proceed {
		t.Fatalf("expected manual yearly to proceed, reason %q", decision.Reason)
	}
	run := findRun(t, decision, cadence.Cybermed, cadence.Yearly)
	if run.Period != (cadence.Period{Year: 2025}) {
		t.Fatalf("expected current year, got %v", run.Period)
	}
	if got := decision.EligibleCadences(); !slices.Equal(got, []cadence.Cadence{cadence.Yearly}) {
		t.Fatalf("unexpected eligible cadences %v", got)
	}
}

func TestManualOverridesApply(t *testing.T) {
	gate := newGate(t)
	now := stockholm(t, 2025, time.March, 3, 14, 30)

	decision, err := gate.Decide(cadence.Request{
		Now:              now,
		Trigger:          cadence.Manual,
		Cadence:          cadence.Yearly,
		YearOverride:     2023,
		LookbackOverride: 48 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	run := findRun(t, decision, cadence.Cyberlurch, cadence.Yearly)
	if run.Period.Year != 2023 {
		t.Fatalf("expected override year, got %d", run.Period.Year)
	}
	if run.Lookback != 48*time.Hour {
		t.Fatalf("expected override lookback, got %v", run.Lookback)
	}
}

func TestManualDefaultsToDailyOutsideWindow(t *testing.T) {
	gate := newGate(t)
	decision, err := gate.Decide(cadence.Request{Now: stockholm(t, 2025, time.September, 6, 22, 0), Trigger: cadence.Manual})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !decision.Proceed {
		t.Fatalf("expected manual run to proceed, reason %q", decision.Reason)
	}
	if got := decision.EligibleCadences(); !slices.Equal(got, []cadence.Cadence{cadence.Daily}) {
		t.Fatalf("unexpected eligible cadences %v", got)
	}
	if run := findRun(t, decision, cadence.Cybermed, cadence.Daily); run.Lookback != 24*time.Hour {
		t.Fatalf("unexpected lookback %v", run.Lookback)
	}
}

func TestScheduledRequestedCadenceNotDue(t *testing.T) {
	gate := newGate(t)
	decision, err := gate.Decide(cadence.Request{Now: stockholm(t, 2025, time.September, 9, 6, 0), Trigger: cadence.Scheduled, Cadence: cadence.Weekly})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision.Proceed || !strings.Contains(decision.Reason, "weekly not due") {
		t.Fatalf("expected weekly suppressed on Tuesday, got %+v", decision)
	}
}

func TestDecideRejectsInvalidInput(t *testing.T) {
	gate := newGate(t)
	now := stockholm(t, 2025, time.September, 9, 6, 0)
	tests := []struct {
		name string
		req  cadence.Request
	}{
		{"trigger", cadence.Request{Now: now, Trigger: "cron-ish"}},
		{"cadence", cadence.Request{Now: now, Trigger: cadence.Manual, Cadence: "hourly"}},
		{"report", cadence.Request{Now: now, Trigger: cadence.Manual, Reports: []cadence.ReportKey{"weather"}}},
		{"lookback", cadence.Request{Now: now, Trigger: cadence.Manual, LookbackOverride: -time.Hour}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gate.Decide(tc.req)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestNewGateRejectsHostZone(t *testing.T) {
	policy := cadence.DefaultPolicy()
	policy.Location = time.Local
	if _, err := cadence.NewGate(policy); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
