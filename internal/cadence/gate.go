package cadence

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"newsagent/internal/services"
)

// Policy holds the scheduling constants the gate evaluates against.
type Policy struct {
	Location        *time.Location
	TargetHour      int
	TargetMinute    int
	EarlyTolerance  time.Duration
	LateTolerance   time.Duration
	ActiveWeekdays  []time.Weekday
	DefaultLookback time.Duration
	MaxCatchupDays  int
}

// DefaultPolicy returns the production schedule: 06:00 Europe/Stockholm on
// weekdays, accepting runs from 05:50 up to (not including) 06:50.
func DefaultPolicy() Policy {
	loc, err := time.LoadLocation("Europe/Stockholm")
	if err != nil {
		panic(fmt.Sprintf("embedded zone data missing: %v", err))
	}
	return Policy{
		Location:        loc,
		TargetHour:      6,
		TargetMinute:    0,
		EarlyTolerance:  10 * time.Minute,
		LateTolerance:   50 * time.Minute,
		ActiveWeekdays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		DefaultLookback: 24 * time.Hour,
		MaxCatchupDays:  7,
	}
}

// RollupIndex reports how many monthly rollups exist for a report and year.
type RollupIndex interface {
	MonthsIn(report ReportKey, year int) int
}

// Request carries one invocation's inputs. Now may be in any zone.
type Request struct {
	Now              time.Time
	Trigger          TriggerKind
	Cadence          Cadence
	Reports          []ReportKey
	LookbackOverride time.Duration
	YearOverride     int
	LastDailyRun     map[ReportKey]time.Time
	Rollups          RollupIndex
}

// Run is the decision for one (report, cadence) pair.
type Run struct {
	Report   ReportKey     `json:"report"`
	Cadence  Cadence       `json:"cadence"`
	Proceed  bool          `json:"proceed"`
	Reason   string        `json:"reason,omitempty"`
	Lookback time.Duration `json:"lookback"`
	Since    time.Time     `json:"since"`
	Period   Period        `json:"period"`
}

// Decision is the gate's verdict for an invocation. A suppressed decision is
// a valid outcome and carries a reason; it is never an error.
type Decision struct {
	Proceed    bool        `json:"proceed"`
	Reason     string      `json:"reason"`
	Trigger    TriggerKind `json:"trigger"`
	Now        time.Time   `json:"now"`
	Reports    []ReportKey `json:"reports"`
	Candidates []Cadence   `json:"candidates"`
	Runs       []Run       `json:"runs"`
}

// EligibleCadences returns the cadences with at least one proceeding run.
func (d Decision) EligibleCadences() []Cadence {
	var out []Cadence
	for _, c := range AllCadences {
		for _, run := range d.Runs {
			if run.Cadence == c && run.Proceed {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// ProceedingRuns returns the runs that should execute, cadence-major.
func (d Decision) ProceedingRuns() []Run {
	var out []Run
	for _, run := range d.Runs {
		if run.Proceed {
			out = append(out, run)
		}
	}
	return out
}

// Gate decides whether and what to run for a given instant.
type Gate struct {
	policy Policy
}

// NewGate validates the policy and returns a gate.
func NewGate(policy Policy) (*Gate, error) {
	if policy.Location == nil {
		return nil, fmt.Errorf("%w: gate policy requires a time zone", services.ErrConfiguration)
	}
	if policy.Location == time.Local {
		return nil, fmt.Errorf("%w: gate policy must name a fixed zone, not the host zone", services.ErrConfiguration)
	}
	if policy.TargetHour < 0 || policy.TargetHour > 23 || policy.TargetMinute < 0 || policy.TargetMinute > 59 {
		return nil, fmt.Errorf("%w: invalid target time %02d:%02d", services.ErrConfiguration, policy.TargetHour, policy.TargetMinute)
	}
	if policy.EarlyTolerance < 0 || policy.LateTolerance <= 0 {
		return nil, fmt.Errorf("%w: delivery window tolerances must be positive", services.ErrConfiguration)
	}
	if len(policy.ActiveWeekdays) == 0 {
		return nil, fmt.Errorf("%w: at least one active weekday is required", services.ErrConfiguration)
	}
	if policy.DefaultLookback <= 0 {
		return nil, fmt.Errorf("%w: default lookback must be positive", services.ErrConfiguration)
	}
	if policy.MaxCatchupDays < 1 {
		return nil, fmt.Errorf("%w: max catch-up days must be >= 1", services.ErrConfiguration)
	}
	return &Gate{policy: policy}, nil
}

// Policy returns the gate's configured policy.
func (g *Gate) Policy() Policy { return g.policy }

// Decide evaluates a request. Errors are reserved for invalid input.
func (g *Gate) Decide(req Request) (Decision, error) {
	if req.Now.IsZero() {
		return Decision{}, errors.New("decide: now is required")
	}
	if req.Trigger != Scheduled && req.Trigger != Manual {
		return Decision{}, fmt.Errorf("%w: unknown trigger %q", services.ErrValidation, req.Trigger)
	}
	if req.Cadence != "" {
		if _, err := ParseCadence(string(req.Cadence)); err != nil {
			return Decision{}, err
		}
	}
	if req.LookbackOverride < 0 {
		return Decision{}, fmt.Errorf("%w: lookback override must not be negative", services.ErrValidation)
	}
	if req.YearOverride < 0 {
		return Decision{}, fmt.Errorf("%w: year override must not be negative", services.ErrValidation)
	}
	reports := req.Reports
	if len(reports) == 0 {
		reports = AllReports
	}
	for _, r := range reports {
		if _, err := ParseReport(string(r)); err != nil {
			return Decision{}, err
		}
	}

	now := req.Now.In(g.policy.Location)
	decision := Decision{
		Trigger: req.Trigger,
		Now:     now,
		Reports: slices.Clone(reports),
	}

	day := now
	if req.Trigger == Scheduled {
		delivery, ok := g.deliveryDay(now)
		if !ok {
			decision.Reason = fmt.Sprintf("outside delivery window %s (now %s %s)",
				g.windowLabel(), now.Format("15:04"), g.policy.Location)
			return decision, nil
		}
		day = delivery
		decision.Candidates = g.calendarCadences(day)
		if req.Cadence != "" {
			if !slices.Contains(decision.Candidates, req.Cadence) {
				decision.Reason = fmt.Sprintf("%s not due on %s", req.Cadence, day.Format("Mon 2006-01-02"))
				decision.Candidates = nil
				return decision, nil
			}
			decision.Candidates = []Cadence{req.Cadence}
		}
		if len(decision.Candidates) == 0 {
			decision.Reason = fmt.Sprintf("no cadence due on %s", day.Format("Mon 2006-01-02"))
			return decision, nil
		}
	} else {
		requested := req.Cadence
		if requested == "" {
			requested = Daily
		}
		decision.Candidates = []Cadence{requested}
	}

	for _, c := range decision.Candidates {
		for _, report := range reports {
			decision.Runs = append(decision.Runs, g.planRun(req, now, day, report, c))
		}
	}

	decision.Proceed = len(decision.ProceedingRuns()) > 0
	decision.Reason = summarize(decision)
	return decision, nil
}

func (g *Gate) planRun(req Request, now, day time.Time, report ReportKey, c Cadence) Run {
	run := Run{Report: report, Cadence: c, Proceed: true}
	switch c {
	case Daily:
		run.Lookback = g.policy.DefaultLookback
		run.Since = now.Add(-run.Lookback)
		if req.Trigger == Scheduled {
			run.Since = g.dailySince(now, day, req.LastDailyRun[report])
			run.Lookback = now.Sub(run.Since)
		}
	case Weekly:
		run.Lookback = 7 * 24 * time.Hour
		run.Since = now.Add(-run.Lookback)
	case Monthly:
		prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, g.policy.Location).AddDate(0, -1, 0)
		run.Period = Period{Year: prev.Year(), Month: prev.Month()}
		start, end := run.Period.Bounds(g.policy.Location)
		run.Since, run.Lookback = start, end.Sub(start)
	case Yearly:
		run.Period = Period{Year: g.targetYear(now, req.YearOverride)}
		start, end := run.Period.Bounds(g.policy.Location)
		run.Since, run.Lookback = start, end.Sub(start)
		if req.Trigger == Scheduled && monthsIn(req.Rollups, report, run.Period.Year) == 0 {
			run.Proceed = false
			run.Reason = fmt.Sprintf("no monthly rollups for %s in %d", report, run.Period.Year)
		}
	}
	if req.LookbackOverride > 0 {
		run.Lookback = req.LookbackOverride
		run.Since = now.Add(-run.Lookback)
	}
	return run
}

func monthsIn(index RollupIndex, report ReportKey, year int) int {
	if index == nil {
		return 0
	}
	return index.MonthsIn(report, year)
}

// targetYear: an explicit override wins, January 1 reports on the year just
// finished, any other date previews the current year.
func (g *Gate) targetYear(now time.Time, override int) int {
	if override > 0 {
		return override
	}
	if now.Month() == time.January && now.Day() == 1 {
		return now.Year() - 1
	}
	return now.Year()
}

// deliveryDay returns the local day whose delivery window contains now. The
// window may start on the previous calendar day when the target is near midnight.
func (g *Gate) deliveryDay(now time.Time) (time.Time, bool) {
	for _, offset := range []int{0, 1} {
		target := g.target(now.AddDate(0, 0, offset))
		start := target.Add(-g.policy.EarlyTolerance)
		end := target.Add(g.policy.LateTolerance)
		if !now.Before(start) && now.Before(end) {
			return target, true
		}
	}
	return time.Time{}, false
}

func (g *Gate) target(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), g.policy.TargetHour, g.policy.TargetMinute, 0, 0, g.policy.Location)
}

func (g *Gate) calendarCadences(day time.Time) []Cadence {
	var out []Cadence
	if g.active(day.Weekday()) {
		out = append(out, Daily)
	}
	if day.Weekday() == time.Monday {
		out = append(out, Weekly)
		if day.Day() <= 7 {
			out = append(out, Monthly)
		}
	}
	if day.Month() == time.January && day.Day() == 1 {
		out = append(out, Yearly)
	}
	return out
}

func (g *Gate) active(day time.Weekday) bool {
	return slices.Contains(g.policy.ActiveWeekdays, day)
}

// dailyLookback widens the base window once after a gap. The anchor is the
// previous active weekday's delivery instant, or the last successful daily
// run when that is older. The result never exceeds MaxCatchupDays.
func (g *Gate) dailyLookback(day time.Time, lastRun time.Time) time.Duration {
	delivery := g.target(day)
	limit := time.Duration(g.policy.MaxCatchupDays) * 24 * time.Hour
	anchor := delivery.Add(-g.policy.DefaultLookback)

	previous := delivery.Add(-limit)
	for back := 1; back <= g.policy.MaxCatchupDays; back++ {
		candidate := g.target(day.AddDate(0, 0, -back))
		if g.active(candidate.Weekday()) {
			previous = candidate
			break
		}
	}
	if previous.Before(anchor) {
		anchor = previous
	}
	if !lastRun.IsZero() && lastRun.Before(anchor) {
		anchor = lastRun
	}

	lookback := delivery.Sub(anchor)
	if lookback > limit {
		lookback = limit
	}
	if lookback < g.policy.DefaultLookback {
		lookback = g.policy.DefaultLookback
	}
	return lookback
}

// dailySince starts the collection window at the earlier of the anchor and
// now minus the lookback, so a run late in the window still picks up where an
// earlier run stopped. It never reaches back past MaxCatchupDays.
func (g *Gate) dailySince(now, day, lastRun time.Time) time.Time {
	lookback := g.dailyLookback(day, lastRun)
	since := now.Add(-lookback)
	if anchored := day.Add(-lookback); anchored.Before(since) {
		since = anchored
	}
	if !lastRun.IsZero() && lastRun.Before(since) {
		since = lastRun
	}
	if floor := now.Add(-time.Duration(g.policy.MaxCatchupDays) * 24 * time.Hour); since.Before(floor) {
		since = floor
	}
	return since
}

func (g *Gate) windowLabel() string {
	target := time.Date(2000, 1, 1, g.policy.TargetHour, g.policy.TargetMinute, 0, 0, time.UTC)
	return fmt.Sprintf("[%s, %s)", target.Add(-g.policy.EarlyTolerance).Format("15:04"),
		target.Add(g.policy.LateTolerance).Format("15:04"))
}

func summarize(d Decision) string {
	if d.Proceed {
		names := make([]string, 0, len(d.Candidates))
		for _, c := range d.EligibleCadences() {
			names = append(names, string(c))
		}
		return fmt.Sprintf("%s run: %s", d.Trigger, strings.Join(names, ", "))
	}
	reasons := make([]string, 0, len(d.Runs))
	for _, run := range d.Runs {
		if run.Reason != "" && !slices.Contains(reasons, run.Reason) {
			reasons = append(reasons, run.Reason)
		}
	}
	if len(reasons) == 0 {
		return "no runs eligible"
	}
	return strings.Join(reasons, "; ")
}
