package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"newsagent/internal/audit"
	"newsagent/internal/cadence"
	"newsagent/internal/config"
	"newsagent/internal/logging"
	"newsagent/internal/notifications"
	"newsagent/internal/recipients"
	"newsagent/internal/rollups"
	"newsagent/internal/services"
	"newsagent/internal/state"
)

const monthlySummaryBullets = 8

// Options wires an Orchestrator. Only Config is required; every other
// collaborator falls back to the file-backed default.
type Options struct {
	Config    *config.Config
	Logger    *slog.Logger
	Collector Collector
	Renderer  Renderer
	Mailer    Mailer
	Notifier  notifications.Service
	Journal   Journal
	Sources   []recipients.Source
	Clock     func() time.Time
	NewRunID  func() string
}

// Orchestrator runs invocations against the configured documents.
type Orchestrator struct {
	cfg       *config.Config
	logger    *slog.Logger
	gate      *cadence.Gate
	collector Collector
	renderer  Renderer
	mailer    Mailer
	notifier  notifications.Service
	journal   Journal
	sources   []recipients.Source
	clock     func() time.Time
	newRunID  func() string
}

// Invocation is one trigger of the pipeline.
type Invocation struct {
	Trigger cadence.TriggerKind
	// Cadence narrows a scheduled run to one tier, or selects the tier of a
	// manual run (daily when empty).
	Cadence          cadence.Cadence
	Reports          []cadence.ReportKey
	LookbackOverride time.Duration
	YearOverride     int
	// DryRun renders and resolves recipients but sends nothing and writes
	// no documents.
	DryRun bool
}

// PairStatus is the outcome of one (report, cadence) pair.
type PairStatus string

const (
	StatusSent         PairStatus = "sent"
	StatusDryRun       PairStatus = "dry_run"
	StatusSkipped      PairStatus = "skipped"
	StatusNoRecipients PairStatus = "no_recipients"
	StatusFailed       PairStatus = "failed"
)

// PairResult summarizes one (report, cadence) pair.
type PairResult struct {
	Report          cadence.ReportKey `json:"report"`
	Cadence         cadence.Cadence   `json:"cadence"`
	Status          PairStatus        `json:"status"`
	Reason          string            `json:"reason,omitempty"`
	Items           int               `json:"items"`
	Subject         string            `json:"subject,omitempty"`
	Recipients      []string          `json:"recipients,omitempty"`
	RecipientSource string            `json:"recipient_source,omitempty"`
}

// Result summarizes an invocation.
type Result struct {
	RunID        string           `json:"run_id"`
	Decision     cadence.Decision `json:"decision"`
	Pairs        []PairResult     `json:"pairs"`
	StateSaved   bool             `json:"state_saved"`
	RollupsSaved bool             `json:"rollups_saved"`
}

// New builds an Orchestrator from opts.
func New(opts Options) (*Orchestrator, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: pipeline requires a config", services.ErrConfiguration)
	}
	cfg := opts.Config
	policy, err := cfg.GatePolicy()
	if err != nil {
		return nil, err
	}
	gate, err := cadence.NewGate(policy)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(opts.Logger, "pipeline"),
		gate:      gate,
		collector: opts.Collector,
		renderer:  opts.Renderer,
		mailer:    opts.Mailer,
		notifier:  opts.Notifier,
		journal:   opts.Journal,
		sources:   opts.Sources,
		clock:     opts.Clock,
		newRunID:  opts.NewRunID,
	}
	if o.collector == nil {
		o.collector = FeedCollector{Dir: cfg.Paths.ItemsDir}
	}
	if o.renderer == nil {
		o.renderer = MarkdownRenderer{}
	}
	if o.mailer == nil {
		o.mailer = OutboxMailer{Dir: cfg.Paths.ReportDir}
	}
	if o.notifier == nil {
		o.notifier = notifications.NewService(cfg)
	}
	if o.journal == nil {
		o.journal = nopJournal{}
	}
	if o.sources == nil {
		o.sources = recipients.DefaultSources(nil, cfg.Paths.RecipientsFile)
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.newRunID == nil {
		o.newRunID = uuid.NewString
	}
	return o, nil
}

// Gate exposes the configured cadence gate.
func (o *Orchestrator) Gate() *cadence.Gate { return o.gate }

// Decide evaluates the gate for inv against the current documents without
// executing anything.
func (o *Orchestrator) Decide(ctx context.Context, inv Invocation) (cadence.Decision, error) {
	logger := logging.WithContext(ctx, o.logger)
	stateDoc, rollupDoc, err := o.loadDocuments(logger)
	if err != nil {
		return cadence.Decision{}, err
	}
	return o.decide(inv, o.clock(), stateDoc, rollupDoc)
}

// Run executes one invocation. A suppressed gate decision is a successful
// run with no pairs. Pair failures are collected and returned together after
// the remaining pairs ran; ErrStateMutationForbidden aborts immediately.
func (o *Orchestrator) Run(ctx context.Context, inv Invocation) (Result, error) {
	runID := o.newRunID()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, o.logger)
	now := o.clock()
	result := Result{RunID: runID}

	stateDoc, rollupDoc, err := o.loadDocuments(logger)
	if err != nil {
		return result, err
	}
	decision, err := o.decide(inv, now, stateDoc, rollupDoc)
	if err != nil {
		return result, err
	}
	result.Decision = decision
	if err := o.journal.RecordDecision(ctx, runID, inv.Cadence, decision); err != nil {
		o.warnJournal(logger, err)
	}

	if !decision.Proceed {
		attrs := logging.DecisionAttrs("cadence_gate", "suppressed", decision.Reason)
		attrs = append(attrs, logging.String(logging.FieldEventType, "gate_suppressed"))
		logger.Info("gate suppressed run", logging.Args(attrs...)...)
		o.finish(ctx, logger, runID, "suppressed")
		return result, nil
	}
	attrs := logging.DecisionAttrs("cadence_gate", "proceed", decision.Reason)
	attrs = append(attrs,
		logging.String(logging.FieldEventType, "gate_proceed"),
		logging.Any("cadences", decision.EligibleCadences()),
		logging.Bool("dry_run", inv.DryRun),
	)
	logger.Info("gate decided", logging.Args(attrs...)...)

	x := &execution{
		o:         o,
		ctx:       ctx,
		runID:     runID,
		now:       now,
		inv:       inv,
		stateDoc:  stateDoc,
		rollupDoc: rollupDoc,
		daily:     state.NewStore(stateDoc, state.ReadWrite),
		readOnly:  state.NewStore(stateDoc, state.ReadOnly),
	}

	var failures []error
	for _, run := range decision.Runs {
		if !run.Proceed {
			result.Pairs = append(result.Pairs, x.skip(run))
			continue
		}
		pair, err := x.runPair(run)
		result.Pairs = append(result.Pairs, pair)
		if err == nil {
			continue
		}
		if errors.Is(err, state.ErrStateMutationForbidden) {
			logging.ErrorWithContext(logger, "state mutation attempted outside a daily run", "state_mutation_forbidden",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "report this as a bug; no documents were written"),
			)
			o.finish(ctx, logger, runID, "aborted")
			return result, err
		}
		failures = append(failures, err)
	}

	if err := x.persist(&result); err != nil {
		failures = append(failures, err)
	}

	outcome := "ok"
	if len(failures) > 0 {
		outcome = "failed"
	}
	o.finish(ctx, logger, runID, outcome)
	logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("outcome", outcome),
		logging.Int("pairs", len(result.Pairs)),
		logging.Bool("state_saved", result.StateSaved),
		logging.Bool("rollups_saved", result.RollupsSaved),
	)
	return result, errors.Join(failures...)
}

func (o *Orchestrator) loadDocuments(logger *slog.Logger) (*state.Document, *rollups.Document, error) {
	stateDoc, err := state.Load(o.cfg.Paths.StateFile, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("load state: %w", err)
	}
	rollupDoc, err := rollups.Load(o.cfg.Paths.RollupsFile, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("load rollups: %w", err)
	}
	return stateDoc, rollupDoc, nil
}

func (o *Orchestrator) decide(inv Invocation, now time.Time, stateDoc *state.Document, rollupDoc *rollups.Document) (cadence.Decision, error) {
	reports := inv.Reports
	if len(reports) == 0 {
		enabled, err := o.cfg.EnabledReports()
		if err != nil {
			return cadence.Decision{}, err
		}
		reports = enabled
	}
	return o.gate.Decide(cadence.Request{
		Now:              now,
		Trigger:          inv.Trigger,
		Cadence:          inv.Cadence,
		Reports:          reports,
		LookbackOverride: inv.LookbackOverride,
		YearOverride:     inv.YearOverride,
		LastDailyRun:     state.NewStore(stateDoc, state.ReadOnly).LastRuns(cadence.Daily),
		Rollups:          rollupDoc,
	})
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, runID, outcome string) {
	if err := o.journal.FinishRun(ctx, runID, outcome); err != nil {
		o.warnJournal(logger, err)
	}
}

func (o *Orchestrator) warnJournal(logger *slog.Logger, err error) {
	logging.WarnWithContext(logger, "audit journal write failed", "audit_write_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check audit_db path permissions"),
		logging.String(logging.FieldImpact, "run history incomplete"),
	)
}

type nopJournal struct{}

func (nopJournal) RecordDecision(context.Context, string, cadence.Cadence, cadence.Decision) error {
	return nil
}
func (nopJournal) RecordEvent(context.Context, audit.Event) error  { return nil }
func (nopJournal) FinishRun(context.Context, string, string) error { return nil }
