package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"newsagent/internal/audit"
	"newsagent/internal/cadence"
	"newsagent/internal/logging"
	"newsagent/internal/recipients"
	"newsagent/internal/rollups"
	"newsagent/internal/services"
	"newsagent/internal/state"
)

// execution carries one invocation's documents and per-run bookkeeping.
type execution struct {
	o         *Orchestrator
	ctx       context.Context
	runID     string
	now       time.Time
	inv       Invocation
	stateDoc  *state.Document
	rollupDoc *rollups.Document
	daily     *state.Store
	readOnly  *state.Store

	dailyReports   []cadence.ReportKey
	rollupsChanged bool
}

func (x *execution) pairContext(report cadence.ReportKey, c cadence.Cadence) (context.Context, *slog.Logger) {
	ctx := services.WithReport(x.ctx, string(report))
	ctx = services.WithCadence(ctx, string(c))
	return ctx, logging.WithContext(ctx, x.o.logger)
}

// store returns the state view for a cadence: read-write for daily runs,
// read-only for every other tier.
func (x *execution) store(c cadence.Cadence) *state.Store {
	if state.ModeFor(c) == state.ReadWrite {
		return x.daily
	}
	return x.readOnly
}

func (x *execution) skip(run cadence.Run) PairResult {
	ctx, logger := x.pairContext(run.Report, run.Cadence)
	attrs := logging.DecisionAttrs("cadence_gate", "skipped", run.Reason)
	logger.Info("run skipped", logging.Args(attrs...)...)
	x.event(ctx, logger, run.Report, run.Cadence, audit.EventSkipped, run.Reason)
	return PairResult{Report: run.Report, Cadence: run.Cadence, Status: StatusSkipped, Reason: run.Reason}
}

func (x *execution) runPair(run cadence.Run) (PairResult, error) {
	ctx, logger := x.pairContext(run.Report, run.Cadence)
	pair := PairResult{Report: run.Report, Cadence: run.Cadence}
	store := x.store(run.Cadence)

	input := RenderInput{
		Report:  run.Report,
		Title:   x.o.cfg.ReportTitle(string(run.Report)),
		Cadence: run.Cadence,
		Period:  run.Period,
		Since:   run.Since,
		Until:   x.now.In(x.o.gate.Policy().Location),
	}

	var items []Item
	if run.Cadence == cadence.Yearly {
		payload, reason, ok := x.compileYear(ctx, logger, run)
		if !ok {
			pair.Status = StatusSkipped
			pair.Reason = reason
			return pair, nil
		}
		input.Yearly = &payload
		pair.Items = len(payload.TopItems)
	} else {
		if run.Cadence == cadence.Monthly {
			if run.Period.IsZero() {
				return x.fail(ctx, logger, pair, "collect", errors.New("monthly run without target period"))
			}
			input.Since, input.Until = run.Period.Bounds(x.o.gate.Policy().Location)
		}
		collected, err := x.o.collector.Collect(ctx, CollectRequest{
			Report:  run.Report,
			Cadence: run.Cadence,
			Since:   input.Since,
			Until:   input.Until,
		})
		if err != nil {
			return x.fail(ctx, logger, pair, "collect", err)
		}
		if run.Cadence.WritesState() {
			items = state.Unseen(store, run.Report, collected)
		} else {
			items = dedupeBatch(collected)
		}
		input.Items = items
		pair.Items = len(items)
		logger.Info("items collected",
			logging.String(logging.FieldEventType, "items_collected"),
			logging.Int("candidates", len(collected)),
			logging.Int("new", len(items)),
			logging.Time("since", input.Since),
		)
		x.event(ctx, logger, run.Report, run.Cadence, audit.EventCollected,
			fmt.Sprintf("%d candidates, %d after dedup", len(collected), len(items)))
	}

	rendered, err := x.o.renderer.Render(ctx, input)
	if err != nil {
		return x.fail(ctx, logger, pair, "render", err)
	}
	pair.Subject = rendered.Subject

	if run.Cadence == cadence.Monthly {
		if err := x.updateRollup(logger, run, rendered, items); err != nil {
			return x.fail(ctx, logger, pair, "rollup", err)
		}
	}

	resolution, err := recipients.Resolve(run.Report, run.Cadence, x.o.sources)
	for _, fb := range resolution.Fallbacks {
		logging.WarnWithContext(logger, "recipient source malformed; falling back", "recipient_fallback",
			logging.String("source", fb.Source),
			logging.String("reason", fb.Reason),
			logging.String(logging.FieldErrorHint, "fix the JSON in "+fb.Source),
			logging.String(logging.FieldImpact, "lower-priority recipient source used"),
		)
		x.event(ctx, logger, run.Report, fb.Cadence, audit.EventFallback, fb.Source+": "+fb.Reason)
	}
	if err != nil {
		if errors.Is(err, recipients.ErrNoRecipientsConfigured) {
			logging.WarnWithContext(logger, "no recipients configured; report skipped", "no_recipients",
				logging.String(logging.FieldErrorHint, "set RECIPIENTS_JSON or the recipients file"),
				logging.String(logging.FieldImpact, "report not delivered"),
			)
			x.event(ctx, logger, run.Report, run.Cadence, audit.EventNoRecipients, err.Error())
			if nerr := x.o.notifier.NotifyNoRecipients(ctx, run.Report, run.Cadence); nerr != nil {
				x.warnNotify(logger, nerr)
			}
			pair.Status = StatusNoRecipients
			pair.Reason = err.Error()
			return pair, nil
		}
		return x.fail(ctx, logger, pair, "recipients", err)
	}
	pair.Recipients = resolution.Recipients
	pair.RecipientSource = resolution.Source

	if x.inv.DryRun {
		pair.Status = StatusDryRun
		logger.Info("dry run; report not sent",
			logging.String(logging.FieldEventType, "dry_run"),
			logging.Int("recipients", len(resolution.Recipients)),
		)
		return pair, nil
	}

	msg := Message{
		RunID:      x.runID,
		Report:     run.Report,
		Cadence:    run.Cadence,
		Date:       input.Until,
		Recipients: resolution.Recipients,
		Subject:    rendered.Subject,
		Body:       rendered.Body,
	}
	if err := x.o.mailer.Send(ctx, msg); err != nil {
		return x.fail(ctx, logger, pair, "send", err)
	}
	pair.Status = StatusSent
	logger.Info("report sent",
		logging.String(logging.FieldEventType, "report_sent"),
		logging.Int("recipients", len(resolution.Recipients)),
		logging.String("recipient_source", resolution.Source),
		logging.Int("items", pair.Items),
	)
	x.event(ctx, logger, run.Report, run.Cadence, audit.EventSent,
		fmt.Sprintf("%d recipients via %s", len(resolution.Recipients), resolution.Source))
	if err := x.o.notifier.NotifyReportSent(ctx, run.Report, run.Cadence, len(resolution.Recipients), pair.Items); err != nil {
		x.warnNotify(logger, err)
	}

	if run.Cadence.WritesState() {
		for _, item := range items {
			if err := store.MarkSeen(run.Report, item.Fingerprint(), x.now); err != nil {
				return pair, err
			}
		}
		if err := store.RecordRun(run.Report, run.Cadence, x.now); err != nil {
			return pair, err
		}
		x.dailyReports = append(x.dailyReports, run.Report)
	}
	return pair, nil
}

// compileYear gathers the target year's rollups. Scheduled runs skip an
// incomplete year unless partial years are allowed; manual runs always proceed.
func (x *execution) compileYear(ctx context.Context, logger *slog.Logger, run cadence.Run) (rollups.YearlyPayload, string, bool) {
	year := run.Period.Year
	entries, err := x.rollupDoc.Year(run.Report, year)
	var incomplete *rollups.IncompleteYearError
	if errors.As(err, &incomplete) {
		detail := fmt.Sprintf("%d of 12 months available for %d", 12-len(incomplete.Missing), year)
		x.event(ctx, logger, run.Report, run.Cadence, audit.EventIncompleteYear, detail)
		if !x.o.cfg.Rollups.AllowPartialYear && x.inv.Trigger == cadence.Scheduled {
			logging.WarnWithContext(logger, "incomplete year; yearly report skipped", "incomplete_year",
				logging.Int("months", 12-len(incomplete.Missing)),
				logging.String(logging.FieldErrorHint, "enable rollups.allow_partial_year or run manually"),
				logging.String(logging.FieldImpact, "yearly report not delivered"),
			)
			return rollups.YearlyPayload{}, "incomplete year: " + detail, false
		}
		logger.Info("compiling partial year",
			logging.String(logging.FieldEventType, "partial_year"),
			logging.Int("months", 12-len(incomplete.Missing)),
		)
	}
	return rollups.CompileYear(run.Report, year, entries, x.o.cfg.Rollups.MaxTopItems), "", true
}

func (x *execution) updateRollup(logger *slog.Logger, run cadence.Run, rendered Rendered, items []Item) error {
	top := topRollupItems(items, x.o.cfg.Rollups.MaxTopItems)
	entry := rollups.Entry{
		TopItems:         top,
		ExecutiveSummary: rollups.DeriveMonthlySummary(rendered.Body, top, monthlySummaryBullets),
		GeneratedAt:      x.now,
	}
	if err := x.rollupDoc.UpsertMonth(run.Report, run.Period.Year, run.Period.Month, entry); err != nil {
		return err
	}
	removed := x.rollupDoc.Prune(run.Report, x.o.cfg.Rollups.MaxMonths, run.Period)
	x.rollupsChanged = true
	logger.Info("monthly rollup updated",
		logging.String(logging.FieldEventType, "rollup_upserted"),
		logging.String("period", run.Period.String()),
		logging.Int("top_items", len(top)),
		logging.Int("pruned", removed),
	)
	return nil
}

// persist prunes and saves the state document after completed daily runs and
// the rollup document after monthly updates. Dry runs write nothing.
func (x *execution) persist(result *Result) error {
	if x.inv.DryRun {
		return nil
	}
	logger := logging.WithContext(x.ctx, x.o.logger)
	cfg := x.o.cfg
	var errs []error

	protect := cfg.ProtectWindow()
	for _, report := range x.dailyReports {
		pruned, err := x.daily.Prune(report, cfg.State.RetentionDays, protect, x.now)
		if err != nil {
			return err
		}
		capped, err := x.daily.PruneCap(report, cfg.State.MaxEntriesPerReport, protect, x.now)
		if err != nil {
			return err
		}
		if pruned+capped > 0 {
			logger.Info("state pruned",
				logging.String(logging.FieldEventType, "state_pruned"),
				logging.String(logging.FieldReport, string(report)),
				logging.Int("expired", pruned),
				logging.Int("capped", capped),
			)
		}
	}

	if x.daily.Dirty() {
		if err := state.Save(cfg.Paths.StateFile, x.stateDoc, x.now); err != nil {
			errs = append(errs, x.persistFailed(logger, "state", err))
		} else {
			result.StateSaved = true
			x.event(x.ctx, logger, "", cadence.Daily, audit.EventStateSaved, cfg.Paths.StateFile)
		}
	}
	if x.rollupsChanged {
		if err := rollups.Save(cfg.Paths.RollupsFile, x.rollupDoc, x.now); err != nil {
			errs = append(errs, x.persistFailed(logger, "rollups", err))
		} else {
			result.RollupsSaved = true
			x.event(x.ctx, logger, "", cadence.Monthly, audit.EventRollupSaved, cfg.Paths.RollupsFile)
		}
	}
	return errors.Join(errs...)
}

func (x *execution) persistFailed(logger *slog.Logger, document string, err error) error {
	logging.ErrorWithContext(logger, "document save failed", "persist_failed",
		logging.String("document", document),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check file permissions and free space"),
	)
	x.event(x.ctx, logger, "", "", audit.EventError, document+": "+err.Error())
	if nerr := x.o.notifier.NotifyError(x.ctx, err, "saving "+document); nerr != nil {
		x.warnNotify(logger, nerr)
	}
	return fmt.Errorf("save %s: %w", document, err)
}

func (x *execution) fail(ctx context.Context, logger *slog.Logger, pair PairResult, stage string, err error) (PairResult, error) {
	pair.Status = StatusFailed
	pair.Reason = err.Error()
	logging.ErrorWithContext(logger, "report run failed", "pair_failed",
		logging.String("stage", stage),
		logging.Error(err),
	)
	x.event(ctx, logger, pair.Report, pair.Cadence, audit.EventError, stage+": "+err.Error())
	label := fmt.Sprintf("%s %s %s", pair.Report, pair.Cadence, stage)
	if nerr := x.o.notifier.NotifyError(ctx, err, label); nerr != nil {
		x.warnNotify(logger, nerr)
	}
	return pair, fmt.Errorf("%s: %w", label, err)
}

func (x *execution) event(ctx context.Context, logger *slog.Logger, report cadence.ReportKey, c cadence.Cadence, kind audit.EventKind, detail string) {
	err := x.o.journal.RecordEvent(ctx, audit.Event{
		RunID:     x.runID,
		Report:    report,
		Cadence:   c,
		Kind:      kind,
		Detail:    detail,
		CreatedAt: x.o.clock(),
	})
	if err != nil {
		x.o.warnJournal(logger, err)
	}
}

func (x *execution) warnNotify(logger *slog.Logger, err error) {
	logging.WarnWithContext(logger, "notification failed", "notification_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		logging.String(logging.FieldImpact, "operator alert not delivered"),
	)
}

// dedupeBatch drops repeated fingerprints within one collection.
func dedupeBatch(items []Item) []Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]Item, 0, len(items))
	for _, item := range items {
		fp := item.Fingerprint()
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, item)
	}
	return out
}

// topRollupItems keeps top picks first, then the remaining items in
// collection order, up to limit.
func topRollupItems(items []Item, limit int) []rollups.Item {
	ranked := slices.Clone(items)
	slices.SortStableFunc(ranked, func(a, b Item) int {
		switch {
		case a.TopPick == b.TopPick:
			return 0
		case a.TopPick:
			return -1
		default:
			return 1
		}
	})
	out := make([]rollups.Item, 0, min(len(ranked), max(limit, 0)))
	for _, item := range ranked {
		if limit > 0 && len(out) >= limit {
			break
		}
		if strings.TrimSpace(item.Title) == "" {
			continue
		}
		out = append(out, item.RollupItem())
	}
	return out
}
