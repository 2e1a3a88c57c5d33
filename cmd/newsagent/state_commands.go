package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"newsagent/internal/cadence"
	"newsagent/internal/config"
	"newsagent/internal/logging"
	"newsagent/internal/runlock"
	"newsagent/internal/state"
)

func newStateCommand(ctx *commandContext) *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and maintain the processed-item state",
	}
	stateCmd.AddCommand(newStateShowCommand(ctx))
	stateCmd.AddCommand(newStatePruneCommand(ctx))
	return stateCmd
}

type stateSummary struct {
	Report   cadence.ReportKey             `json:"report"`
	Records  int                           `json:"records"`
	Oldest   time.Time                     `json:"oldest,omitzero"`
	Newest   time.Time                     `json:"newest,omitzero"`
	LastRuns map[cadence.Cadence]time.Time `json:"last_runs,omitempty"`
}

func summarizeState(doc *state.Document, reports []cadence.ReportKey) []stateSummary {
	store := state.NewStore(doc, state.ReadOnly)
	out := make([]stateSummary, 0, len(reports))
	for _, report := range reports {
		summary := stateSummary{Report: report, Records: store.Count(report), LastRuns: map[cadence.Cadence]time.Time{}}
		if records := store.Records(report); len(records) > 0 {
			summary.Oldest = records[0].FirstSeenAt
			summary.Newest = records[len(records)-1].FirstSeenAt
		}
		for _, c := range cadence.AllCadences {
			if at, ok := store.LastRun(report, c); ok {
				summary.LastRuns[c] = at
			}
		}
		out = append(out, summary)
	}
	return out
}

func reportsFlag(cfg *config.Config, raw string) ([]cadence.ReportKey, error) {
	if strings.TrimSpace(raw) == "" {
		return cfg.EnabledReports()
	}
	return cadence.ParseReports(raw)
}

func newStateShowCommand(ctx *commandContext) *cobra.Command {
	var reportsRaw string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show record counts and last-run timestamps",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reports, err := reportsFlag(cfg, reportsRaw)
			if err != nil {
				return err
			}
			doc, err := state.Load(cfg.Paths.StateFile, logging.NewNop())
			if err != nil {
				return err
			}
			summaries := summarizeState(doc, reports)
			if jsonOutput {
				return writeJSON(cmd, summaries)
			}

			policy, err := cfg.GatePolicy()
			if err != nil {
				return err
			}
			loc := policy.Location
			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, []string{
					string(s.Report),
					fmt.Sprintf("%d", s.Records),
					formatTime(s.Oldest, loc),
					formatTime(s.Newest, loc),
					formatTime(s.LastRuns[cadence.Daily], loc),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State file: %s\n", cfg.Paths.StateFile)
			fmt.Fprintln(out, renderTable(
				[]string{"Report", "Records", "Oldest", "Newest", "Last daily run"},
				rows,
				1,
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&reportsRaw, "reports", "", "Reports to show (defaults to enabled reports)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newStatePruneCommand(ctx *commandContext) *cobra.Command {
	var reportsRaw string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Apply retention and size limits to the processed-item state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reports, err := reportsFlag(cfg, reportsRaw)
			if err != nil {
				return err
			}

			lock, err := runlock.Acquire(cfg.Paths.LockFile)
			if err != nil {
				return err
			}
			defer lock.Release()

			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			doc, err := state.Load(cfg.Paths.StateFile, logger)
			if err != nil {
				return err
			}
			store := state.NewStore(doc, state.ReadWrite)
			now := time.Now()
			protect := cfg.ProtectWindow()
			out := cmd.OutOrStdout()
			for _, report := range reports {
				expired, err := store.Prune(report, cfg.State.RetentionDays, protect, now)
				if err != nil {
					return err
				}
				capped, err := store.PruneCap(report, cfg.State.MaxEntriesPerReport, protect, now)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: removed %d expired, %d over cap, %d remain\n", report, expired, capped, store.Count(report))
			}
			if dryRun || !store.Dirty() {
				fmt.Fprintln(out, "State file unchanged")
				return nil
			}
			if err := state.Save(cfg.Paths.StateFile, doc, now); err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved %s\n", cfg.Paths.StateFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&reportsRaw, "reports", "", "Reports to prune (defaults to enabled reports)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be removed without saving")
	return cmd
}
