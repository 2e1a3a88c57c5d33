package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"newsagent/internal/audit"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var runID string
	var pruneDays int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs from the audit journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			journal, err := audit.Open(cfg)
			if err != nil {
				return fmt.Errorf("open audit journal: %w", err)
			}
			defer journal.Close()
			out := cmd.OutOrStdout()

			if pruneDays > 0 {
				removed, err := journal.Prune(cmd.Context(), time.Now().AddDate(0, 0, -pruneDays))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d runs older than %d days\n", removed, pruneDays)
				return nil
			}

			if id := strings.TrimSpace(runID); id != "" {
				events, err := journal.Events(cmd.Context(), id)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, events)
				}
				rows := make([][]string, 0, len(events))
				for _, ev := range events {
					rows = append(rows, []string{
						ev.CreatedAt.Local().Format("15:04:05"),
						string(ev.Report),
						string(ev.Cadence),
						string(ev.Kind),
						ev.Detail,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Time", "Report", "Cadence", "Event", "Detail"},
					rows,
				))
				return nil
			}

			runs, err := journal.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.ID,
					run.LocalTime,
					run.Trigger,
					yesNo(run.Proceed),
					run.Outcome,
					run.Reason,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Local time", "Trigger", "Proceed", "Outcome", "Reason"},
				rows,
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show the events of one run")
	cmd.Flags().IntVar(&pruneDays, "prune-days", 0, "Delete runs older than this many days instead of listing")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
