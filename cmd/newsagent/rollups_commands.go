package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"newsagent/internal/cadence"
	"newsagent/internal/logging"
	"newsagent/internal/pipeline"
	"newsagent/internal/rollups"
)

func newRollupsCommand(ctx *commandContext) *cobra.Command {
	rollupsCmd := &cobra.Command{
		Use:   "rollups",
		Short: "Inspect monthly rollups",
	}
	rollupsCmd.AddCommand(newRollupsListCommand(ctx))
	rollupsCmd.AddCommand(newRollupsShowCommand(ctx))
	return rollupsCmd
}

func newRollupsListCommand(ctx *commandContext) *cobra.Command {
	var reportsRaw string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored monthly rollups",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reports, err := reportsFlag(cfg, reportsRaw)
			if err != nil {
				return err
			}
			doc, err := rollups.Load(cfg.Paths.RollupsFile, logging.NewNop())
			if err != nil {
				return err
			}
			if jsonOutput {
				out := make(map[cadence.ReportKey][]rollups.Entry, len(reports))
				for _, report := range reports {
					out[report] = doc.Entries(report)
				}
				return writeJSON(cmd, out)
			}

			var rows [][]string
			for _, report := range reports {
				for _, entry := range doc.Entries(report) {
					rows = append(rows, []string{
						string(report),
						entry.Period().String(),
						fmt.Sprintf("%d", len(entry.TopItems)),
						fmt.Sprintf("%d", len(entry.ExecutiveSummary)),
						entry.GeneratedAt.Format(time.DateOnly),
					})
				}
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No rollups stored")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Report", "Month", "Top items", "Bullets", "Generated"},
				rows,
				2, 3,
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&reportsRaw, "reports", "", "Reports to list (defaults to enabled reports)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newRollupsShowCommand(ctx *commandContext) *cobra.Command {
	var reportRaw string
	var year int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Compile and show the yearly payload for a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report, err := cadence.ParseReport(strings.TrimSpace(reportRaw))
			if err != nil {
				return err
			}
			if year <= 0 {
				year = time.Now().Year()
			}
			doc, err := rollups.Load(cfg.Paths.RollupsFile, logging.NewNop())
			if err != nil {
				return err
			}
			entries, err := doc.Year(report, year)
			if err != nil && !errors.Is(err, rollups.ErrIncompleteYear) {
				return err
			}
			payload := rollups.CompileYear(report, year, entries, cfg.Rollups.MaxTopItems)
			if jsonOutput {
				return writeJSON(cmd, payload)
			}
			rendered, err := pipeline.MarkdownRenderer{}.Render(cmd.Context(), pipeline.RenderInput{
				Report:  report,
				Title:   cfg.ReportTitle(string(report)),
				Cadence: cadence.Yearly,
				Period:  cadence.Period{Year: year},
				Until:   time.Now(),
				Yearly:  &payload,
			})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), rendered.Body)
			return nil
		},
	}
	cmd.Flags().StringVar(&reportRaw, "report", "cybermed", "Report profile")
	cmd.Flags().IntVar(&year, "year", 0, "Year to compile (defaults to the current year)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the compiled payload as JSON")
	return cmd
}
