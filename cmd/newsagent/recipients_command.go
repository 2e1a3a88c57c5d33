package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"newsagent/internal/cadence"
	"newsagent/internal/recipients"
)

type recipientRow struct {
	Report     cadence.ReportKey     `json:"report"`
	Cadence    cadence.Cadence       `json:"cadence"`
	Recipients []string              `json:"recipients"`
	Source     string                `json:"source,omitempty"`
	Fallbacks  []recipients.Fallback `json:"fallbacks,omitempty"`
	Error      string                `json:"error,omitempty"`
}

func newRecipientsCommand(ctx *commandContext) *cobra.Command {
	var reportsRaw string
	var cadenceRaw string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "recipients",
		Short: "Show how recipients resolve for each report and cadence",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reports, err := reportsFlag(cfg, reportsRaw)
			if err != nil {
				return err
			}
			cadences := cadence.AllCadences
			if strings.TrimSpace(cadenceRaw) != "" {
				c, err := cadence.ParseCadence(cadenceRaw)
				if err != nil {
					return err
				}
				cadences = []cadence.Cadence{c}
			}

			sources := ctx.recipientSources(cfg)
			var rows []recipientRow
			for _, report := range reports {
				for _, c := range cadences {
					res, err := recipients.Resolve(report, c, sources)
					row := recipientRow{
						Report:     report,
						Cadence:    c,
						Recipients: res.Recipients,
						Source:     res.Source,
						Fallbacks:  res.Fallbacks,
					}
					if err != nil {
						if !errors.Is(err, recipients.ErrNoRecipientsConfigured) {
							return err
						}
						row.Error = err.Error()
					}
					rows = append(rows, row)
				}
			}
			if jsonOutput {
				return writeJSON(cmd, rows)
			}

			table := make([][]string, 0, len(rows))
			for _, row := range rows {
				source := row.Source
				if row.Error != "" {
					source = "none"
				}
				if n := len(row.Fallbacks); n > 0 {
					source += fmt.Sprintf(" (%d skipped)", n)
				}
				table = append(table, []string{
					string(row.Report),
					string(row.Cadence),
					fmt.Sprintf("%d", len(row.Recipients)),
					source,
					strings.Join(row.Recipients, ", "),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Report", "Cadence", "Count", "Source", "Recipients"},
				table,
				2,
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&reportsRaw, "reports", "", "Reports to resolve (defaults to enabled reports)")
	cmd.Flags().StringVar(&cadenceRaw, "cadence", "", "Resolve a single cadence")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
