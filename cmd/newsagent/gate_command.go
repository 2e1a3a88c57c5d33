package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"newsagent/internal/cadence"
	"newsagent/internal/logging"
	"newsagent/internal/pipeline"
)

func newGateCommand(ctx *commandContext) *cobra.Command {
	var flags invocationFlags
	var at string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Show what the cadence gate would run now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			inv, err := flags.invocation()
			if err != nil {
				return err
			}
			opts := pipeline.Options{
				Config:  cfg,
				Logger:  logging.NewNop(),
				Sources: ctx.recipientSources(cfg),
			}
			if at != "" {
				instant, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
				opts.Clock = func() time.Time { return instant }
			}
			orch, err := pipeline.New(opts)
			if err != nil {
				return err
			}
			decision, err := orch.Decide(cmd.Context(), inv)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, decision)
			}
			renderDecision(cmd.OutOrStdout(), decision, orch.Gate().Policy().Location, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&at, "at", "", "Evaluate at this RFC 3339 instant instead of now")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the decision as JSON")
	return cmd
}

func renderDecision(out io.Writer, d cadence.Decision, loc *time.Location, colorize bool) {
	kind := statusOK
	verdict := "proceed"
	if !d.Proceed {
		kind = statusWarn
		verdict = "suppressed"
	}
	fmt.Fprintln(out, renderStatusLine("Gate", kind, verdict, colorize))
	fmt.Fprintln(out, renderStatusLine("Trigger", statusInfo, string(d.Trigger), colorize))
	fmt.Fprintln(out, renderStatusLine("Local time", statusInfo, formatTime(d.Now, loc), colorize))
	fmt.Fprintln(out, renderStatusLine("Reason", statusInfo, d.Reason, colorize))
	if len(d.Runs) == 0 {
		return
	}

	rows := make([][]string, 0, len(d.Runs))
	for _, run := range d.Runs {
		period := "-"
		if !run.Period.IsZero() {
			period = run.Period.String()
		}
		rows = append(rows, []string{
			string(run.Report),
			string(run.Cadence),
			yesNo(run.Proceed),
			formatLookback(run.Lookback),
			formatTime(run.Since, loc),
			period,
			run.Reason,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Report", "Cadence", "Proceed", "Lookback", "Since", "Period", "Reason"},
		rows,
		3,
	))
}
