package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"newsagent/internal/audit"
	"newsagent/internal/logging"
	"newsagent/internal/notifications"
	"newsagent/internal/pipeline"
	"newsagent/internal/preflight"
	"newsagent/internal/runlock"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags invocationFlags
	var dryRun bool
	var skipPreflight bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the newsletter pipeline for whatever the gate finds due",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			inv, err := flags.invocation()
			if err != nil {
				return err
			}
			inv.DryRun = dryRun

			logger, err := ctx.logger()
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			sources := ctx.recipientSources(cfg)

			if !skipPreflight {
				if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg, sources)); len(failed) > 0 {
					details := make([]string, 0, len(failed))
					for _, f := range failed {
						details = append(details, f.Name+": "+f.Detail)
					}
					return fmt.Errorf("preflight failed: %s", strings.Join(details, "; "))
				}
			}

			lock, err := runlock.Acquire(cfg.Paths.LockFile)
			if err != nil {
				return err
			}
			defer func() {
				if err := lock.Release(); err != nil {
					logger.Warn("failed to release run lock", logging.Args(logging.Error(err))...)
				}
			}()

			journal, err := audit.Open(cfg)
			if err != nil {
				return fmt.Errorf("open audit journal: %w", err)
			}
			defer journal.Close()

			orch, err := pipeline.New(pipeline.Options{
				Config:   cfg,
				Logger:   logger,
				Notifier: notifications.NewService(cfg),
				Journal:  journal,
				Sources:  sources,
			})
			if err != nil {
				return err
			}

			result, runErr := orch.Run(cmd.Context(), inv)
			if jsonOutput {
				if err := writeJSON(cmd, result); err != nil {
					return err
				}
			} else {
				renderRunResult(cmd.OutOrStdout(), result, shouldColorize(cmd.OutOrStdout()))
			}
			return runErr
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render and resolve recipients without sending or saving")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip directory and document checks")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the run result as JSON")
	return cmd
}

func renderRunResult(out io.Writer, result pipeline.Result, colorize bool) {
	fmt.Fprintln(out, renderStatusLine("Run", statusInfo, result.RunID, colorize))
	if !result.Decision.Proceed {
		fmt.Fprintln(out, renderStatusLine("Gate", statusWarn, result.Decision.Reason, colorize))
		return
	}
	rows := make([][]string, 0, len(result.Pairs))
	for _, pair := range result.Pairs {
		detail := pair.Reason
		if detail == "" && len(pair.Recipients) > 0 {
			detail = fmt.Sprintf("%d recipients via %s", len(pair.Recipients), pair.RecipientSource)
		}
		rows = append(rows, []string{
			string(pair.Report),
			string(pair.Cadence),
			string(pair.Status),
			fmt.Sprintf("%d", pair.Items),
			detail,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Report", "Cadence", "Status", "Items", "Detail"},
		rows,
		3,
	))
	fmt.Fprintln(out, renderStatusLine("State", statusInfo, "saved: "+yesNo(result.StateSaved), colorize))
	fmt.Fprintln(out, renderStatusLine("Rollups", statusInfo, "saved: "+yesNo(result.RollupsSaved), colorize))
}
