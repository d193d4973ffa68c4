package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/ticket-sla/internal/bootstrap"
	"github.com/spec-kit/ticket-sla/internal/worker"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run an SLA scan once",
}

func monitorRunCmd(use, short string, pick func(*bootstrap.Container) worker.ScheduledJob) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd.Context(), func(c *bootstrap.Container) error {
				job := pick(c)
				report, err := job.Run(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: scanned=%d notified=%d suppressed=%d escalated=%d failed=%d\n",
					job.Name(), report.Scanned, report.Notified, report.Suppressed, report.Escalated, report.Failed)
				return nil
			})
		},
	}
}

func init() {
	monitorCmd.AddCommand(
		monitorRunCmd("warn", "Notify about deadlines inside the warning lead time",
			func(c *bootstrap.Container) worker.ScheduledJob { return c.WarningJob }),
		monitorRunCmd("violate", "Escalate and notify breached deadlines",
			func(c *bootstrap.Container) worker.ScheduledJob { return c.ViolationJob }),
	)
	rootCmd.AddCommand(monitorCmd)
}
