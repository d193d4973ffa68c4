package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ticket-sla/internal/bootstrap"
	"github.com/spec-kit/ticket-sla/internal/workflow"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Import and export workflow graphs",
}

var workflowImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create a workflow from a YAML definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		def, err := workflow.ParseDefinition(data)
		if err != nil {
			return err
		}
		return withContainer(cmd.Context(), func(c *bootstrap.Container) error {
			wf, g, err := c.Workflows.CreateWorkflow(cmd.Context(), *def)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "workflow %s (%s)\n", wf.ID, wf.Name)
			for _, st := range g.States() {
				fmt.Fprintf(out, "  state %s %s initial=%t final=%t\n", st.ID, st.Name, st.IsInitial, st.IsFinal)
			}
			return nil
		})
	},
}

var workflowExportCmd = &cobra.Command{
	Use:   "export <workflow-id>",
	Short: "Print a workflow as a YAML definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd.Context(), func(c *bootstrap.Container) error {
			wf, g, err := c.Workflows.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(workflow.Definition(wf.Name, wf.Description, g)); err != nil {
				return err
			}
			return enc.Close()
		})
	},
}

var workflowDueCmd = &cobra.Command{
	Use:   "due <workflow-id> <state-id>",
	Short: "Print the SLA due date for a ticket entering a state now",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd.Context(), func(c *bootstrap.Container) error {
			due, err := workflow.NewClock(c.Workflows).EarliestDueDate(cmd.Context(), args[0], args[1], time.Now())
			if err != nil {
				return err
			}
			if due == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no SLA")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), due.UTC().Format(time.RFC3339))
			return nil
		})
	},
}

func init() {
	workflowCmd.AddCommand(workflowImportCmd, workflowExportCmd, workflowDueCmd)
	rootCmd.AddCommand(workflowCmd)
}
