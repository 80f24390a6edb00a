/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/PivotLLM/DeepResearch/global"
	"github.com/PivotLLM/DeepResearch/runner"
	"github.com/PivotLLM/DeepResearch/templates"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a run",
	RunE:  runStatus,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List research runs",
	RunE:  runList,
}

var statusJSON bool

func init() {
	statusCmd.Flags().StringVarP(&threadFlag, "thread", "t", "", "run identifier")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the full status as JSON")
	_ = statusCmd.MarkFlagRequired("thread")

	rootCmd.AddCommand(statusCmd, listCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	return withEnvironment(cmd, func(ctx context.Context, env *environment) error {
		status, err := env.services.Engine.Status(ctx, threadFlag)
		if err != nil {
			return err
		}
		if statusJSON {
			data, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}
		printStatus(cmd.OutOrStdout(), status)
		return nil
	})
}

func printStatus(out io.Writer, status *runner.RunStatus) {
	_, _ = fmt.Fprintf(out, "Run: %s\n", status.RunID)
	_, _ = fmt.Fprintf(out, "Goal: %s\n", status.Goal)
	_, _ = fmt.Fprintf(out, "Step: %s (%s)\n", status.Node, status.Status)
	_, _ = fmt.Fprintf(out, "Reflection loops: %d\n", status.LoopCount)
	_, _ = fmt.Fprintf(out, "Updated: %s\n", status.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	if status.Error != "" {
		_, _ = fmt.Fprintf(out, "Error: %s\n", status.Error)
	}

	pending := make(map[int]bool, len(status.Pending))
	for _, id := range status.Pending {
		pending[id] = true
	}
	_, _ = fmt.Fprintf(out, "\nPlan (%d tasks, %d researched):\n", status.Tasks, status.Results)
	for _, task := range status.Plan {
		mark := "x"
		if pending[task.ID] {
			mark = " "
		}
		_, _ = fmt.Fprintf(out, "  [%s] %d. %s\n", mark, task.ID, task.Title)
	}

	if status.Report != "" {
		_, _ = fmt.Fprintf(out, "\n%s\n", status.Report)
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	return withEnvironment(cmd, func(ctx context.Context, env *environment) error {
		runs, err := env.services.Engine.List(ctx)
		if err != nil {
			return err
		}
		printRuns(cmd.OutOrStdout(), runs)
		return nil
	})
}

func printRuns(out io.Writer, runs []global.RunSummary) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "No research runs")
		return
	}
	for _, run := range runs {
		_, _ = fmt.Fprintf(out, "%s  %-15s %-12s loops=%d tasks=%d/%d  %s\n",
			run.UpdatedAt.Local().Format("2006-01-02 15:04"), run.Status, run.Node,
			run.LoopCount, run.Results, run.Tasks, run.RunID)
		_, _ = fmt.Fprintf(out, "    %s\n", templates.Truncate(run.Goal, 100))
	}
}
