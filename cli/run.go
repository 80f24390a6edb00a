/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PivotLLM/DeepResearch/global"
	"github.com/PivotLLM/DeepResearch/runner"
)

var (
	goalFlag     string
	threadFlag   string
	feedbackFlag string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a research run",
	Long: `Plan research tasks for a goal. The run pauses with the proposed plan;
use "approve" or "revise" to continue it.`,
	RunE: runStart,
}

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve the plan of a run awaiting review",
	RunE:  runApprove,
}

var reviseCmd = &cobra.Command{
	Use:   "revise",
	Short: "Send plan feedback to a run awaiting review",
	RunE:  runRevise,
}

var continueCmd = &cobra.Command{
	Use:   "continue",
	Short: "Continue a failed or interrupted run from its last checkpoint",
	RunE:  runContinue,
}

func init() {
	startCmd.Flags().StringVarP(&goalFlag, "goal", "g", "", "research goal")
	startCmd.Flags().StringVarP(&threadFlag, "thread", "t", "", "run identifier (generated if omitted)")
	_ = startCmd.MarkFlagRequired("goal")

	for _, cmd := range []*cobra.Command{approveCmd, reviseCmd, continueCmd} {
		cmd.Flags().StringVarP(&threadFlag, "thread", "t", "", "run identifier")
		_ = cmd.MarkFlagRequired("thread")
	}
	reviseCmd.Flags().StringVarP(&feedbackFlag, "feedback", "f", "", "what the plan should change")
	_ = reviseCmd.MarkFlagRequired("feedback")

	rootCmd.AddCommand(startCmd, approveCmd, reviseCmd, continueCmd)
}

func runStart(cmd *cobra.Command, _ []string) error {
	threadID := threadFlag
	if threadID == "" {
		threadID = runner.NewRunID()
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "thread: %s\n", threadID)

	return withEnvironment(cmd, func(ctx context.Context, env *environment) error {
		return env.services.Engine.Start(ctx, threadID, goalFlag, newPrinter(cmd.OutOrStdout()))
	})
}

func runApprove(cmd *cobra.Command, _ []string) error {
	return resume(cmd, global.Decision{Action: global.ActionApprove})
}

func runRevise(cmd *cobra.Command, _ []string) error {
	return resume(cmd, global.Decision{Action: global.ActionRevise, Feedback: feedbackFlag})
}

func resume(cmd *cobra.Command, decision global.Decision) error {
	return withEnvironment(cmd, func(ctx context.Context, env *environment) error {
		return env.services.Engine.Resume(ctx, threadFlag, decision, newPrinter(cmd.OutOrStdout()))
	})
}

func runContinue(cmd *cobra.Command, _ []string) error {
	return withEnvironment(cmd, func(ctx context.Context, env *environment) error {
		return env.services.Engine.Continue(ctx, threadFlag, newPrinter(cmd.OutOrStdout()))
	})
}
