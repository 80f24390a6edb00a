/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PivotLLM/DeepResearch/global"
	"github.com/PivotLLM/DeepResearch/logging"
	"github.com/PivotLLM/DeepResearch/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Serve the research tools (research_start, research_resume, research_continue,
research_status, research_list, corpus_index) over the Model Context Protocol
on stdin/stdout. Logs go to the configured log file.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", global.ProgramName, global.Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func(logger *logging.Logger) {
		_ = logger.Sync()
		_ = logger.Close()
	}(logger)

	logger.Infof("%s v%s starting", global.ProgramName, global.Version)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Run()
}
