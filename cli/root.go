/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package cli implements the deepresearch command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/PivotLLM/DeepResearch/config"
	"github.com/PivotLLM/DeepResearch/global"
	"github.com/PivotLLM/DeepResearch/logging"
	"github.com/PivotLLM/DeepResearch/server"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "deepresearch",
	Short: "Human-in-the-loop deep research over a local document corpus",
	Long: `DeepResearch plans research tasks for a goal, pauses for you to review the
plan, researches the tasks in parallel against a local document corpus,
reflects on gaps, and writes a cited Markdown report.

Runs are checkpointed after every step and can be resumed from the command
line or through the MCP server ("serve").`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		fmt.Sprintf("config file (default is $%s or %s/%s)", global.ConfigEnvVar, global.DefaultBaseDir, global.DefaultConfigFileName))
}

// environment holds what a command needs once configuration is loaded
type environment struct {
	cfg      *config.Config
	logger   *logging.Logger
	services *server.Services
}

// loadConfig loads configuration and opens the configured log
func loadConfig() (*config.Config, *logging.Logger, error) {
	var opts []config.Option
	if configPath != "" {
		opts = append(opts, config.WithConfigPath(configPath))
	}
	cfg := config.New(opts...)
	if err := cfg.Load(); err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}

	logger, err := logging.New(cfg.LogFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetLevel(cfg.LogLevel())

	if cfg.IsFirstRun() {
		logger.Infof("First run detected - created default configuration at %s", cfg.ConfigPath())
		logger.Info("Please edit the configuration to set the completion endpoint and API key")
	}
	return cfg, logger, nil
}

// loadEnvironment loads configuration and builds the services
func loadEnvironment() (*environment, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	services, err := server.NewServices(cfg, logger)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	return &environment{cfg: cfg, logger: logger, services: services}, nil
}

// Close releases the store and flushes the log
func (e *environment) Close() {
	if err := e.services.Close(); err != nil {
		e.logger.Warnf("Failed to close checkpoint store: %v", err)
	}
	_ = e.logger.Sync()
	_ = e.logger.Close()
}

// withEnvironment runs fn with loaded services and a context cancelled on SIGINT or SIGTERM
func withEnvironment(cmd *cobra.Command, fn func(ctx context.Context, env *environment) error) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, env)
}
