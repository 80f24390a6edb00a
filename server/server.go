/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package server

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/PivotLLM/DeepResearch/config"
	"github.com/PivotLLM/DeepResearch/global"
	"github.com/PivotLLM/DeepResearch/logging"
	"github.com/PivotLLM/DeepResearch/retrieval"
	"github.com/PivotLLM/DeepResearch/runner"
)

// Server wraps the MCP server with the research services
type Server struct {
	logger    *logging.Logger
	services  *Services
	engine    *runner.Engine
	corpus    *retrieval.Corpus
	mcpServer *server.MCPServer
}

// New creates a new server instance
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	services, err := NewServices(cfg, logger)
	if err != nil {
		return nil, err
	}
	return newServer(services, logger)
}

func newServer(services *Services, logger *logging.Logger) (*Server, error) {
	mcpServer := server.NewMCPServer(
		global.ProgramName,
		global.Version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	srv := &Server{
		logger:    logger,
		services:  services,
		engine:    services.Engine,
		corpus:    services.Corpus,
		mcpServer: mcpServer,
	}

	if err := srv.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return srv, nil
}

// readOnlyTool creates a tool with read-only annotations
func (s *Server) readOnlyTool(name string, opts ...mcp.ToolOption) mcp.Tool {
	opts = append(opts, mcp.WithToolAnnotation(mcp.ToolAnnotation{
		ReadOnlyHint:    mcp.ToBoolPtr(true),
		DestructiveHint: mcp.ToBoolPtr(false),
		OpenWorldHint:   mcp.ToBoolPtr(false),
	}))
	return mcp.NewTool(name, opts...)
}

// defaultTool creates a non-destructive, open-world tool
func (s *Server) defaultTool(name string, opts ...mcp.ToolOption) mcp.Tool {
	opts = append(opts, mcp.WithToolAnnotation(mcp.ToolAnnotation{
		ReadOnlyHint:    mcp.ToBoolPtr(false),
		DestructiveHint: mcp.ToBoolPtr(false),
		OpenWorldHint:   mcp.ToBoolPtr(true),
	}))
	return mcp.NewTool(name, opts...)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcpServer.AddTool(
		s.defaultTool(global.ToolResearchStart,
			mcp.WithDescription("Start a research run for a goal. The run plans its research tasks and then pauses for review: "+
				"approve or revise the returned plan with research_resume."),
			mcp.WithString("goal",
				mcp.Description("The research question or goal"),
				mcp.Required(),
			),
			mcp.WithString("thread_id",
				mcp.Description("Optional run identifier (a new one is generated if omitted)"),
			),
		), s.handleResearchStart)

	s.mcpServer.AddTool(
		s.defaultTool(global.ToolResearchResume,
			mcp.WithDescription("Resume a run that is awaiting plan review. 'approve' executes the plan, reflects and writes the report; "+
				"'revise' regenerates the plan from your feedback and pauses for review again."),
			mcp.WithString("thread_id",
				mcp.Description("Run identifier returned by research_start"),
				mcp.Required(),
			),
			mcp.WithString("action",
				mcp.Description("Review decision"),
				mcp.Enum(global.ActionApprove, global.ActionRevise),
				mcp.Required(),
			),
			mcp.WithString("feedback",
				mcp.Description("Required for 'revise': what the plan should change"),
			),
		), s.handleResearchResume)

	s.mcpServer.AddTool(
		s.defaultTool(global.ToolResearchContinue,
			mcp.WithDescription("Continue a run from its last checkpoint after a failure or interruption. Completed tasks are not repeated."),
			mcp.WithString("thread_id",
				mcp.Description("Run identifier"),
				mcp.Required(),
			),
		), s.handleResearchContinue)

	s.mcpServer.AddTool(
		s.readOnlyTool(global.ToolResearchStatus,
			mcp.WithDescription("Show the state of a run: current step, plan, pending tasks and the report once written."),
			mcp.WithString("thread_id",
				mcp.Description("Run identifier"),
				mcp.Required(),
			),
		), s.handleResearchStatus)

	s.mcpServer.AddTool(
		s.readOnlyTool(global.ToolResearchList,
			mcp.WithDescription("List all research runs, most recently updated first."),
		), s.handleResearchList)

	s.mcpServer.AddTool(
		s.defaultTool(global.ToolCorpusIndex,
			mcp.WithDescription("Convert and index the document corpus used for research. Runs index the corpus on first use; "+
				"call this after adding documents."),
		), s.handleCorpusIndex)

	return nil
}

// Run starts the MCP server with graceful shutdown
func (s *Server) Run() error {
	defer func() {
		if err := s.services.Close(); err != nil {
			s.logger.Warnf("Failed to close checkpoint store: %v", err)
		}
	}()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	errChan := make(chan error, 1)
	go func() {
		// ServeStdio returns when stdin is closed (EOF) or on error
		errChan <- server.ServeStdio(s.mcpServer)
	}()

	s.logger.Infof("MCP server started successfully")

	select {
	case <-sigChan:
		s.logger.Info("Shutdown signal received")
		s.waitForRuns()
		s.logger.Info("Server stopped")
		if err := s.logger.Sync(); err != nil {
			s.logger.Warnf("Failed to flush logs on shutdown: %v", err)
		}
		return nil

	case err := <-errChan:
		if err != nil {
			s.logger.Errorf("Server error: %v", err)
			s.waitForRuns()
			return fmt.Errorf("server error: %w", err)
		}
		s.logger.Info("Connection closed")
		s.waitForRuns()
		s.logger.Info("Server exiting")
		return nil
	}
}

// waitForRuns waits for research runs in progress so their checkpoints are written
func (s *Server) waitForRuns() {
	if s.engine.IsRunning() {
		s.logger.Info("Waiting for active research runs to finish...")
		s.engine.Wait()
		s.logger.Info("All research runs finished")
	}
}
