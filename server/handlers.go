/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package server

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/PivotLLM/DeepResearch/events"
	"github.com/PivotLLM/DeepResearch/global"
	"github.com/PivotLLM/DeepResearch/runner"
)

// RunResult is returned by the run tools. Report tokens are counted rather
// than listed since the done event carries the whole report.
type RunResult struct {
	ThreadID     string         `json:"thread_id"`
	Outcome      string         `json:"outcome"`
	Error        string         `json:"error,omitempty"`
	ReportTokens int            `json:"report_tokens"`
	Events       []events.Event `json:"events"`
}

// Helper function to create JSON tool results safely
func createJSONResult(data interface{}) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(data)
	if err != nil {
		return mcp.NewToolResultError("Failed to create JSON result"), nil
	}
	return result, nil
}

// logToolCall logs an MCP tool invocation at INFO level
func (s *Server) logToolCall(toolName string, params map[string]string) {
	var parts []string
	for k, v := range params {
		if v != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", k, v))
		}
	}
	if len(parts) == 0 {
		s.logger.Infof("Tool %s called", toolName)
		return
	}
	sort.Strings(parts)
	s.logger.Infof("Tool %s called: %s", toolName, strings.Join(parts, ", "))
}

// collect folds a recorded event stream into a RunResult
func collect(threadID string, rec *events.Recorder, err error) *RunResult {
	result := &RunResult{ThreadID: threadID, Events: []events.Event{}}
	for _, ev := range rec.Events() {
		if ev.Type == events.TypeReportToken {
			result.ReportTokens++
			continue
		}
		if ev.IsTerminal() {
			result.Outcome = string(ev.Type)
		}
		result.Events = append(result.Events, ev)
	}
	if err != nil {
		result.Outcome = string(events.TypeError)
		result.Error = err.Error()
	}
	return result
}

// runResult converts a finished engine call into a tool result
func (s *Server) runResult(threadID string, rec *events.Recorder, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		s.logger.Warnf("Run %s ended with error: %v", threadID, err)
	}
	result, jsonErr := createJSONResult(collect(threadID, rec, err))
	if jsonErr == nil && err != nil {
		result.IsError = true
	}
	return result, jsonErr
}

func (s *Server) handleResearchStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	goal := mcp.ParseString(request, "goal", "")
	threadID := mcp.ParseString(request, "thread_id", "")

	s.logToolCall(global.ToolResearchStart, map[string]string{"thread_id": threadID})

	if strings.TrimSpace(goal) == "" {
		return mcp.NewToolResultError("goal parameter is required"), nil
	}
	if threadID == "" {
		threadID = runner.NewRunID()
	}

	rec := events.NewRecorder()
	err := s.engine.Start(ctx, threadID, goal, rec)
	return s.runResult(threadID, rec, err)
}

func (s *Server) handleResearchResume(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID := mcp.ParseString(request, "thread_id", "")
	action := mcp.ParseString(request, "action", "")
	feedback := mcp.ParseString(request, "feedback", "")

	s.logToolCall(global.ToolResearchResume, map[string]string{"thread_id": threadID, "action": action})

	if threadID == "" {
		return mcp.NewToolResultError("thread_id parameter is required"), nil
	}

	rec := events.NewRecorder()
	err := s.engine.Resume(ctx, threadID, global.Decision{Action: action, Feedback: feedback}, rec)
	return s.runResult(threadID, rec, err)
}

func (s *Server) handleResearchContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID := mcp.ParseString(request, "thread_id", "")

	s.logToolCall(global.ToolResearchContinue, map[string]string{"thread_id": threadID})

	if threadID == "" {
		return mcp.NewToolResultError("thread_id parameter is required"), nil
	}

	rec := events.NewRecorder()
	err := s.engine.Continue(ctx, threadID, rec)
	return s.runResult(threadID, rec, err)
}

func (s *Server) handleResearchStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID := mcp.ParseString(request, "thread_id", "")

	s.logToolCall(global.ToolResearchStatus, map[string]string{"thread_id": threadID})

	if threadID == "" {
		return mcp.NewToolResultError("thread_id parameter is required"), nil
	}

	status, err := s.engine.Status(ctx, threadID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return createJSONResult(status)
}

func (s *Server) handleResearchList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logToolCall(global.ToolResearchList, nil)

	runs, err := s.engine.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}
	return createJSONResult(map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleCorpusIndex(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logToolCall(global.ToolCorpusIndex, nil)

	result, err := s.corpus.Index(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to index corpus: %v", err)), nil
	}
	return createJSONResult(map[string]interface{}{
		"corpus_dir": s.corpus.Dir(),
		"index":      result,
	})
}
