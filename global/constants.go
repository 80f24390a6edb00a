/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package global

import "fmt"

//goland:noinspection GoCommentStart,GoUnusedConst,GoUnusedConst,GoUnusedConst
const (
	// Configuration constants
	ConfigEnvVar          = "DEEPRESEARCH_CONFIG"
	DefaultBaseDir        = "~/.deepresearch"
	DefaultConfigFileName = "config.json"
	DefaultCorpusDir      = "corpus"
	DefaultRunsDir        = "runs"
	DefaultReportsDir     = "reports"

	// MCP Tool Names - Research runs
	ToolResearchStart    = "research_start"
	ToolResearchResume   = "research_resume"
	ToolResearchContinue = "research_continue"
	ToolResearchStatus   = "research_status"
	ToolResearchList     = "research_list"

	// MCP Tool Names - Corpus
	ToolCorpusIndex = "corpus_index"

	// Engine nodes (checkpoint cursor values)
	NodePlanning    = "planning"
	NodeHumanReview = "human_review"
	NodeDispatch    = "dispatch"
	NodeReflecting  = "reflecting"
	NodeWriting     = "writing"
	NodeDone        = "done"

	// Run status constants
	RunStatusRunning        = "running"
	RunStatusAwaitingReview = "awaiting_review"
	RunStatusCompleted      = "completed"
	RunStatusFailed         = "failed"

	// Human review actions
	ActionApprove = "approve"
	ActionRevise  = "revise"

	// Planner modes
	PlanModeInitial     = "initial"
	PlanModeRewrite     = "rewrite"
	PlanModeIncremental = "incremental"

	// Worker progress statuses
	ProgressResearching = "researching"
	ProgressCompleted   = "completed"

	// Fixed texts used when a capability returns nothing usable
	NoMaterialContent     = "no relevant material found"
	NoMaterialSource      = "System"
	NoContextText         = "No usable reference material was retrieved."
	ContentMissingText    = "content generation failed"
	SummaryMissingText    = "summary generation failed"
	SummaryFailureMarker  = "research failed"
	NoResultsGap          = "No research tasks have been executed yet; all required information is missing."
	UnparsedReflectionGap = "Unable to parse the evaluation; further research is recommended."
	UntitledTask          = "Untitled"

	// Checkpoint backends
	CheckpointMemory = "memory"
	CheckpointFile   = "file"
	CheckpointSQLite = "sqlite"

	// LLM types
	LLMTypeOpenAI  = "openai"
	LLMTypeCommand = "command"

	// Default Values
	DefaultMaxLoops        = 3
	MaxLoopsLimit          = 10
	DefaultMinPlanTasks    = 3
	DefaultMaxPlanTasks    = 5
	MaxPlanTasksLimit      = 20
	DefaultSummaryMaxChars = 100
	DefaultMaxConcurrent   = 5
	DefaultTopK            = 8
	DefaultChunkSize       = 1200
	DefaultTimeout         = 300 // seconds
	MinTimeout             = 10  // seconds
	MaxTimeout             = 1200
	DefaultModel           = "gpt-4o-mini"
	DefaultBaseURL         = "https://api.openai.com/v1"

	// Rate limiting
	DefaultRateLimitRequests = 10
	DefaultRateLimitPeriod   = 60

	// Log Levels
	LogLevelDebug = "DEBUG"
	LogLevelInfo  = "INFO"
	LogLevelWarn  = "WARN"
	LogLevelError = "ERROR"
	LogLevelFatal = "FATAL"

	// API Key Prefix
	EnvKeyPrefix = "env:"
)

// ValidateTimeout validates and normalizes a timeout value.
// Returns the validated timeout or an error if out of bounds.
// If timeout is 0, returns DefaultTimeout.
func ValidateTimeout(timeout int) (int, error) {
	if timeout == 0 {
		return DefaultTimeout, nil
	}
	if timeout < MinTimeout {
		return 0, fmt.Errorf("timeout must be at least %d seconds", MinTimeout)
	}
	if timeout > MaxTimeout {
		return 0, fmt.Errorf("timeout must be at most %d seconds", MaxTimeout)
	}
	return timeout, nil
}

// ValidateMaxLoops validates and normalizes the reflection loop bound.
// If value is 0, returns DefaultMaxLoops.
func ValidateMaxLoops(maxLoops int) (int, error) {
	if maxLoops == 0 {
		return DefaultMaxLoops, nil
	}
	if maxLoops < 1 {
		return 0, fmt.Errorf("max_loops must be at least 1")
	}
	if maxLoops > MaxLoopsLimit {
		return 0, fmt.Errorf("max_loops must be at most %d", MaxLoopsLimit)
	}
	return maxLoops, nil
}

// ValidatePlanSize validates the planner's task count guidance.
// Zero values are replaced by the defaults.
func ValidatePlanSize(minTasks, maxTasks int) (int, int, error) {
	if minTasks == 0 {
		minTasks = DefaultMinPlanTasks
	}
	if maxTasks == 0 {
		maxTasks = DefaultMaxPlanTasks
	}
	if minTasks < 1 {
		return 0, 0, fmt.Errorf("min_plan_tasks must be at least 1")
	}
	if maxTasks > MaxPlanTasksLimit {
		return 0, 0, fmt.Errorf("max_plan_tasks must be at most %d", MaxPlanTasksLimit)
	}
	if minTasks > maxTasks {
		return 0, 0, fmt.Errorf("min_plan_tasks (%d) cannot exceed max_plan_tasks (%d)", minTasks, maxTasks)
	}
	return minTasks, maxTasks, nil
}
