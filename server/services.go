/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package server

import (
	"fmt"

	"github.com/PivotLLM/DeepResearch/checkpoint"
	"github.com/PivotLLM/DeepResearch/config"
	"github.com/PivotLLM/DeepResearch/llm"
	"github.com/PivotLLM/DeepResearch/logging"
	"github.com/PivotLLM/DeepResearch/planner"
	"github.com/PivotLLM/DeepResearch/prompts"
	"github.com/PivotLLM/DeepResearch/reflector"
	"github.com/PivotLLM/DeepResearch/reporting"
	"github.com/PivotLLM/DeepResearch/retrieval"
	"github.com/PivotLLM/DeepResearch/runner"
	"github.com/PivotLLM/DeepResearch/templates"
	"github.com/PivotLLM/DeepResearch/worker"
)

// Services holds the components shared by the MCP server and the CLI
type Services struct {
	Engine   *runner.Engine
	Corpus   *retrieval.Corpus
	Store    checkpoint.Store
	Reporter *reporting.Reporter
}

// NewServices builds the research engine and its collaborators from configuration
func NewServices(cfg *config.Config, logger *logging.Logger) (*Services, error) {
	catalog, err := prompts.Load(cfg.PromptsFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	completer, err := llm.New(cfg.LLM(), cfg.RateLimit(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	store, err := checkpoint.Open(cfg.CheckpointBackend(), cfg.RunsDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	rc := cfg.Retrieval()
	corpus := retrieval.NewCorpus(rc.CorpusDir,
		retrieval.WithTopK(rc.TopK),
		retrieval.WithChunkSize(rc.ChunkSize),
		retrieval.WithConversion(rc.ShouldConvert()),
		retrieval.WithLogger(logger),
	)

	validator := templates.New(logger)
	research := cfg.Research()
	reporter := reporting.New(logger, cfg.ReportsDir())

	engine := runner.New(store,
		planner.New(completer, logger,
			planner.WithPrompts(catalog),
			planner.WithValidator(validator),
		),
		worker.New(completer, corpus, logger,
			worker.WithPrompts(catalog),
			worker.WithValidator(validator),
			worker.WithSummaryMaxChars(research.SummaryMaxChars),
		),
		reflector.New(completer, logger,
			reflector.WithPrompts(catalog),
			reflector.WithValidator(validator),
		),
		reporting.NewWriter(completer, logger, reporting.WithPrompts(catalog)),
		logger,
		runner.WithSettings(cfg.RunSettings()),
		runner.WithMaxConcurrent(research.MaxConcurrent),
		runner.WithArchiver(reporter),
	)

	logger.Infof("Services ready: checkpoint backend %s at %s, corpus %s, reports %s",
		cfg.CheckpointBackend(), cfg.RunsDir(), corpus.Dir(), reporter.Dir())

	return &Services{
		Engine:   engine,
		Corpus:   corpus,
		Store:    store,
		Reporter: reporter,
	}, nil
}

// Close releases the checkpoint store
func (s *Services) Close() error {
	return s.Store.Close()
}
