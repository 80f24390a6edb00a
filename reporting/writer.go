/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package reporting

import (
	"context"
	"fmt"
	"strings"

	"github.com/PivotLLM/DeepResearch/events"
	"github.com/PivotLLM/DeepResearch/global"
	"github.com/PivotLLM/DeepResearch/llm"
	"github.com/PivotLLM/DeepResearch/logging"
	"github.com/PivotLLM/DeepResearch/prompts"
)

// Writer synthesizes the final report, streaming it token by token
type Writer struct {
	llm     llm.Completer
	prompts *prompts.Catalog
	logger  *logging.Logger
}

// WriterOption configures a Writer
type WriterOption func(*Writer)

// WithPrompts sets the prompt catalog
func WithPrompts(c *prompts.Catalog) WriterOption {
	return func(w *Writer) {
		w.prompts = c
	}
}

// NewWriter creates a Writer
func NewWriter(completer llm.Completer, logger *logging.Logger, opts ...WriterOption) *Writer {
	w := &Writer{llm: completer, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	if w.prompts == nil {
		w.prompts = prompts.Default()
	}
	return w
}

// Write produces the report for goal from results. Every fragment is
// published as a report_token event as soon as it arrives.
func (w *Writer) Write(ctx context.Context, goal string, results []global.TaskResult, emit events.Emitter) (string, error) {
	_ = emit.Log(ctx, fmt.Sprintf("Writing the final report from %d result(s)...", len(results)))

	data := prompts.ReviewData{Goal: goal, Context: BuildContext(results)}
	system, err := w.prompts.Render(prompts.WriterSystem, data)
	if err != nil {
		return "", err
	}
	user, err := w.prompts.Render(prompts.WriterUser, data)
	if err != nil {
		return "", err
	}

	tokens := 0
	report, err := w.llm.Stream(ctx, []llm.Message{llm.System(system), llm.User(user)}, func(token string) error {
		tokens++
		return emit.Token(ctx, token)
	})
	if err != nil {
		w.logger.Errorf("Writer: report synthesis failed after %d fragment(s): %v", tokens, err)
		return "", fmt.Errorf("report synthesis failed: %w", err)
	}

	w.logger.Infof("Writer: report complete, %d fragment(s), %d bytes", tokens, len(report))
	return report, nil
}

// BuildContext renders one labeled block per result
func BuildContext(results []global.TaskResult) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[Sub-task result: %s]\n%s", r.Title, r.Content)
	}
	return strings.Join(blocks, "\n\n")
}
