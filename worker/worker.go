/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package worker executes a single research task: it retrieves reference
// material for the task's query and asks the language model to synthesize
// findings and a short summary from it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PivotLLM/DeepResearch/events"
	"github.com/PivotLLM/DeepResearch/global"
	"github.com/PivotLLM/DeepResearch/llm"
	"github.com/PivotLLM/DeepResearch/logging"
	"github.com/PivotLLM/DeepResearch/prompts"
	"github.com/PivotLLM/DeepResearch/retrieval"
	"github.com/PivotLLM/DeepResearch/templates"
)

// UnknownSource names material whose origin the retriever did not report
const UnknownSource = "Unknown"

// Worker researches tasks
type Worker struct {
	llm             llm.Completer
	retriever       retrieval.Retriever
	prompts         *prompts.Catalog
	validator       *templates.Validator
	summaryMaxChars int
	timeout         time.Duration
	logger          *logging.Logger
}

// Option configures a Worker
type Option func(*Worker)

// New creates a new Worker with the given options
func New(completer llm.Completer, retriever retrieval.Retriever, logger *logging.Logger, opts ...Option) *Worker {
	w := &Worker{
		llm:             completer,
		retriever:       retriever,
		summaryMaxChars: global.DefaultSummaryMaxChars,
		logger:          logger,
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.prompts == nil {
		w.prompts = prompts.Default()
	}
	if w.validator == nil {
		w.validator = templates.New(logger)
	}
	return w
}

// WithPrompts sets the prompt catalog
func WithPrompts(c *prompts.Catalog) Option {
	return func(w *Worker) {
		w.prompts = c
	}
}

// WithValidator sets the output validator
func WithValidator(v *templates.Validator) Option {
	return func(w *Worker) {
		w.validator = v
	}
}

// WithSummaryMaxChars sets the summary length requested from the model
func WithSummaryMaxChars(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.summaryMaxChars = n
		}
	}
}

// WithTimeout bounds the time spent on one task. Zero means no limit.
func WithTimeout(timeout time.Duration) Option {
	return func(w *Worker) {
		w.timeout = timeout
	}
}

// Execute researches one task. Retrieval and synthesis failures are folded
// into the result; the only error returned is the context's, in which case
// no result is produced.
func (w *Worker) Execute(ctx context.Context, task global.ResearchTask, emit events.Emitter) (global.TaskResult, error) {
	start := time.Now()

	_ = emit.Progress(ctx, events.Progress{
		TaskID:  task.ID,
		Title:   task.Title,
		Status:  global.ProgressResearching,
		Message: fmt.Sprintf("Researching %s...", task.Title),
	})

	taskCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	items := w.retrieve(taskCtx, task)
	if err := ctx.Err(); err != nil {
		return global.TaskResult{}, err
	}

	contextText, references := BuildContext(items)
	content, summary := w.synthesize(taskCtx, task, contextText)
	if err := ctx.Err(); err != nil {
		return global.TaskResult{}, err
	}

	result := global.TaskResult{
		TaskID:     task.ID,
		Title:      task.Title,
		Content:    content,
		Summary:    summary,
		References: references,
	}

	_ = emit.Progress(ctx, events.Progress{
		TaskID:  task.ID,
		Title:   task.Title,
		Status:  global.ProgressCompleted,
		Message: fmt.Sprintf("%s research completed (%s)", task.Title, summary),
		Summary: summary,
	})

	w.logger.Infof("Worker: task %d (%s) completed in %v, %d reference(s)",
		task.ID, task.Title, time.Since(start).Round(time.Millisecond), len(references))
	return result, nil
}

// retrieve fetches context for the task, substituting the sentinel item when
// retrieval fails or finds nothing
func (w *Worker) retrieve(ctx context.Context, task global.ResearchTask) []global.RetrievedItem {
	if w.retriever == nil {
		return []global.RetrievedItem{global.NoMaterialItem()}
	}

	items, err := w.retriever.Retrieve(ctx, task.Query)
	if err != nil {
		w.logger.Warnf("Worker: retrieval failed for task %d (%s): %v", task.ID, task.Title, err)
		return []global.RetrievedItem{global.NoMaterialItem()}
	}
	if len(items) == 0 {
		w.logger.Debugf("Worker: no material found for task %d query %q", task.ID, task.Query)
		return []global.RetrievedItem{global.NoMaterialItem()}
	}
	return items
}

// synthesize asks the model for content and summary. It never fails: errors
// become the content and the summary becomes a failure marker.
func (w *Worker) synthesize(ctx context.Context, task global.ResearchTask, contextText string) (string, string) {
	system, err := w.prompts.Render(prompts.WorkerSystem, nil)
	if err != nil {
		return err.Error(), global.SummaryFailureMarker
	}
	user, err := w.prompts.Render(prompts.WorkerUser, prompts.WorkerData{
		Title:           task.Title,
		Intent:          task.Intent,
		Context:         contextText,
		SummaryMaxChars: w.summaryMaxChars,
	})
	if err != nil {
		return err.Error(), global.SummaryFailureMarker
	}

	response, err := w.llm.Complete(ctx, []llm.Message{llm.System(system), llm.User(user)})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("task timed out: %w", err)
		}
		w.logger.Warnf("Worker: completion failed for task %d (%s): %v", task.ID, task.Title, err)
		return err.Error(), global.SummaryFailureMarker
	}

	obj, err := templates.ParseObject(response)
	if err != nil {
		w.logger.Warnf("Worker: unparsable output for task %d (%s): %v", task.ID, task.Title, err)
		return err.Error(), global.SummaryFailureMarker
	}

	if result, err := w.validator.ValidateValue(obj, templates.WorkerOutputSchema); err == nil && !result.Valid {
		w.logger.Warnf("Worker: output for task %d is missing fields: %s", task.ID, result.Error())
	}

	return field(obj, "content", global.ContentMissingText), field(obj, "summary", global.SummaryMissingText)
}

// BuildContext renders retrieved items for the prompt and collects the
// distinct sources used. The sentinel item contributes nothing.
func BuildContext(items []global.RetrievedItem) (string, []string) {
	var sb strings.Builder
	references := []string{}
	seen := make(map[string]bool)

	n := 0
	for _, item := range items {
		if strings.TrimSpace(item.Content) == "" || item.IsSentinel() {
			continue
		}
		source := item.Source
		if source == "" {
			source = UnknownSource
		}
		n++
		fmt.Fprintf(&sb, "--- Source %d (%s) ---\n%s\n\n", n, source, item.Content)
		if !seen[source] {
			seen[source] = true
			references = append(references, source)
		}
	}

	if n == 0 {
		return global.NoContextText, references
	}
	return strings.TrimSpace(sb.String()), references
}

// field returns obj[key] as text, or fallback when absent or null
func field(obj map[string]any, key, fallback string) string {
	v, ok := obj[key]
	if !ok || v == nil {
		return fallback
	}
	return templates.AsString(v)
}
