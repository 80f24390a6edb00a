/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package reflector judges whether the research gathered so far is enough to
// write the report, and names what is missing when it is not.
package reflector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/PivotLLM/DeepResearch/events"
	"github.com/PivotLLM/DeepResearch/global"
	"github.com/PivotLLM/DeepResearch/llm"
	"github.com/PivotLLM/DeepResearch/logging"
	"github.com/PivotLLM/DeepResearch/prompts"
	"github.com/PivotLLM/DeepResearch/templates"
)

// Judgment is the outcome of one reflection
type Judgment struct {
	IsSufficient bool   `json:"is_sufficient"`
	KnowledgeGap string `json:"knowledge_gap"`
}

// Reflector evaluates research coverage with a language model
type Reflector struct {
	llm       llm.Completer
	prompts   *prompts.Catalog
	validator *templates.Validator
	logger    *logging.Logger
}

// Option configures a Reflector
type Option func(*Reflector)

// WithPrompts sets the prompt catalog
func WithPrompts(c *prompts.Catalog) Option {
	return func(r *Reflector) {
		r.prompts = c
	}
}

// WithValidator sets the output validator
func WithValidator(v *templates.Validator) Option {
	return func(r *Reflector) {
		r.validator = v
	}
}

// New creates a Reflector
func New(completer llm.Completer, logger *logging.Logger, opts ...Option) *Reflector {
	r := &Reflector{llm: completer, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	if r.prompts == nil {
		r.prompts = prompts.Default()
	}
	if r.validator == nil {
		r.validator = templates.New(logger)
	}
	return r
}

// Reflect judges results against goal. Any failure yields an insufficient
// judgment carrying the error as the gap; the only error returned is the
// context's.
func (r *Reflector) Reflect(ctx context.Context, goal string, results []global.TaskResult, emit events.Emitter) (Judgment, error) {
	_ = emit.Log(ctx, "Evaluating research depth and completeness...")

	var j Judgment
	if len(results) == 0 {
		j = Judgment{IsSufficient: false, KnowledgeGap: global.NoResultsGap}
	} else {
		var err error
		j, err = r.evaluate(ctx, goal, results)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Judgment{}, ctxErr
			}
			r.logger.Warnf("Reflector: evaluation failed: %v", err)
			j = Judgment{IsSufficient: false, KnowledgeGap: fmt.Sprintf("evaluation failed: %v", err)}
		}
	}

	if j.IsSufficient {
		r.logger.Infof("Reflector: research judged sufficient (%d results)", len(results))
		_ = emit.Log(ctx, "Evaluation complete: research is sufficient")
	} else {
		r.logger.Infof("Reflector: research judged insufficient: %s", j.KnowledgeGap)
		_ = emit.Log(ctx, "Evaluation complete: research is insufficient: "+j.KnowledgeGap)
	}
	return j, nil
}

func (r *Reflector) evaluate(ctx context.Context, goal string, results []global.TaskResult) (Judgment, error) {
	data := prompts.ReviewData{Goal: goal, Context: BuildContext(results)}

	system, err := r.prompts.Render(prompts.ReflectorSystem, data)
	if err != nil {
		return Judgment{}, err
	}
	user, err := r.prompts.Render(prompts.ReflectorUser, data)
	if err != nil {
		return Judgment{}, err
	}

	response, err := r.llm.Complete(ctx, []llm.Message{llm.System(system), llm.User(user)})
	if err != nil {
		return Judgment{}, err
	}

	obj, err := templates.ParseObject(response)
	if err != nil {
		return Judgment{}, err
	}
	if result, err := r.validator.ValidateValue(obj, templates.ReflectionSchema); err == nil && !result.Valid {
		r.logger.Debugf("Reflector: judgment does not match schema: %s", result.Error())
	}

	j := Judgment{IsSufficient: templates.AsBool(obj["is_sufficient"])}
	if gap, ok := obj["knowledge_gap"]; ok && gap != nil {
		j.KnowledgeGap = strings.TrimSpace(templates.AsString(gap))
	}
	// An insufficient judgment always names a gap for the next planning pass
	if !j.IsSufficient && j.KnowledgeGap == "" {
		j.KnowledgeGap = global.UnparsedReflectionGap
	}
	return j, nil
}

// BuildContext lists each result's title and summary in task id order
func BuildContext(results []global.TaskResult) string {
	sorted := append([]global.TaskResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TaskID < sorted[j].TaskID
	})

	parts := make([]string, len(sorted))
	for i, res := range sorted {
		parts[i] = fmt.Sprintf("[Task %d | %s]\nSummary: %s\n", res.TaskID, res.Title, res.Summary)
	}
	return strings.Join(parts, "\n")
}
