/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package planner turns a research goal into an ordered list of research tasks,
// and revises that list after human or reflection feedback.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PivotLLM/DeepResearch/events"
	"github.com/PivotLLM/DeepResearch/global"
	"github.com/PivotLLM/DeepResearch/llm"
	"github.com/PivotLLM/DeepResearch/logging"
	"github.com/PivotLLM/DeepResearch/prompts"
	"github.com/PivotLLM/DeepResearch/templates"
)

// Planner generates research plans with a language model
type Planner struct {
	llm       llm.Completer
	prompts   *prompts.Catalog
	validator *templates.Validator
	logger    *logging.Logger
}

// Option configures a Planner
type Option func(*Planner)

// WithPrompts sets the prompt catalog
func WithPrompts(c *prompts.Catalog) Option {
	return func(p *Planner) {
		if c != nil {
			p.prompts = c
		}
	}
}

// WithValidator sets the validator used to check generated items
func WithValidator(v *templates.Validator) Option {
	return func(p *Planner) {
		if v != nil {
			p.validator = v
		}
	}
}

// New creates a Planner
func New(completer llm.Completer, logger *logging.Logger, opts ...Option) *Planner {
	p := &Planner{
		llm:    completer,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.prompts == nil {
		p.prompts = prompts.Default()
	}
	if p.validator == nil {
		p.validator = templates.New(logger)
	}
	return p
}

// Mode returns the planning mode implied by the feedback present in state.
// User feedback takes priority over reflection feedback.
func Mode(state global.RunState) string {
	switch {
	case state.UserFeedback != nil:
		return global.PlanModeRewrite
	case state.ReflectionFeedback != nil:
		return global.PlanModeIncremental
	default:
		return global.PlanModeInitial
	}
}

// Plan runs one planning pass and returns the plan to adopt, with ids
// renumbered 1..N. If generation fails the previous plan is returned
// unchanged. The only error returned is the context's.
func (p *Planner) Plan(ctx context.Context, state global.RunState, emit events.Emitter) ([]global.ResearchTask, error) {
	mode := Mode(state)
	settings := state.Settings.WithDefaults()

	_ = emit.Log(ctx, modeMessage(mode))

	generated, dropped, err := p.generate(ctx, state, mode, settings)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		p.logger.Warnf("Planner: %s planning failed, keeping previous plan: %v", mode, err)
		_ = emit.Log(ctx, fmt.Sprintf("Planning failed: %v", err))
		return clonePlan(state.Plan), nil
	}
	if dropped > 0 {
		p.logger.Warnf("Planner: dropped %d malformed task(s)", dropped)
		_ = emit.Log(ctx, fmt.Sprintf("Dropped %d malformed task(s) from the generated plan", dropped))
	}

	var plan []global.ResearchTask
	if mode == global.PlanModeIncremental {
		_ = emit.Log(ctx, fmt.Sprintf("Keeping %d existing task(s), appending %d new task(s)", len(state.Plan), len(generated)))
		plan = append(clonePlan(state.Plan), generated...)
	} else {
		plan = generated
	}
	plan = Renumber(plan)

	p.logger.Infof("Planner: %s pass produced %d task(s)", mode, len(plan))
	_ = emit.Log(ctx, "Plan ready: "+FormatPlan(plan))

	return plan, nil
}

// generate asks the model for tasks and returns the well-formed ones along
// with the number of items dropped
func (p *Planner) generate(ctx context.Context, state global.RunState, mode string, settings global.RunSettings) ([]global.ResearchTask, int, error) {
	messages, err := p.buildMessages(state, mode, settings)
	if err != nil {
		return nil, 0, err
	}

	response, err := p.llm.Complete(ctx, messages)
	if err != nil {
		return nil, 0, fmt.Errorf("completion failed: %w", err)
	}

	items, err := templates.ParseList(response)
	if err != nil {
		return nil, 0, fmt.Errorf("unparsable plan: %w", err)
	}
	if items == nil {
		return nil, 0, fmt.Errorf("unparsable plan: no task list in response")
	}

	var (
		tasks   []global.ResearchTask
		dropped int
	)
	for i, item := range items {
		task, err := p.toTask(item)
		if err != nil {
			p.logger.Debugf("Planner: dropping item %d: %v", i+1, err)
			dropped++
			continue
		}
		tasks = append(tasks, task)
	}

	if len(tasks) > global.MaxPlanTasksLimit {
		p.logger.Warnf("Planner: truncating %d generated tasks to %d", len(tasks), global.MaxPlanTasksLimit)
		tasks = tasks[:global.MaxPlanTasksLimit]
	}

	// A replacement plan must never be empty
	if len(tasks) == 0 && mode != global.PlanModeIncremental {
		return nil, dropped, fmt.Errorf("no usable tasks in response")
	}

	return tasks, dropped, nil
}

func (p *Planner) buildMessages(state global.RunState, mode string, settings global.RunSettings) ([]llm.Message, error) {
	data := prompts.PlanData{
		Goal:     state.Goal,
		PlanJSON: planJSON(state.Plan),
		MinTasks: settings.MinPlanTasks,
		MaxTasks: settings.MaxPlanTasks,
	}
	if state.UserFeedback != nil {
		data.UserFeedback = *state.UserFeedback
	}
	if state.ReflectionFeedback != nil {
		data.ReflectionFeedback = *state.ReflectionFeedback
	}

	instruction, err := p.prompts.Render(instructionPrompt(mode), data)
	if err != nil {
		return nil, err
	}
	data.Instruction = instruction

	system, err := p.prompts.Render(prompts.PlannerSystem, data)
	if err != nil {
		return nil, err
	}
	user, err := p.prompts.Render(prompts.PlannerUser, data)
	if err != nil {
		return nil, err
	}
	return []llm.Message{llm.System(system), llm.User(user)}, nil
}

// toTask validates one generated item and converts it to a task.
// The id is assigned later by Renumber.
func (p *Planner) toTask(item any) (global.ResearchTask, error) {
	result, err := p.validator.ValidateValue(item, templates.PlanItemSchema)
	if err != nil {
		return global.ResearchTask{}, err
	}
	if !result.Valid {
		return global.ResearchTask{}, result
	}

	obj := item.(map[string]any)
	task := global.ResearchTask{
		Title:  strings.TrimSpace(templates.AsString(obj["title"])),
		Intent: strings.TrimSpace(templates.AsString(obj["intent"])),
		Query:  strings.TrimSpace(templates.AsString(obj["query"])),
	}
	if task.Title == "" {
		task.Title = global.UntitledTask
	}
	if task.Query == "" {
		task.Query = task.Title
	}
	return task, nil
}

// Renumber assigns ids 1..N in list order
func Renumber(plan []global.ResearchTask) []global.ResearchTask {
	out := make([]global.ResearchTask, len(plan))
	for i, t := range plan {
		t.ID = i + 1
		out[i] = t
	}
	return out
}

// FormatPlan renders a plan as "1. Title; 2. Title"
func FormatPlan(plan []global.ResearchTask) string {
	if len(plan) == 0 {
		return "(empty)"
	}
	parts := make([]string, len(plan))
	for i, t := range plan {
		parts[i] = fmt.Sprintf("%d. %s", t.ID, t.Title)
	}
	return strings.Join(parts, "; ")
}

func instructionPrompt(mode string) string {
	switch mode {
	case global.PlanModeRewrite:
		return prompts.PlannerRewrite
	case global.PlanModeIncremental:
		return prompts.PlannerIncremental
	default:
		return prompts.PlannerInitial
	}
}

func modeMessage(mode string) string {
	switch mode {
	case global.PlanModeRewrite:
		return "User feedback received, rewriting the plan..."
	case global.PlanModeIncremental:
		return "Reflection found gaps, extending the plan..."
	default:
		return "Planning initial research tasks..."
	}
}

func planJSON(plan []global.ResearchTask) string {
	if len(plan) == 0 {
		return "[]"
	}
	data, err := json.Marshal(plan)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func clonePlan(plan []global.ResearchTask) []global.ResearchTask {
	return append([]global.ResearchTask{}, plan...)
}
