/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PivotLLM/DeepResearch/events"
	"github.com/PivotLLM/DeepResearch/global"
	"github.com/PivotLLM/DeepResearch/llm/llmtest"
)

func existingPlan() []global.ResearchTask {
	return []global.ResearchTask{
		{ID: 1, Title: "Market size", Intent: "size", Query: "solar market size"},
		{ID: 2, Title: "Costs", Intent: "cost trend", Query: "solar panel prices"},
		{ID: 3, Title: "Policy", Intent: "incentives", Query: "solar subsidies"},
	}
}

func logMessages(rec *events.Recorder) []string {
	var out []string
	for _, ev := range rec.OfType(events.TypeLog) {
		out = append(out, ev.Payload.(events.Log).Message)
	}
	return out
}

func run(t *testing.T, completer *llmtest.Scripted, state global.RunState) ([]global.ResearchTask, *events.Recorder) {
	t.Helper()
	rec := events.NewRecorder()
	p := New(completer, nil)
	plan, err := p.Plan(context.Background(), state, events.Emitter{RunID: "run-1", Sink: rec})
	require.NoError(t, err)
	return plan, rec
}

func assertContiguous(t *testing.T, plan []global.ResearchTask) {
	t.Helper()
	for i, task := range plan {
		assert.Equal(t, i+1, task.ID, "task %q has id %d", task.Title, task.ID)
	}
}

func TestMode(t *testing.T) {
	fb := global.StringPtr("x")
	assert.Equal(t, global.PlanModeInitial, Mode(global.RunState{}))
	assert.Equal(t, global.PlanModeRewrite, Mode(global.RunState{UserFeedback: fb}))
	assert.Equal(t, global.PlanModeIncremental, Mode(global.RunState{ReflectionFeedback: fb}))
	assert.Equal(t, global.PlanModeRewrite, Mode(global.RunState{UserFeedback: fb, ReflectionFeedback: fb}))
}

func TestInitialPlan(t *testing.T) {
	completer := llmtest.New("```json\n[" +
		`{"title": "A", "intent": "ia", "query": "qa"},` +
		`{"title": "B", "intent": "ib", "query": "qb"},` +
		`{"title": "C", "intent": "ic", "query": "qc"}` +
		"]\n```")

	plan, rec := run(t, completer, global.NewRunState("Solar adoption", global.RunSettings{}))

	require.Len(t, plan, 3)
	assertContiguous(t, plan)
	assert.Equal(t, global.ResearchTask{ID: 2, Title: "B", Intent: "ib", Query: "qb"}, plan[1])

	msgs := logMessages(rec)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "Planning initial research tasks...", msgs[0])
	assert.Equal(t, "Plan ready: 1. A; 2. B; 3. C", msgs[len(msgs)-1])

	prompt := llmtest.Prompt(completer.Calls()[0])
	assert.Contains(t, prompt, "Research goal: Solar adoption")
	assert.Contains(t, prompt, "3 to 5")
}

func TestIncrementalPlanAppends(t *testing.T) {
	completer := llmtest.New(`{"tasks": [{"title": "Grid", "query": "grid capacity"}, {"title": "Storage", "query": "battery storage"}]}`)

	state := global.NewRunState("Solar adoption", global.RunSettings{})
	state.Plan = existingPlan()
	state.ReflectionFeedback = global.StringPtr("missing grid data")

	plan, rec := run(t, completer, state)

	require.Len(t, plan, 5)
	assertContiguous(t, plan)
	assert.Equal(t, existingPlan(), plan[:3])
	assert.Equal(t, "Grid", plan[3].Title)
	assert.Equal(t, "Storage", plan[4].Title)

	assert.Contains(t, logMessages(rec), "Keeping 3 existing task(s), appending 2 new task(s)")
	assert.Contains(t, llmtest.Prompt(completer.Calls()[0]), "missing grid data")
}

func TestIncrementalRenumbersStaleIDs(t *testing.T) {
	completer := llmtest.New(`[{"title": "New", "query": "q"}]`)

	state := global.NewRunState("g", global.RunSettings{})
	state.Plan = []global.ResearchTask{{ID: 4, Title: "Old4", Query: "a"}, {ID: 9, Title: "Old9", Query: "b"}}
	state.ReflectionFeedback = global.StringPtr("gap")

	plan, _ := run(t, completer, state)
	require.Len(t, plan, 3)
	assertContiguous(t, plan)
	assert.Equal(t, "Old4", plan[0].Title)
	assert.Equal(t, "New", plan[2].Title)
}

func TestRewritePlanReplaces(t *testing.T) {
	completer := llmtest.New(`[{"title": "Y first", "query": "y"}, {"title": "Y second", "query": "y2"}]`)

	state := global.NewRunState("Solar adoption", global.RunSettings{})
	state.Plan = existingPlan()
	state.UserFeedback = global.StringPtr("focus more on Y")

	plan, rec := run(t, completer, state)

	require.Len(t, plan, 2)
	assertContiguous(t, plan)
	assert.Equal(t, "Y first", plan[0].Title)
	assert.Equal(t, "User feedback received, rewriting the plan...", logMessages(rec)[0])

	prompt := llmtest.Prompt(completer.Calls()[0])
	assert.Contains(t, prompt, "focus more on Y")
	assert.Contains(t, prompt, "Market size")
}

func TestMalformedItemsDropped(t *testing.T) {
	completer := llmtest.New(`[
		{"title": "Good", "intent": "i", "query": "q"},
		"junk",
		{"intent": "no title or query"},
		{"query": "only a query"},
		{"title": 42, "intent": "numeric"}
	]`)

	plan, rec := run(t, completer, global.NewRunState("g", global.RunSettings{}))

	require.Len(t, plan, 3)
	assertContiguous(t, plan)
	assert.Equal(t, "Good", plan[0].Title)
	assert.Equal(t, global.UntitledTask, plan[1].Title)
	assert.Equal(t, "only a query", plan[1].Query)
	assert.Equal(t, "42", plan[2].Title)
	assert.Equal(t, "42", plan[2].Query, "query falls back to the title")

	assert.Contains(t, logMessages(rec), "Dropped 2 malformed task(s) from the generated plan")
}

func TestFailureKeepsPreviousPlan(t *testing.T) {
	tests := []struct {
		name  string
		reply llmtest.Reply
		mode  string
	}{
		{"completion error", llmtest.Reply{Err: errors.New("upstream 503")}, global.PlanModeRewrite},
		{"no JSON", llmtest.Reply{Text: "Sorry, I cannot help with that."}, global.PlanModeRewrite},
		{"object without list", llmtest.Reply{Text: `{"note": "nothing"}`}, global.PlanModeRewrite},
		{"only malformed items", llmtest.Reply{Text: `[{"intent": "x"}]`}, global.PlanModeRewrite},
		{"incremental completion error", llmtest.Reply{Err: errors.New("boom")}, global.PlanModeIncremental},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := (&llmtest.Scripted{}).Push(tt.reply)
			state := global.NewRunState("g", global.RunSettings{})
			state.Plan = existingPlan()
			if tt.mode == global.PlanModeRewrite {
				state.UserFeedback = global.StringPtr("change it")
			} else {
				state.ReflectionFeedback = global.StringPtr("gap")
			}

			plan, rec := run(t, completer, state)
			assert.Equal(t, existingPlan(), plan)

			var failed bool
			for _, m := range logMessages(rec) {
				if strings.HasPrefix(m, "Planning failed:") {
					failed = true
				}
			}
			assert.True(t, failed, "expected a failure log event")
		})
	}
}

func TestIncrementalWithNoNewTasks(t *testing.T) {
	completer := llmtest.New(`[]`)
	state := global.NewRunState("g", global.RunSettings{})
	state.Plan = existingPlan()
	state.ReflectionFeedback = global.StringPtr("gap")

	plan, _ := run(t, completer, state)
	assert.Equal(t, existingPlan(), plan)
}

func TestPlanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(llmtest.New(`[{"title": "A", "query": "a"}]`), nil)
	_, err := p.Plan(ctx, global.NewRunState("g", global.RunSettings{}), events.Emitter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIDContiguityAcrossPasses(t *testing.T) {
	replies := []string{
		`[{"title": "a", "query": "a"}, {"title": "b", "query": "b"}, {"title": "c", "query": "c"}]`,
		`[{"title": "d", "query": "d"}]`,
		`{"plan": [{"title": "e", "query": "e"}, {"title": "f", "query": "f"}]}`,
		`not json at all`,
		`[{"title": "g", "query": "g"}, {"title": "h", "query": "h"}, {"title": "i", "query": "i"}, {"title": "j", "query": "j"}]`,
	}
	completer := llmtest.New(replies...)
	p := New(completer, nil)

	state := global.NewRunState("g", global.RunSettings{})
	for pass := range replies {
		switch pass % 3 {
		case 1:
			state.ReflectionFeedback = global.StringPtr("gap")
		case 2:
			state.UserFeedback = global.StringPtr("redo")
		}
		plan, err := p.Plan(context.Background(), state, events.Emitter{})
		require.NoError(t, err)
		assertContiguous(t, plan)
		state.Plan = plan
		state.UserFeedback, state.ReflectionFeedback = nil, nil
	}
}

func TestFormatPlan(t *testing.T) {
	assert.Equal(t, "(empty)", FormatPlan(nil))
	assert.Equal(t, "1. A; 2. B", FormatPlan([]global.ResearchTask{{ID: 1, Title: "A"}, {ID: 2, Title: "B"}}))
}
