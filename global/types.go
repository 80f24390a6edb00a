/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package global

import "time"

// ResearchTask is one planned unit of research
type ResearchTask struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Intent string `json:"intent"`
	Query  string `json:"query"`
}

// TaskResult is the outcome of researching a single task.
// TaskID refers to the ResearchTask.ID that produced it.
type TaskResult struct {
	TaskID     int      `json:"task_id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Summary    string   `json:"summary"`
	References []string `json:"references"`
}

// RunSettings holds the per-run tunables captured when a run starts
type RunSettings struct {
	MaxLoops     int `json:"max_loops"`
	MinPlanTasks int `json:"min_plan_tasks"`
	MaxPlanTasks int `json:"max_plan_tasks"`
}

// WithDefaults returns a copy of RunSettings with defaults applied for zero values
func (s RunSettings) WithDefaults() RunSettings {
	result := s
	if result.MaxLoops <= 0 {
		result.MaxLoops = DefaultMaxLoops
	}
	if result.MinPlanTasks <= 0 {
		result.MinPlanTasks = DefaultMinPlanTasks
	}
	if result.MaxPlanTasks <= 0 {
		result.MaxPlanTasks = DefaultMaxPlanTasks
	}
	if result.MinPlanTasks > result.MaxPlanTasks {
		result.MaxPlanTasks = result.MinPlanTasks
	}
	return result
}

// RunState is the complete, persisted state of one research run.
// Results is append-only within a run. At most one of UserFeedback and
// ReflectionFeedback is set when the planner is entered.
type RunState struct {
	Goal               string         `json:"goal"`
	Plan               []ResearchTask `json:"plan"`
	Results            []TaskResult   `json:"results"`
	UserFeedback       *string        `json:"user_feedback,omitempty"`
	ReflectionFeedback *string        `json:"reflection_feedback,omitempty"`
	LoopCount          int            `json:"loop_count"`
	FinalReport        *string        `json:"final_report,omitempty"`
	Settings           RunSettings    `json:"settings"`
}

// NewRunState creates the initial state for a goal
func NewRunState(goal string, settings RunSettings) RunState {
	return RunState{
		Goal:     goal,
		Plan:     []ResearchTask{},
		Results:  []TaskResult{},
		Settings: settings.WithDefaults(),
	}
}

// CompletedIDs returns the set of task ids that have a result
func CompletedIDs(results []TaskResult) map[int]bool {
	ids := make(map[int]bool, len(results))
	for _, r := range results {
		ids[r.TaskID] = true
	}
	return ids
}

// Clone returns a deep copy so a checkpoint never aliases live engine state
func (s RunState) Clone() RunState {
	c := s
	c.Plan = append([]ResearchTask(nil), s.Plan...)
	c.Results = make([]TaskResult, len(s.Results))
	for i, r := range s.Results {
		r.References = append([]string(nil), r.References...)
		c.Results[i] = r
	}
	c.UserFeedback = cloneString(s.UserFeedback)
	c.ReflectionFeedback = cloneString(s.ReflectionFeedback)
	c.FinalReport = cloneString(s.FinalReport)
	return c
}

// Decision is a human review decision supplied on resume
type Decision struct {
	Action   string `json:"action"`
	Feedback string `json:"feedback,omitempty"`
}

// RetrievedItem is a single piece of context returned by the retrieval capability
type RetrievedItem struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score,omitempty"`
}

// IsSentinel reports whether the item is the placeholder used when nothing was found
func (i RetrievedItem) IsSentinel() bool {
	return i.Content == NoMaterialContent
}

// NoMaterialItem returns the placeholder item substituted for a failed or empty retrieval
func NoMaterialItem() RetrievedItem {
	return RetrievedItem{Content: NoMaterialContent, Source: NoMaterialSource}
}

// RunSummary is a lightweight view of a checkpointed run
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Goal      string    `json:"goal"`
	Node      string    `json:"node"`
	Status    string    `json:"status"`
	LoopCount int       `json:"loop_count"`
	Tasks     int       `json:"tasks"`
	Results   int       `json:"results"`
	HasReport bool      `json:"has_report"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StringPtr returns a pointer to a copy of s
func StringPtr(s string) *string {
	return &s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
