/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package runner drives research runs through planning, human review,
// parallel task execution, reflection and report writing, checkpointing the
// run after every step.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/PivotLLM/DeepResearch/checkpoint"
	"github.com/PivotLLM/DeepResearch/events"
	"github.com/PivotLLM/DeepResearch/global"
	"github.com/PivotLLM/DeepResearch/logging"
	"github.com/PivotLLM/DeepResearch/reflector"
)

var (
	ErrRunNotFound       = errors.New("run not found")
	ErrRunExists         = errors.New("run already exists")
	ErrRunBusy           = errors.New("run is already in progress")
	ErrRunFinished       = errors.New("run has already finished")
	ErrNotAwaitingReview = errors.New("run is not awaiting review")
	ErrAwaitingReview    = errors.New("run is awaiting review; approve or revise the plan")
	ErrInvalidDecision   = errors.New("invalid review decision")
)

// Planner produces the plan to adopt for a run
type Planner interface {
	Plan(ctx context.Context, state global.RunState, emit events.Emitter) ([]global.ResearchTask, error)
}

// Worker researches a single task
type Worker interface {
	Execute(ctx context.Context, task global.ResearchTask, emit events.Emitter) (global.TaskResult, error)
}

// Reflector judges whether the accumulated results cover the goal
type Reflector interface {
	Reflect(ctx context.Context, goal string, results []global.TaskResult, emit events.Emitter) (reflector.Judgment, error)
}

// Writer synthesizes the final report, streaming it as it is produced
type Writer interface {
	Write(ctx context.Context, goal string, results []global.TaskResult, emit events.Emitter) (string, error)
}

// Archiver saves a finished run's report
type Archiver interface {
	Archive(runID string, state global.RunState) (string, error)
}

// RunStatus is the detailed view of a checkpointed run
type RunStatus struct {
	global.RunSummary
	Plan    []global.ResearchTask `json:"plan"`
	Pending []int                 `json:"pending"`
	Error   string                `json:"error,omitempty"`
	Report  string                `json:"report,omitempty"`
}

// Engine executes research runs. Each run id is driven by at most one call
// at a time.
type Engine struct {
	store         checkpoint.Store
	planner       Planner
	worker        Worker
	reflector     Reflector
	writer        Writer
	archiver      Archiver
	logger        *logging.Logger
	settings      global.RunSettings
	maxConcurrent int
	runningRuns   sync.Map       // map[string]bool - run ids with a call in progress
	activeRuns    sync.WaitGroup // tracks calls in progress for graceful shutdown
}

// Option configures an Engine
type Option func(*Engine)

// WithSettings sets the settings captured by new runs
func WithSettings(s global.RunSettings) Option {
	return func(e *Engine) {
		e.settings = s.WithDefaults()
	}
}

// WithMaxConcurrent limits how many tasks are researched at once
func WithMaxConcurrent(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

// WithArchiver saves each final report once a run completes
func WithArchiver(a Archiver) Option {
	return func(e *Engine) {
		e.archiver = a
	}
}

// New creates an Engine
func New(store checkpoint.Store, planner Planner, worker Worker, reflector Reflector, writer Writer, logger *logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		planner:       planner,
		worker:        worker,
		reflector:     reflector,
		writer:        writer,
		logger:        logger,
		settings:      global.RunSettings{}.WithDefaults(),
		maxConcurrent: global.DefaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewRunID returns a fresh run id
func NewRunID() string {
	return uuid.New().String()
}

// Start creates a run for goal and drives it until it suspends for review,
// finishes or fails
func (e *Engine) Start(ctx context.Context, runID, goal string, sink events.Sink) error {
	emit := events.Emitter{RunID: runID, Sink: sink}

	goal = strings.TrimSpace(goal)
	if goal == "" {
		return e.reject(ctx, emit, fmt.Errorf("goal cannot be empty"))
	}
	release, err := e.acquire(ctx, runID)
	if err != nil {
		return e.reject(ctx, emit, err)
	}
	defer release()

	_, err = e.store.Get(ctx, runID)
	switch {
	case err == nil:
		return e.reject(ctx, emit, fmt.Errorf("%w: %s", ErrRunExists, runID))
	case !errors.Is(err, checkpoint.ErrNotFound):
		return e.reject(ctx, emit, fmt.Errorf("failed to read checkpoint: %w", err))
	}

	cp := &checkpoint.Checkpoint{
		RunID:  runID,
		Node:   global.NodePlanning,
		Status: global.RunStatusRunning,
		State:  global.NewRunState(goal, e.settings),
	}
	if err := e.save(ctx, cp); err != nil {
		return e.reject(ctx, emit, err)
	}

	e.logger.Infof("Run %s: started (max loops %d)", runID, cp.State.Settings.MaxLoops)
	return e.drive(ctx, cp, emit)
}

// Resume applies a review decision to a run suspended at human review.
// An invalid decision leaves the run suspended.
func (e *Engine) Resume(ctx context.Context, runID string, decision global.Decision, sink events.Sink) error {
	emit := events.Emitter{RunID: runID, Sink: sink}

	release, err := e.acquire(ctx, runID)
	if err != nil {
		return e.reject(ctx, emit, err)
	}
	defer release()

	cp, err := e.load(ctx, runID)
	if err != nil {
		return e.reject(ctx, emit, err)
	}
	if cp.Node != global.NodeHumanReview || cp.Status != global.RunStatusAwaitingReview {
		return e.reject(ctx, emit, fmt.Errorf("%w: %s is at %s (%s)", ErrNotAwaitingReview, runID, cp.Node, cp.Status))
	}

	switch decision.Action {
	case global.ActionApprove:
		e.logger.Infof("Run %s: plan approved", runID)
		_ = emit.Log(ctx, "Plan approved, starting research...")
		cp.Node = global.NodeDispatch
	case global.ActionRevise:
		feedback := strings.TrimSpace(decision.Feedback)
		if feedback == "" {
			return e.reject(ctx, emit, fmt.Errorf("%w: revise requires feedback", ErrInvalidDecision))
		}
		e.logger.Infof("Run %s: plan revision requested", runID)
		cp.State.UserFeedback = global.StringPtr(feedback)
		cp.State.ReflectionFeedback = nil
		cp.Node = global.NodePlanning
	default:
		return e.reject(ctx, emit, fmt.Errorf("%w: unknown action %q (use %s or %s)",
			ErrInvalidDecision, decision.Action, global.ActionApprove, global.ActionRevise))
	}

	cp.Status = global.RunStatusRunning
	if err := e.save(ctx, cp); err != nil {
		return e.reject(ctx, emit, err)
	}
	return e.drive(ctx, cp, emit)
}

// Continue re-enters a run from its last checkpointed node. It is used after
// a crash, a cancelled call or a failed step. Completed tasks are not redone.
func (e *Engine) Continue(ctx context.Context, runID string, sink events.Sink) error {
	emit := events.Emitter{RunID: runID, Sink: sink}

	release, err := e.acquire(ctx, runID)
	if err != nil {
		return e.reject(ctx, emit, err)
	}
	defer release()

	cp, err := e.load(ctx, runID)
	if err != nil {
		return e.reject(ctx, emit, err)
	}
	switch {
	case cp.Node == global.NodeDone || cp.Status == global.RunStatusCompleted:
		return e.reject(ctx, emit, fmt.Errorf("%w: %s", ErrRunFinished, runID))
	case cp.Status == global.RunStatusAwaitingReview:
		return e.reject(ctx, emit, fmt.Errorf("%w: %s", ErrAwaitingReview, runID))
	}

	e.logger.Infof("Run %s: continuing at %s", runID, cp.Node)
	_ = emit.Log(ctx, fmt.Sprintf("Continuing run at %s...", cp.Node))
	cp.Status = global.RunStatusRunning
	cp.Error = ""
	return e.drive(ctx, cp, emit)
}

// Status returns the detailed state of a run
func (e *Engine) Status(ctx context.Context, runID string) (*RunStatus, error) {
	cp, err := e.load(ctx, runID)
	if err != nil {
		return nil, err
	}
	status := &RunStatus{
		RunSummary: cp.Summary(),
		Plan:       cp.State.Plan,
		Pending:    []int{},
		Error:      cp.Error,
	}
	for _, task := range Pending(cp.State.Plan, cp.State.Results) {
		status.Pending = append(status.Pending, task.ID)
	}
	if cp.State.FinalReport != nil {
		status.Report = *cp.State.FinalReport
	}
	return status, nil
}

// List returns summaries of all checkpointed runs
func (e *Engine) List(ctx context.Context) ([]global.RunSummary, error) {
	return e.store.List(ctx)
}

// Wait blocks until all calls in progress complete. Used for graceful shutdown.
func (e *Engine) Wait() {
	e.activeRuns.Wait()
}

// IsRunning returns true if any run is currently being driven
func (e *Engine) IsRunning() bool {
	running := false
	e.runningRuns.Range(func(_, _ interface{}) bool {
		running = true
		return false
	})
	return running
}

// Pending returns the plan tasks that have no result yet, in plan order
func Pending(plan []global.ResearchTask, results []global.TaskResult) []global.ResearchTask {
	done := global.CompletedIDs(results)
	pending := make([]global.ResearchTask, 0, len(plan))
	for _, task := range plan {
		if !done[task.ID] {
			pending = append(pending, task)
		}
	}
	return pending
}

// Merge appends newResults to results without modifying either slice.
// A result for a task that already has one is ignored.
func Merge(results, newResults []global.TaskResult) []global.TaskResult {
	merged := make([]global.TaskResult, 0, len(results)+len(newResults))
	merged = append(merged, results...)
	seen := global.CompletedIDs(results)
	for _, r := range newResults {
		if seen[r.TaskID] {
			continue
		}
		seen[r.TaskID] = true
		merged = append(merged, r)
	}
	return merged
}

// acquire serializes calls for runID within this process and, when the store
// supports it, across processes
func (e *Engine) acquire(ctx context.Context, runID string) (func(), error) {
	if err := checkpoint.ValidateRunID(runID); err != nil {
		return nil, err
	}
	if _, alreadyRunning := e.runningRuns.LoadOrStore(runID, true); alreadyRunning {
		return nil, fmt.Errorf("%w: %s", ErrRunBusy, runID)
	}

	unlock := func() {}
	if locker, ok := e.store.(checkpoint.Locker); ok {
		u, err := locker.Lock(ctx, runID)
		if err != nil {
			e.runningRuns.Delete(runID)
			return nil, fmt.Errorf("%w: %s: %v", ErrRunBusy, runID, err)
		}
		unlock = u
	}

	e.activeRuns.Add(1)
	return func() {
		unlock()
		e.runningRuns.Delete(runID)
		e.activeRuns.Done()
	}, nil
}

func (e *Engine) load(ctx context.Context, runID string) (*checkpoint.Checkpoint, error) {
	cp, err := e.store.Get(ctx, runID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return cp, nil
}

// save writes the checkpoint. It is not interrupted by cancellation of the
// call so work finished before the cancel is kept.
func (e *Engine) save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if err := e.store.Put(context.WithoutCancel(ctx), cp.Clone()); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// reject ends a call that never reached the state machine
func (e *Engine) reject(ctx context.Context, emit events.Emitter, err error) error {
	e.logger.Warnf("Run %s: %v", emit.RunID, err)
	_ = emit.Error(ctx, err)
	return err
}

// fail records a failed step. The cursor stays on the failed node so the run
// can be continued.
func (e *Engine) fail(ctx context.Context, cp *checkpoint.Checkpoint, emit events.Emitter, err error) error {
	if ctx.Err() != nil {
		err = fmt.Errorf("run interrupted at %s: %w", cp.Node, err)
	}
	e.logger.Errorf("Run %s: %v", cp.RunID, err)

	cp.Status = global.RunStatusFailed
	cp.Error = err.Error()
	if saveErr := e.save(ctx, cp); saveErr != nil {
		e.logger.Errorf("Run %s: %v", cp.RunID, saveErr)
	}
	_ = emit.Error(ctx, err)
	return err
}

// drive executes nodes until the run suspends, finishes or fails. Exactly one
// terminal event is published.
func (e *Engine) drive(ctx context.Context, cp *checkpoint.Checkpoint, emit events.Emitter) error {
	for {
		if err := ctx.Err(); err != nil {
			return e.fail(ctx, cp, emit, err)
		}

		var err error
		switch cp.Node {
		case global.NodePlanning:
			err = e.plan(ctx, cp, emit)
		case global.NodeHumanReview:
			return e.suspend(ctx, cp, emit)
		case global.NodeDispatch:
			err = e.dispatch(ctx, cp, emit)
		case global.NodeReflecting:
			err = e.reflect(ctx, cp, emit)
		case global.NodeWriting:
			err = e.write(ctx, cp, emit)
		case global.NodeDone:
			return e.finish(ctx, cp, emit)
		default:
			err = fmt.Errorf("unknown node %q", cp.Node)
		}
		if err != nil {
			return e.fail(ctx, cp, emit, err)
		}

		if err := e.save(ctx, cp); err != nil {
			e.logger.Errorf("Run %s: %v", cp.RunID, err)
			_ = emit.Error(ctx, err)
			return err
		}
	}
}

func (e *Engine) plan(ctx context.Context, cp *checkpoint.Checkpoint, emit events.Emitter) error {
	plan, err := e.planner.Plan(ctx, cp.State.Clone(), emit)
	if err != nil {
		return err
	}

	cp.State.Plan = plan
	cp.State.UserFeedback = nil
	cp.State.ReflectionFeedback = nil
	if cp.State.LoopCount == 0 {
		cp.Node = global.NodeHumanReview
	} else {
		cp.Node = global.NodeDispatch
	}
	return nil
}

func (e *Engine) suspend(ctx context.Context, cp *checkpoint.Checkpoint, emit events.Emitter) error {
	cp.Status = global.RunStatusAwaitingReview
	if err := e.save(ctx, cp); err != nil {
		e.logger.Errorf("Run %s: %v", cp.RunID, err)
		_ = emit.Error(ctx, err)
		return err
	}
	e.logger.Infof("Run %s: awaiting review of %d task(s)", cp.RunID, len(cp.State.Plan))
	_ = emit.Interrupt(ctx, cp.State.Plan, "Please review the research plan: approve it, or revise it with feedback.")
	return nil
}

// dispatch researches every pending task concurrently. Results that finished
// are merged even when the call is cancelled part way.
func (e *Engine) dispatch(ctx context.Context, cp *checkpoint.Checkpoint, emit events.Emitter) error {
	pending := Pending(cp.State.Plan, cp.State.Results)
	if len(pending) == 0 {
		_ = emit.Log(ctx, "No pending tasks to research")
		cp.Node = global.NodeReflecting
		return nil
	}

	e.logger.Infof("Run %s: dispatching %d task(s), max %d concurrent", cp.RunID, len(pending), e.maxConcurrent)
	_ = emit.Log(ctx, fmt.Sprintf("Dispatching %d research task(s)...", len(pending)))

	// Results are appended as workers finish
	var (
		mu        sync.Mutex
		completed = make([]global.TaskResult, 0, len(pending))
		g         errgroup.Group
	)
	g.SetLimit(e.maxConcurrent)
	for _, task := range pending {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := e.worker.Execute(ctx, task, emit)
			if err != nil {
				return err
			}
			result.TaskID = task.ID
			mu.Lock()
			completed = append(completed, result)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	cp.State.Results = Merge(cp.State.Results, completed)
	if err != nil {
		e.logger.Warnf("Run %s: dispatch stopped with %d of %d task(s) finished: %v", cp.RunID, len(completed), len(pending), err)
		return err
	}

	cp.Node = global.NodeReflecting
	return nil
}

func (e *Engine) reflect(ctx context.Context, cp *checkpoint.Checkpoint, emit events.Emitter) error {
	judgment, err := e.reflector.Reflect(ctx, cp.State.Goal, cp.State.Results, emit)
	if err != nil {
		return err
	}

	cp.State.LoopCount++
	maxLoops := cp.State.Settings.WithDefaults().MaxLoops
	switch {
	case judgment.IsSufficient:
		_ = emit.Log(ctx, "Research is sufficient, writing the report")
		cp.Node = global.NodeWriting
	case cp.State.LoopCount >= maxLoops:
		_ = emit.Log(ctx, fmt.Sprintf("Reflection limit reached (%d loops), writing the report", cp.State.LoopCount))
		cp.Node = global.NodeWriting
	default:
		gap := strings.TrimSpace(judgment.KnowledgeGap)
		if gap == "" {
			gap = global.UnparsedReflectionGap
		}
		_ = emit.Log(ctx, "Revising the plan to address: "+gap)
		cp.State.ReflectionFeedback = global.StringPtr(gap)
		cp.Node = global.NodePlanning
	}
	e.logger.Infof("Run %s: reflection %d/%d sufficient=%t, next %s", cp.RunID, cp.State.LoopCount, maxLoops, judgment.IsSufficient, cp.Node)
	return nil
}

func (e *Engine) write(ctx context.Context, cp *checkpoint.Checkpoint, emit events.Emitter) error {
	report, err := e.writer.Write(ctx, cp.State.Goal, cp.State.Results, emit)
	if err != nil {
		return err
	}
	cp.State.FinalReport = global.StringPtr(report)
	cp.Node = global.NodeDone
	cp.Status = global.RunStatusCompleted
	return nil
}

func (e *Engine) finish(ctx context.Context, cp *checkpoint.Checkpoint, emit events.Emitter) error {
	report := ""
	if cp.State.FinalReport != nil {
		report = *cp.State.FinalReport
	}
	if e.archiver != nil {
		if path, err := e.archiver.Archive(cp.RunID, cp.State); err != nil {
			e.logger.Warnf("Run %s: failed to archive report: %v", cp.RunID, err)
		} else {
			e.logger.Infof("Run %s: report archived to %s", cp.RunID, path)
		}
	}
	e.logger.Infof("Run %s: completed after %d loop(s) with %d result(s)", cp.RunID, cp.State.LoopCount, len(cp.State.Results))
	_ = emit.Done(ctx, report)
	return nil
}
