/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package checkpoint persists research run state between engine steps so a
// run can be suspended, resumed or recovered after a restart.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/PivotLLM/DeepResearch/global"
)

// ErrNotFound is returned when no checkpoint exists for a run id
var ErrNotFound = errors.New("checkpoint not found")

// runIDRegex restricts run ids to values that are safe as file names and keys
var runIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Checkpoint is the persisted snapshot of a run: its state plus the cursor
// naming the next node to execute
type Checkpoint struct {
	RunID     string          `json:"run_id"`
	Node      string          `json:"node"`
	Status    string          `json:"status"`
	State     global.RunState `json:"state"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Summary returns a lightweight view of the checkpoint
func (c *Checkpoint) Summary() global.RunSummary {
	return global.RunSummary{
		RunID:     c.RunID,
		Goal:      c.State.Goal,
		Node:      c.Node,
		Status:    c.Status,
		LoopCount: c.State.LoopCount,
		Tasks:     len(c.State.Plan),
		Results:   len(c.State.Results),
		HasReport: c.State.FinalReport != nil,
		UpdatedAt: c.UpdatedAt,
	}
}

// Clone returns a deep copy of the checkpoint
func (c *Checkpoint) Clone() *Checkpoint {
	cp := *c
	cp.State = c.State.Clone()
	return &cp
}

// Store persists checkpoints keyed by run id
type Store interface {
	// Get returns the latest checkpoint for runID or ErrNotFound
	Get(ctx context.Context, runID string) (*Checkpoint, error)
	// Put replaces the checkpoint for cp.RunID
	Put(ctx context.Context, cp *Checkpoint) error
	// List returns summaries of all runs, most recently updated first
	List(ctx context.Context) ([]global.RunSummary, error)
	// Delete removes a run's checkpoint; deleting a missing run is not an error
	Delete(ctx context.Context, runID string) error
	// Close releases resources held by the store
	Close() error
}

// Locker is implemented by stores that can serialize access to a run across processes
type Locker interface {
	Lock(ctx context.Context, runID string) (unlock func(), err error)
}

// ValidateRunID checks that a run id is usable as a storage key
func ValidateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id cannot be empty")
	}
	if !runIDRegex.MatchString(runID) {
		return fmt.Errorf("invalid run id %q: use letters, digits, '.', '_' or '-' (max 128 characters)", runID)
	}
	return nil
}

// Open creates a store for the given backend rooted at dir
func Open(backend, dir string) (Store, error) {
	switch backend {
	case global.CheckpointMemory:
		return NewMemoryStore(), nil
	case "", global.CheckpointFile:
		return NewFileStore(dir)
	case global.CheckpointSQLite:
		return NewSQLiteStore(dir)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend: %s", backend)
	}
}

// stamp sets the timestamps on a checkpoint about to be written
func stamp(cp *Checkpoint, existing *Checkpoint) {
	now := time.Now().UTC()
	cp.UpdatedAt = now
	switch {
	case existing != nil && !existing.CreatedAt.IsZero():
		cp.CreatedAt = existing.CreatedAt
	case cp.CreatedAt.IsZero():
		cp.CreatedAt = now
	}
}

// sortSummaries orders summaries by most recent update first
func sortSummaries(list []global.RunSummary) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].RunID < list[j].RunID
		}
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
}
