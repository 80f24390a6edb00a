/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package checkpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/PivotLLM/DeepResearch/global"
)

// MemoryStore keeps checkpoints in process memory. Runs do not survive a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Checkpoint
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*Checkpoint)}
}

// Get returns a copy of the stored checkpoint
func (s *MemoryStore) Get(ctx context.Context, runID string) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return cp.Clone(), nil
}

// Put stores a copy of cp
func (s *MemoryStore) Put(ctx context.Context, cp *Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cp == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	if err := ValidateRunID(cp.RunID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp(cp, s.runs[cp.RunID])
	s.runs[cp.RunID] = cp.Clone()
	return nil
}

// List returns summaries of all stored runs
func (s *MemoryStore) List(ctx context.Context) ([]global.RunSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]global.RunSummary, 0, len(s.runs))
	for _, cp := range s.runs {
		list = append(list, cp.Summary())
	}
	sortSummaries(list)
	return list, nil
}

// Delete removes a run
func (s *MemoryStore) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
