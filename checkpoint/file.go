/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/PivotLLM/DeepResearch/global"
)

const (
	checkpointSuffix = ".json"
	lockSuffix       = ".lock"
	lockRetryDelay   = 50 * time.Millisecond
)

// FileStore keeps one JSON file per run in a directory.
// Writes are atomic; a sidecar lock file serializes access to a run across processes.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("checkpoint directory cannot be empty")
	}
	if err := global.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("checkpoint store: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// path resolves the checkpoint file for a run, rejecting ids that escape the directory
func (s *FileStore) path(runID, suffix string) (string, error) {
	if err := ValidateRunID(runID); err != nil {
		return "", err
	}
	return global.ValidatePathWithinDir(s.dir, runID+suffix)
}

// Lock acquires the cross-process lock for a run, waiting until ctx is done
func (s *FileStore) Lock(ctx context.Context, runID string) (func(), error) {
	lockPath, err := s.path(runID, lockSuffix)
	if err != nil {
		return nil, err
	}

	lock := flock.New(lockPath)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock for run %s: %w", runID, err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to acquire lock for run %s", runID)
	}

	return func() { _ = lock.Unlock() }, nil
}

// Get loads a run's checkpoint from disk
func (s *FileStore) Get(ctx context.Context, runID string) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filePath, err := s.path(runID, checkpointSuffix)
	if err != nil {
		return nil, err
	}
	return loadFile(filePath)
}

// Put writes a run's checkpoint atomically
func (s *FileStore) Put(ctx context.Context, cp *Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cp == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	filePath, err := s.path(cp.RunID, checkpointSuffix)
	if err != nil {
		return err
	}

	existing, err := loadFile(filePath)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	stamp(cp, existing)

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := global.AtomicWrite(filePath, data); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// List reads every checkpoint in the directory
func (s *FileStore) List(ctx context.Context) ([]global.RunSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	list := make([]global.RunSummary, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, checkpointSuffix) {
			continue
		}
		cp, err := loadFile(filepath.Join(s.dir, name))
		if err != nil {
			// Skip unreadable files rather than failing the listing
			continue
		}
		list = append(list, cp.Summary())
	}
	sortSummaries(list)
	return list, nil
}

// Delete removes a run's checkpoint and lock files
func (s *FileStore) Delete(_ context.Context, runID string) error {
	for _, suffix := range []string{checkpointSuffix, lockSuffix} {
		filePath, err := s.path(runID, suffix)
		if err != nil {
			return err
		}
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", filePath, err)
		}
	}
	return nil
}

// Close is a no-op
func (s *FileStore) Close() error {
	return nil
}

// loadFile reads and decodes a checkpoint file
func loadFile(filePath string) (*Checkpoint, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %w", filepath.Base(filePath), err)
	}
	return &cp, nil
}
