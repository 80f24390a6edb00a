/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package checkpoint

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PivotLLM/DeepResearch/global"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	sqliteStore, err := NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
}

func sampleCheckpoint(runID string) *Checkpoint {
	state := global.NewRunState("impact of tariffs", global.RunSettings{})
	state.Plan = []global.ResearchTask{
		{ID: 1, Title: "History", Intent: "background", Query: "tariff history"},
		{ID: 2, Title: "Prices", Intent: "effects", Query: "tariff prices"},
	}
	state.Results = []global.TaskResult{
		{TaskID: 1, Title: "History", Content: "c", Summary: "s", References: []string{"a.md"}},
	}
	state.ReflectionFeedback = global.StringPtr("need price data")
	state.LoopCount = 1
	return &Checkpoint{
		RunID:  runID,
		Node:   global.NodeDispatch,
		Status: global.RunStatusRunning,
		State:  state,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)

			cp := sampleCheckpoint("run-1")
			require.NoError(t, store.Put(ctx, cp))

			got, err := store.Get(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, global.NodeDispatch, got.Node)
			assert.Equal(t, global.RunStatusRunning, got.Status)
			assert.Equal(t, cp.State.Plan, got.State.Plan)
			assert.Equal(t, cp.State.Results, got.State.Results)
			require.NotNil(t, got.State.ReflectionFeedback)
			assert.Equal(t, "need price data", *got.State.ReflectionFeedback)
			assert.Nil(t, got.State.UserFeedback)
			assert.Equal(t, 1, got.State.LoopCount)
			assert.False(t, got.CreatedAt.IsZero())
			created := got.CreatedAt

			// Overwrite keeps the creation time and replaces the cursor
			time.Sleep(2 * time.Millisecond)
			cp.Node = global.NodeReflecting
			require.NoError(t, store.Put(ctx, cp))
			got, err = store.Get(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, global.NodeReflecting, got.Node)
			assert.True(t, got.CreatedAt.Equal(created), "created_at changed: %v != %v", got.CreatedAt, created)
			assert.True(t, got.UpdatedAt.After(created))

			require.NoError(t, store.Delete(ctx, "run-1"))
			_, err = store.Get(ctx, "run-1")
			require.ErrorIs(t, err, ErrNotFound)
			require.NoError(t, store.Delete(ctx, "run-1"))
		})
	}
}

func TestStoreList(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, sampleCheckpoint("older")))
			time.Sleep(2 * time.Millisecond)
			newer := sampleCheckpoint("newer")
			report := "final"
			newer.State.FinalReport = &report
			newer.Node = global.NodeDone
			newer.Status = global.RunStatusCompleted
			require.NoError(t, store.Put(ctx, newer))

			list, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "newer", list[0].RunID)
			assert.True(t, list[0].HasReport)
			assert.Equal(t, 2, list[0].Tasks)
			assert.Equal(t, 1, list[0].Results)
			assert.Equal(t, "older", list[1].RunID)
			assert.False(t, list[1].HasReport)
		})
	}
}

func TestStoreRejectsBadRunID(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Put(context.Background(), sampleCheckpoint("../escape"))
			assert.Error(t, err)
		})
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	cp := sampleCheckpoint("iso")
	require.NoError(t, store.Put(ctx, cp))

	cp.State.Plan[0].Title = "mutated"
	got, err := store.Get(ctx, "iso")
	require.NoError(t, err)
	assert.Equal(t, "History", got.State.Plan[0].Title)
}

func TestFileStoreLock(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	unlock, err := store.Lock(context.Background(), "locked-run")
	require.NoError(t, err)

	// A second locker in the same process blocks until the first releases
	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		unlock2, err := store.Lock(context.Background(), "locked-run")
		if err == nil {
			close(acquired)
			unlock2()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(150 * time.Millisecond):
	}

	unlock()
	wg.Wait()
	select {
	case <-acquired:
	default:
		t.Fatal("second lock was never acquired")
	}
}

func TestFileStoreLockContextCancelled(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	unlock, err := store.Lock(context.Background(), "busy")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = store.Lock(ctx, "busy")
	assert.Error(t, err)
}

func TestValidateRunID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"abc", false},
		{"2b6f0c1e-8f1a-4c55-9d6b-1d8d2f1f4a10", false},
		{"thread_1.v2", false},
		{"", true},
		{"../x", true},
		{"a/b", true},
		{".hidden", true},
	}
	for _, tt := range tests {
		err := ValidateRunID(tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateRunID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
		}
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{global.CheckpointMemory, global.CheckpointFile, global.CheckpointSQLite} {
		store, err := Open(backend, dir)
		require.NoError(t, err, backend)
		require.NoError(t, store.Close())
	}
	_, err := Open("postgres", dir)
	assert.Error(t, err)
}
