/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/PivotLLM/DeepResearch/global"
)

const (
	sqliteFileName = "checkpoints.db"
	// fixed-width layout so timestamps sort correctly as text
	sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	run_id     TEXT PRIMARY KEY,
	node       TEXT NOT NULL,
	status     TEXT NOT NULL,
	goal       TEXT NOT NULL,
	state      TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_updated ON checkpoints(updated_at);
`

// SQLiteStore keeps checkpoints in a SQLite database, one row per run
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the checkpoint database in dir
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("checkpoint directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}

	dbPath := filepath.Join(dir, sqliteFileName)

	// WAL mode lets status readers proceed while a run is writing
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the checkpoint row for runID
func (s *SQLiteStore) Get(ctx context.Context, runID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, node, status, state, error, created_at, updated_at
		FROM checkpoints WHERE run_id = ?
	`, runID)

	var (
		cp                   Checkpoint
		state                string
		createdAt, updatedAt string
	)
	err := row.Scan(&cp.RunID, &cp.Node, &cp.Status, &state, &cp.Error, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying checkpoint: %w", err)
	}

	if err := json.Unmarshal([]byte(state), &cp.State); err != nil {
		return nil, fmt.Errorf("unmarshaling state for run %s: %w", runID, err)
	}
	cp.CreatedAt = parseTime(createdAt)
	cp.UpdatedAt = parseTime(updatedAt)
	return &cp, nil
}

// Put inserts or replaces the checkpoint row for cp.RunID
func (s *SQLiteStore) Put(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	if err := ValidateRunID(cp.RunID); err != nil {
		return err
	}

	state, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	stamp(cp, nil)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, node, status, goal, state, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			node = excluded.node,
			status = excluded.status,
			goal = excluded.goal,
			state = excluded.state,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, cp.RunID, cp.Node, cp.Status, cp.State.Goal, string(state), cp.Error,
		formatTime(cp.CreatedAt), formatTime(cp.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// List returns summaries of all runs, most recently updated first
func (s *SQLiteStore) List(ctx context.Context) ([]global.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, node, status, state, error, created_at, updated_at
		FROM checkpoints ORDER BY updated_at DESC, run_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer rows.Close()

	var list []global.RunSummary //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			cp                   Checkpoint
			state                string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&cp.RunID, &cp.Node, &cp.Status, &state, &cp.Error, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}
		if err := json.Unmarshal([]byte(state), &cp.State); err != nil {
			continue
		}
		cp.UpdatedAt = parseTime(updatedAt)
		list = append(list, cp.Summary())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating checkpoints: %w", err)
	}
	return list, nil
}

// Delete removes a run's row
func (s *SQLiteStore) Delete(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("deleting checkpoint: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
