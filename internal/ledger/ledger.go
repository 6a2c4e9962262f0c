// Package ledger records workflow runs in Postgres.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/wfrunner/internal/domain"
)

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const (
	createRunsTableQuery = `CREATE TABLE IF NOT EXISTS workflow_runs (
		run_id TEXT PRIMARY KEY,
		participant_id TEXT NOT NULL,
		uri TEXT NOT NULL,
		revision TEXT NOT NULL,
		tainted BOOLEAN NOT NULL,
		engine_version TEXT NOT NULL,
		image TEXT NOT NULL,
		replayed BOOLEAN NOT NULL,
		success BOOLEAN NOT NULL,
		exit_code INTEGER NOT NULL,
		attempts INTEGER NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	)`

	insertRunQuery = `INSERT INTO workflow_runs (
		run_id,
		participant_id,
		uri,
		revision,
		tainted,
		engine_version,
		image,
		replayed,
		success,
		exit_code,
		attempts,
		started_at,
		finished_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	ON CONFLICT (run_id) DO NOTHING`
)

type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// EnsureSchema creates the runs table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run ledger not initialized")
	}
	if _, err := s.db.ExecContext(ctx, createRunsTableQuery); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return nil
}

// Record inserts rec. Recording the same run id twice is a no-op.
func (s *Store) Record(ctx context.Context, rec domain.RunRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run ledger not initialized")
	}
	runID := strings.TrimSpace(rec.RunID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(rec.RemoteURI) == "" {
		return fmt.Errorf("uri is required")
	}

	_, err := s.db.ExecContext(ctx, insertRunQuery,
		runID,
		rec.Participant,
		rec.RemoteURI,
		rec.Revision,
		rec.Tainted,
		rec.EngineVersion,
		rec.Image,
		rec.Replayed,
		rec.Outcome.Success,
		rec.Outcome.ExitCode,
		rec.Outcome.AttemptsUsed,
		normalizeTime(rec.StartedAt),
		normalizeTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}
	return nil
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
