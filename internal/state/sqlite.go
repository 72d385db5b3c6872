// Package state persists run history using SQLite: one row per run plus
// one row per table outcome, so repeated loads of a project leave an
// auditable trail for the CLI and CI tooling.
package state

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/leapstack-labs/kbforge/internal/loader"
)

//go:embed schema.sql
var schemaSQL string

// RunSummary is one run's headline numbers.
type RunSummary struct {
	ID          string
	Project     string
	Outcome     string
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
	Written     int
	Rejected    int
}

// Store is a SQLite-backed run-history store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates an unopened store.
func NewStore() *Store {
	return &Store{}
}

// Open opens the history database. Use ":memory:" for an in-memory
// store.
func (s *Store) Open(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping state database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// InitSchema creates the history tables if they do not exist.
func (s *Store) InitSchema() error {
	if s.db == nil {
		return fmt.Errorf("state database not opened")
	}
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize state schema: %w", err)
	}
	return nil
}

// RecordRun persists a finished run's report.
func (s *Store) RecordRun(rep *loader.Report) error {
	if s.db == nil {
		return fmt.Errorf("state database not opened")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO runs (id, project, outcome, error, started_at, completed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rep.RunID, rep.Project, string(rep.Outcome()), rep.Error, rep.StartedAt, rep.CompletedAt,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record run: %w", err)
	}

	for i := range rep.Tables {
		t := &rep.Tables[i]
		_, err = tx.Exec(
			`INSERT INTO table_runs (run_id, tbl, sources, attempted, written, rejected, skipped) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rep.RunID, t.Table, t.Sources, t.Attempted, t.Written, t.Rejected, boolInt(t.Skipped),
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record table outcome for %q: %w", t.Table, err)
		}
	}

	return tx.Commit()
}

// GetRun returns one run summary by id.
func (s *Store) GetRun(id string) (*RunSummary, error) {
	if s.db == nil {
		return nil, fmt.Errorf("state database not opened")
	}

	sum := &RunSummary{}
	var completed sql.NullTime
	err := s.db.QueryRow(
		`SELECT r.id, r.project, r.outcome, r.error, r.started_at, r.completed_at,
		        COALESCE(SUM(t.written), 0), COALESCE(SUM(t.rejected), 0)
		 FROM runs r LEFT JOIN table_runs t ON t.run_id = r.id
		 WHERE r.id = ? GROUP BY r.id`,
		id,
	).Scan(&sum.ID, &sum.Project, &sum.Outcome, &sum.Error, &sum.StartedAt, &completed, &sum.Written, &sum.Rejected)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %q: %w", id, err)
	}
	if completed.Valid {
		sum.CompletedAt = completed.Time
	}
	return sum, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]RunSummary, error) {
	if s.db == nil {
		return nil, fmt.Errorf("state database not opened")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT r.id, r.project, r.outcome, r.error, r.started_at, r.completed_at,
		        COALESCE(SUM(t.written), 0), COALESCE(SUM(t.rejected), 0)
		 FROM runs r LEFT JOIN table_runs t ON t.run_id = r.id
		 GROUP BY r.id ORDER BY r.started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunSummary
	for rows.Next() {
		var sum RunSummary
		var completed sql.NullTime
		if err := rows.Scan(&sum.ID, &sum.Project, &sum.Outcome, &sum.Error, &sum.StartedAt, &completed, &sum.Written, &sum.Rejected); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if completed.Valid {
			sum.CompletedAt = completed.Time
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close closes the history database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
