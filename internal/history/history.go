// Package history persists job snapshots to a local SQLite database so a
// restarted tracker resumes polling where it left off.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"eotracker/internal/job"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	state        TEXT NOT NULL,
	submitted_at TEXT NOT NULL,
	record       TEXT NOT NULL
);
`

// Store is a snapshot-oriented job archive. Each save replaces the full
// job set; the database always mirrors the in-memory store's last state.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (and if needed creates) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	// The snapshot writer is the only user; a single connection avoids
	// SQLITE_BUSY between overlapping saves.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure history schema: %w", err)
	}

	return &Store{db: db, logger: slog.With("component", "history")}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces the persisted job set with the given one.
func (s *Store) SaveSnapshot(jobs []*job.Job) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM jobs`); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO jobs (id, state, submitted_at, record) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, j := range jobs {
		record, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("encode job %s: %w", j.ID, err)
		}
		if _, err := stmt.Exec(j.ID, string(j.State), j.SubmittedAt.Format(time.RFC3339Nano), record); err != nil {
			return fmt.Errorf("insert job %s: %w", j.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Load returns all persisted jobs, oldest submission first.
func (s *Store) Load() ([]*job.Job, error) {
	rows, err := s.db.Query(`SELECT record FROM jobs ORDER BY submitted_at, id`)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		var j job.Job
		if err := json.Unmarshal([]byte(record), &j); err != nil {
			// A corrupt row should not sink the whole session.
			s.logger.Warn("Skipping unreadable history record", "error", err)
			continue
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// Listener adapts SaveSnapshot to the store's change callback, logging
// failures instead of surfacing them into the mutation path.
func (s *Store) Listener() func(jobs []*job.Job) {
	return func(jobs []*job.Job) {
		if err := s.SaveSnapshot(jobs); err != nil {
			s.logger.Error("Persisting job snapshot failed", "error", err)
		}
	}
}
