// Package history records project activation and deactivation as a
// durable, queryable audit trail. spec.md's LanguageServerManager (C5)
// makes activation idempotent but says nothing about auditability; this
// package is the supplemented feature that fills that gap, grounded on
// the teacher's framework/ast.SQLiteStore: a hand-rolled schema plus
// database/sql over mattn/go-sqlite3, no ORM.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Event names recorded by Store.Record.
const (
	EventActivated   = "activated"
	EventDeactivated = "deactivated"
	EventFailed      = "failed"
)

// Entry is one row of the audit log.
type Entry struct {
	ID           int64
	Event        string
	ProjectRoot  string
	PreviousRoot string
	Detail       string
	OccurredAt   time.Time
}

// Store persists Entries in a SQLite database at the configured path.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at dbPath and ensures its schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", dbPath, err)
	}
	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS activation_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event TEXT NOT NULL,
		project_root TEXT NOT NULL,
		previous_root TEXT,
		detail TEXT,
		occurred_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_activation_events_root ON activation_events(project_root);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends an entry. OccurredAt is set by the caller so tests and
// replays can control it; Record does not stamp wall-clock time itself.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.Event == "" {
		return errors.New("history: event required")
	}
	if entry.ProjectRoot == "" {
		return errors.New("history: project root required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activation_events (event, project_root, previous_root, detail, occurred_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.Event, entry.ProjectRoot, entry.PreviousRoot, entry.Detail, entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("history: record %s: %w", entry.Event, err)
	}
	return nil
}

// ForProject returns every entry recorded for root, oldest first.
func (s *Store) ForProject(ctx context.Context, root string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event, project_root, previous_root, detail, occurred_at
		 FROM activation_events WHERE project_root = ? ORDER BY id ASC`, root)
	if err != nil {
		return nil, fmt.Errorf("history: query %s: %w", root, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Recent returns the limit most recent entries across all projects,
// newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event, project_root, previous_root, detail, occurred_at
		 FROM activation_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var previousRoot, detail sql.NullString
	results := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Event, &e.ProjectRoot, &previousRoot, &detail, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.PreviousRoot = previousRoot.String
		e.Detail = detail.String
		results = append(results, e)
	}
	return results, rows.Err()
}
