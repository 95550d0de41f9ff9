// Package runlog keeps an append-only SQLite log of fetch attempts: one row
// per source per sweep, whatever the outcome.
package runlog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/breakingchange/dbopen"
)

// Schema creates the fetch_log table.
const Schema = `
CREATE TABLE IF NOT EXISTS fetch_log (
    id              TEXT PRIMARY KEY,
    run_id          TEXT NOT NULL,
    slug            TEXT NOT NULL,
    type            TEXT NOT NULL,
    url             TEXT NOT NULL,
    status          TEXT NOT NULL,
    status_code     INTEGER NOT NULL DEFAULT 0,
    magnitude       INTEGER NOT NULL DEFAULT 0,
    event_id        TEXT NOT NULL DEFAULT '',
    error_message   TEXT NOT NULL DEFAULT '',
    duration_ms     INTEGER NOT NULL DEFAULT 0,
    fetched_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_log_source ON fetch_log(slug, type, fetched_at DESC);
CREATE INDEX IF NOT EXISTS idx_fetch_log_run ON fetch_log(run_id);
`

// Fetch attempt statuses.
const (
	StatusUnchanged    = "unchanged"
	StatusChanged      = "changed"
	StatusBaseline     = "baseline"
	StatusFetchError   = "fetch_error"
	StatusPersistError = "persist_error"
)

// Entry is one fetch attempt.
type Entry struct {
	ID           string `json:"id"`
	RunID        string `json:"run_id"`
	Slug         string `json:"slug"`
	Type         string `json:"type"`
	URL          string `json:"url"`
	Status       string `json:"status"`
	StatusCode   int    `json:"status_code"`
	Magnitude    int    `json:"magnitude"`
	EventID      string `json:"event_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	FetchedAt    int64  `json:"fetched_at"` // unix milliseconds
}

// Log writes and reads fetch_log.
type Log struct {
	db *sql.DB
}

// New wraps db, which must already carry Schema.
func New(db *sql.DB) *Log { return &Log{db: db} }

// Open opens (or creates) the run log database at path.
func Open(path string) (*Log, *sql.DB, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, nil, fmt.Errorf("runlog: %w", err)
	}
	return New(db), db, nil
}

// Insert appends one entry.
func (l *Log) Insert(ctx context.Context, e *Entry) error {
	_, err := dbopen.Exec(ctx, l.db,
		`INSERT INTO fetch_log (id, run_id, slug, type, url, status, status_code,
		magnitude, event_id, error_message, duration_ms, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Slug, e.Type, e.URL, e.Status, e.StatusCode,
		e.Magnitude, e.EventID, e.ErrorMessage, e.DurationMs, e.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("runlog: insert: %w", err)
	}
	return nil
}

// History returns entries for one source, newest first.
func (l *Log) History(ctx context.Context, slug, docType string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.query(ctx,
		`SELECT id, run_id, slug, type, url, status, status_code, magnitude,
		event_id, error_message, duration_ms, fetched_at
		FROM fetch_log WHERE slug = ? AND type = ?
		ORDER BY fetched_at DESC, rowid DESC LIMIT ?`, slug, docType, limit)
}

// Run returns the entries of one sweep in insertion order.
func (l *Log) Run(ctx context.Context, runID string) ([]*Entry, error) {
	return l.query(ctx,
		`SELECT id, run_id, slug, type, url, status, status_code, magnitude,
		event_id, error_message, duration_ms, fetched_at
		FROM fetch_log WHERE run_id = ? ORDER BY rowid`, runID)
}

// LastFetchedAt returns the newest fetched_at, or 0 for an empty log.
// Pollers compare it between ticks to notice new sweeps.
func (l *Log) LastFetchedAt(ctx context.Context) (int64, error) {
	var v sql.NullInt64
	if err := l.db.QueryRowContext(ctx, `SELECT MAX(fetched_at) FROM fetch_log`).Scan(&v); err != nil {
		return 0, fmt.Errorf("runlog: max fetched_at: %w", err)
	}
	return v.Int64, nil
}

func (l *Log) query(ctx context.Context, q string, args ...any) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("runlog: query: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Slug, &e.Type, &e.URL, &e.Status,
			&e.StatusCode, &e.Magnitude, &e.EventID, &e.ErrorMessage,
			&e.DurationMs, &e.FetchedAt); err != nil {
			return nil, fmt.Errorf("runlog: scan: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
