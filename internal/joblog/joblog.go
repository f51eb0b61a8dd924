// Package joblog records terminal job outcomes so the control side (and the
// inspection API) can audit what a worker executed.
package joblog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// maxExcerptBytes caps the output/error text persisted per job.
const maxExcerptBytes = 64 * 1024

// Status is the terminal state recorded for a job.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCached    Status = "cached"
)

func (s Status) valid() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCached
}

// Entry is one recorded job outcome.
type Entry struct {
	JobID       string
	Component   string
	Action      string
	Status      Status
	Command     string
	Output      string
	Error       string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Log persists job outcomes to SQLite.
type Log struct {
	db *sql.DB
}

// New returns a Log writing to db. The job_log table is created by
// storage.BootstrapSQLite.
func New(db *sql.DB) *Log {
	return &Log{db: db}
}

// Record inserts one terminal entry. Re-recording a job id is an error; a
// job reaches a terminal state once.
func (l *Log) Record(ctx context.Context, e Entry) error {
	if e.JobID == "" {
		return fmt.Errorf("job id is empty")
	}
	if e.Component == "" {
		return fmt.Errorf("component is empty")
	}
	if !e.Status.valid() {
		return fmt.Errorf("invalid terminal status: %q", e.Status)
	}

	if e.CompletedAt.IsZero() {
		e.CompletedAt = time.Now().UTC()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = e.CompletedAt
	}

	_, err := l.db.ExecContext(ctx, `
INSERT INTO job_log(id, component, action, status, command, output, error, created_at, completed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		e.JobID, e.Component, e.Action, string(e.Status), e.Command,
		excerpt(e.Output), excerpt(e.Error),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
		e.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert job_log: %w", err)
	}
	return nil
}

// List returns the most recently completed entries, newest first.
func (l *Log) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
SELECT id, component, action, status, command, output, error, created_at, completed_at
FROM job_log
ORDER BY completed_at DESC, id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query job_log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                      Entry
			status                 string
			createdAt, completedAt string
		)
		if err := rows.Scan(&e.JobID, &e.Component, &e.Action, &status, &e.Command,
			&e.Output, &e.Error, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan job_log row: %w", err)
		}
		e.Status = Status(status)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, completedAt); err == nil {
			e.CompletedAt = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job_log rows: %w", err)
	}
	return entries, nil
}

func excerpt(s string) string {
	if len(s) > maxExcerptBytes {
		return s[:maxExcerptBytes]
	}
	return s
}
