// Package journal keeps a structured log of every execution dispatch in
// sqlite. It backs the interactive shell's history command; the semantic
// memory in internal/memory is what the reasoning pipeline reads.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// Entry is one recorded dispatch.
type Entry struct {
	ID         int
	Task       string
	Approach   string
	Success    bool
	ReturnCode int
	Duration   time.Duration
	CreatedAt  time.Time
}

type Journal struct {
	DB *sql.DB
}

func New(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	query := `CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task TEXT,
		approach TEXT,
		success INTEGER,
		returncode INTEGER,
		duration_ms INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(query); err != nil {
		return nil, err
	}

	return &Journal{DB: db}, nil
}

func (j *Journal) Close() error {
	return j.DB.Close()
}

// Add records one dispatch.
func (j *Journal) Add(task, approach string, success bool, returnCode int, duration time.Duration) error {
	query := `INSERT INTO executions (task, approach, success, returncode, duration_ms) VALUES (?, ?, ?, ?, ?)`
	_, err := j.DB.Exec(query, task, approach, success, returnCode, duration.Milliseconds())
	return err
}

// Recent returns the newest entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	query := `SELECT id, task, approach, success, returncode, duration_ms, created_at
		FROM executions ORDER BY id DESC LIMIT ?`
	rows, err := j.DB.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var success int
		var durationMS int64
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Task, &e.Approach, &success, &e.ReturnCode, &durationMS, &createdAt); err != nil {
			return nil, err
		}
		e.Success = success != 0
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.CreatedAt = parseSQLiteTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Stats returns total and successful dispatch counts.
func (j *Journal) Stats() (total, succeeded int, err error) {
	row := j.DB.QueryRow(`SELECT COUNT(*), COALESCE(SUM(success), 0) FROM executions`)
	if err := row.Scan(&total, &succeeded); err != nil {
		return 0, 0, fmt.Errorf("reading journal stats: %w", err)
	}
	return total, succeeded, nil
}
