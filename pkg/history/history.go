// Package history implements the peer's bounded task-history audit log:
// an in-memory ring for the common case plus optional SQLite-backed
// persistence, modeled directly on the teacher's pkg/database (WAL mode,
// single writer connection, retention cleanup, VACUUM). Each record
// additionally carries the executing peer's address and a LOCAL/EXECUTOR
// role, as the original source's task_history module does but spec.md's
// distillation omits.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Role distinguishes a task executed on behalf of a remote client
// (EXECUTOR) from one run directly at the submitting peer (LOCAL).
type Role string

const (
	RoleLocal    Role = "LOCAL"
	RoleExecutor Role = "EXECUTOR"
)

// Record is one completed task's audit entry.
type Record struct {
	TaskID      string
	Success     bool
	ElapsedMS   int64
	ExecutedBy  string
	Role        Role
	CompletedAt time.Time
}

// Log is a bounded in-memory ring, optionally mirrored to SQLite.
type Log struct {
	mu       sync.Mutex
	capacity int
	entries  []Record
	next     int
	count    int

	db            *sql.DB
	retentionDays int
}

// Config configures optional SQLite persistence.
type Config struct {
	Capacity      int
	Enabled       bool
	Path          string
	RetentionDays int
}

// New constructs a Log. When cfg.Enabled, it opens (and migrates) a
// SQLite database at cfg.Path in WAL mode with a single writer
// connection, matching the teacher's Initialize().
func New(cfg Config) (*Log, error) {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1000
	}
	l := &Log{capacity: capacity, entries: make([]Record, capacity), retentionDays: cfg.RetentionDays}

	if !cfg.Enabled {
		return l, nil
	}

	path := cfg.Path
	if path == "" {
		return nil, fmt.Errorf("history: sqlite path required when enabled")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("history: create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	l.db = db
	return l, nil
}

func createSchema(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS task_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		success INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		executed_by TEXT NOT NULL,
		role TEXT NOT NULL,
		completed_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_task_history_completed_at
		ON task_history(completed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_task_history_task_id
		ON task_history(task_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Record appends r to the ring, overwriting the oldest entry once full,
// and mirrors it to SQLite if enabled.
func (l *Log) Record(r Record) {
	l.mu.Lock()
	l.entries[l.next] = r
	l.next = (l.next + 1) % l.capacity
	if l.count < l.capacity {
		l.count++
	}
	db := l.db
	l.mu.Unlock()

	if db != nil {
		_, _ = db.Exec(
			`INSERT INTO task_history (task_id, success, elapsed_ms, executed_by, role, completed_at) VALUES (?, ?, ?, ?, ?, ?)`,
			r.TaskID, r.Success, r.ElapsedMS, r.ExecutedBy, string(r.Role), r.CompletedAt,
		)
	}
}

// Recent returns up to limit most-recent records, newest first, from the
// in-memory ring. Records persisted to SQLite are not read here.
func (l *Log) Recent(limit int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit > l.count {
		limit = l.count
	}
	out := make([]Record, 0, limit)
	idx := l.next - 1
	for i := 0; i < limit; i++ {
		if idx < 0 {
			idx = l.capacity - 1
		}
		out = append(out, l.entries[idx])
		idx--
	}
	return out
}

// Cleanup removes SQLite rows older than retentionDays and reclaims
// space with VACUUM; a no-op when persistence is disabled.
func (l *Log) Cleanup() error {
	if l.db == nil {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -l.retentionDays)
	if _, err := l.db.Exec(`DELETE FROM task_history WHERE completed_at < ?`, cutoff); err != nil {
		return fmt.Errorf("history: cleanup: %w", err)
	}
	if _, err := l.db.Exec(`VACUUM`); err != nil {
		return fmt.Errorf("history: vacuum: %w", err)
	}
	return nil
}

// Close releases the SQLite connection, if any.
func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}
