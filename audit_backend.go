// audit_backend.go: Storage backends for the audit trail
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// auditSchemaVersion is stored in PRAGMA user_version.
const auditSchemaVersion = 1

// auditBackend persists batches of audit events.
type auditBackend interface {
	Write(events []AuditEvent) error
	Stats() (*AuditStats, error)
	Close() error
}

// AuditStats summarizes a backend's stored events.
type AuditStats struct {
	TotalEvents   int64
	EventsByName  map[string]int64
	EventsByLevel map[string]int64
	OldestEvent   time.Time
	NewestEvent   time.Time
	StorageSize   int64
}

func newAuditStats() *AuditStats {
	return &AuditStats{
		EventsByName:  make(map[string]int64),
		EventsByLevel: make(map[string]int64),
	}
}

// createAuditBackend picks JSON lines for a .jsonl output file and SQLite
// otherwise, falling back to JSON lines next to the database path when
// SQLite cannot be opened.
func createAuditBackend(config AuditConfig) (auditBackend, error) {
	if filepath.Ext(config.OutputFile) == ".jsonl" {
		return newJSONLBackend(config.OutputFile)
	}

	backend, err := newSQLiteBackend(config.OutputFile)
	if err == nil {
		return backend, nil
	}

	fallback := config.OutputFile[:len(config.OutputFile)-len(filepath.Ext(config.OutputFile))] + ".jsonl"
	jsonl, jsonlErr := newJSONLBackend(fallback)
	if jsonlErr != nil {
		return nil, fmt.Errorf("all audit backends failed - SQLite: %w, JSONL: %v", err, jsonlErr)
	}
	return jsonl, nil
}

// sqliteAuditBackend stores events in one table of a WAL-mode database.
type sqliteAuditBackend struct {
	db         *sql.DB
	path       string
	insertStmt *sql.Stmt
	mu         sync.Mutex
	closed     bool
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp  TEXT    NOT NULL,
	level      TEXT    NOT NULL,
	event      TEXT    NOT NULL,
	component  TEXT    NOT NULL,
	path       TEXT,
	process_id INTEGER NOT NULL,
	context    TEXT,
	checksum   TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_event ON audit_events(event);
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_events_path ON audit_events(path);
`

func newSQLiteBackend(path string) (*sqliteAuditBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	backend := &sqliteAuditBackend{db: db, path: path}
	if err := backend.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	backend.insertStmt, err = db.Prepare(`INSERT INTO audit_events
		(timestamp, level, event, component, path, process_id, context, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	return backend, nil
}

// migrate creates the schema and records its version.
func (s *sqliteAuditBackend) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read audit schema version: %w", err)
	}
	if version > auditSchemaVersion {
		return fmt.Errorf("audit database schema version %d is newer than supported %d", version, auditSchemaVersion)
	}
	if _, err := s.db.Exec(auditSchema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", auditSchemaVersion)); err != nil {
		return fmt.Errorf("failed to record audit schema version: %w", err)
	}
	return nil
}

func (s *sqliteAuditBackend) Write(events []AuditEvent) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("cannot write to closed SQLite audit backend")
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt := tx.Stmt(s.insertStmt)
	defer stmt.Close()

	for _, ev := range events {
		context := ""
		if ev.Context != nil {
			data, merr := json.Marshal(ev.Context)
			if merr != nil {
				return fmt.Errorf("failed to serialize audit context: %w", merr)
			}
			context = string(data)
		}
		if _, err = stmt.Exec(
			ev.Timestamp.Format(time.RFC3339Nano),
			ev.Level.String(),
			ev.Event,
			ev.Component,
			ev.Path,
			ev.ProcessID,
			context,
			ev.Checksum,
		); err != nil {
			return fmt.Errorf("failed to insert audit event: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit transaction: %w", err)
	}
	return nil
}

func (s *sqliteAuditBackend) Stats() (*AuditStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := newAuditStats()
	if err := s.db.QueryRow("SELECT COUNT(*) FROM audit_events").Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to count audit events: %w", err)
	}

	if err := s.groupCount("event", stats.EventsByName); err != nil {
		return nil, err
	}
	if err := s.groupCount("level", stats.EventsByLevel); err != nil {
		return nil, err
	}

	if stats.TotalEvents > 0 {
		var oldest, newest string
		if err := s.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM audit_events").Scan(&oldest, &newest); err != nil {
			return nil, fmt.Errorf("failed to read audit time range: %w", err)
		}
		stats.OldestEvent, _ = time.Parse(time.RFC3339Nano, oldest)
		stats.NewestEvent, _ = time.Parse(time.RFC3339Nano, newest)
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.StorageSize = info.Size()
	}
	return stats, nil
}

// groupCount fills into with COUNT(*) grouped by column (a fixed name).
func (s *sqliteAuditBackend) groupCount(column string, into map[string]int64) error {
	rows, err := s.db.Query("SELECT " + column + ", COUNT(*) FROM audit_events GROUP BY " + column) // #nosec G202 -- column is a constant
	if err != nil {
		return fmt.Errorf("failed to group audit events by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan audit group: %w", err)
		}
		into[key] = count
	}
	return rows.Err()
}

func (s *sqliteAuditBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		errs = append(errs, err)
	}
	if err := s.insertStmt.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing SQLite audit backend: %v", errs)
	}
	return nil
}

// jsonlAuditBackend appends one JSON object per line.
type jsonlAuditBackend struct {
	file   *os.File
	path   string
	mu     sync.Mutex
	closed bool
}

func newJSONLBackend(path string) (*jsonlAuditBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create JSONL audit log directory: %w", err)
	}
	// #nosec G304 -- operator configured audit path
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL audit log file: %w", err)
	}
	return &jsonlAuditBackend{file: file, path: path}, nil
}

func (j *jsonlAuditBackend) Write(events []AuditEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return fmt.Errorf("cannot write to closed JSONL audit backend")
	}

	w := bufio.NewWriter(j.file)
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("failed to write audit event to JSONL: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write audit event to JSONL: %w", err)
	}
	return j.file.Sync()
}

// Stats scans the whole file; JSONL trails are expected to stay small.
func (j *jsonlAuditBackend) Stats() (*AuditStats, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	stats := newAuditStats()
	// #nosec G304 -- operator configured audit path
	f, err := os.Open(j.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL audit log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		stats.TotalEvents++
		stats.EventsByName[ev.Event]++
		stats.EventsByLevel[ev.Level.String()]++
		if stats.OldestEvent.IsZero() || ev.Timestamp.Before(stats.OldestEvent) {
			stats.OldestEvent = ev.Timestamp
		}
		if ev.Timestamp.After(stats.NewestEvent) {
			stats.NewestEvent = ev.Timestamp
		}
	}
	if info, err := f.Stat(); err == nil {
		stats.StorageSize = info.Size()
	}
	return stats, scanner.Err()
}

func (j *jsonlAuditBackend) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}
