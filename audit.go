// audit.go: Audit trail of host configuration changes
//
// Every write, update, discarded working copy and change-notification fault
// is recorded with the acting process, a cached timestamp and a checksum
// for tamper detection.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// AuditLevel represents the severity of audit events
type AuditLevel int

const (
	AuditInfo AuditLevel = iota
	AuditWarn
	AuditCritical
)

func (al AuditLevel) String() string {
	switch al {
	case AuditInfo:
		return "INFO"
	case AuditWarn:
		return "WARN"
	case AuditCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseAuditLevel accepts info, warn or critical in any case.
func ParseAuditLevel(s string) (AuditLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return AuditInfo, nil
	case "warn", "warning":
		return AuditWarn, nil
	case "critical":
		return AuditCritical, nil
	}
	return AuditInfo, errors.New(ErrCodeInvalidAuditConfig, "unknown audit level").
		WithContext("level", s)
}

// AuditEvent is one recorded event.
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     AuditLevel             `json:"level"`
	Event     string                 `json:"event"`
	Component string                 `json:"component"`
	Path      string                 `json:"path,omitempty"`
	ProcessID int                    `json:"process_id"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Checksum  string                 `json:"checksum"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled bool

	// OutputFile selects the backend: a .jsonl file gets JSON lines,
	// anything else a SQLite database. Empty uses DefaultAuditPath().
	OutputFile string

	MinLevel      AuditLevel
	BufferSize    int
	FlushInterval time.Duration
}

// DefaultAuditPath is the SQLite database used when no OutputFile is set.
func DefaultAuditPath() string {
	return filepath.Join(os.TempDir(), "hestia", "audit.db")
}

func (ac AuditConfig) withDefaults() AuditConfig {
	if ac.OutputFile == "" {
		ac.OutputFile = DefaultAuditPath()
	}
	if ac.BufferSize <= 0 {
		ac.BufferSize = 256
	}
	if ac.FlushInterval <= 0 {
		ac.FlushInterval = 5 * time.Second
	}
	return ac
}

// AuditLogger buffers events and hands them to a storage backend.
// A nil or disabled logger accepts and drops every event.
type AuditLogger struct {
	config      AuditConfig
	backend     auditBackend
	buffer      []AuditEvent
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
	processID   int
}

// NewAuditLogger creates an audit logger. A disabled configuration yields
// a logger without backend.
func NewAuditLogger(config AuditConfig) (*AuditLogger, error) {
	logger := &AuditLogger{
		stopCh:    make(chan struct{}),
		processID: os.Getpid(),
	}
	if !config.Enabled {
		logger.config = config
		return logger, nil
	}

	config = config.withDefaults()
	backend, err := createAuditBackend(config)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidAuditConfig, "failed to initialize audit backend").
			WithContext("output_file", config.OutputFile)
	}

	logger.config = config
	logger.backend = backend
	logger.buffer = make([]AuditEvent, 0, config.BufferSize)
	logger.flushTicker = time.NewTicker(config.FlushInterval)
	go logger.flushLoop()

	return logger, nil
}

// Enabled reports whether events are persisted.
func (al *AuditLogger) Enabled() bool {
	return al != nil && al.backend != nil && al.config.Enabled
}

// Log records an event.
func (al *AuditLogger) Log(level AuditLevel, event, component, path string, context map[string]interface{}) {
	if !al.Enabled() || level < al.config.MinLevel {
		return
	}

	ev := AuditEvent{
		Timestamp: timecache.CachedTime(),
		Level:     level,
		Event:     event,
		Component: component,
		Path:      path,
		ProcessID: al.processID,
		Context:   context,
	}
	ev.Checksum = checksumEvent(ev)

	al.bufferMu.Lock()
	al.buffer = append(al.buffer, ev)
	if len(al.buffer) >= al.config.BufferSize {
		_ = al.flushBufferUnsafe()
	}
	al.bufferMu.Unlock()
}

// LogFileEvent records an event of the cache engine.
func (al *AuditLogger) LogFileEvent(level AuditLevel, event, path string, context map[string]interface{}) {
	al.Log(level, event, "hestia", path, context)
}

// Flush immediately writes all buffered events
func (al *AuditLogger) Flush() error {
	if !al.Enabled() {
		return nil
	}
	al.bufferMu.Lock()
	defer al.bufferMu.Unlock()
	return al.flushBufferUnsafe()
}

// Stats summarizes the stored events.
func (al *AuditLogger) Stats() (*AuditStats, error) {
	if !al.Enabled() {
		return &AuditStats{}, nil
	}
	if err := al.Flush(); err != nil {
		return nil, err
	}
	return al.backend.Stats()
}

// Close flushes pending events and releases the backend.
func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}
	var err error
	al.closeOnce.Do(func() {
		close(al.stopCh)
		if al.flushTicker != nil {
			al.flushTicker.Stop()
		}
		if !al.Enabled() {
			return
		}
		if ferr := al.Flush(); ferr != nil {
			err = fmt.Errorf("failed to flush audit logger during close: %w", ferr)
		}
		if cerr := al.backend.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close audit backend: %w", cerr)
		}
	})
	return err
}

func (al *AuditLogger) flushLoop() {
	for {
		select {
		case <-al.flushTicker.C:
			_ = al.Flush()
		case <-al.stopCh:
			return
		}
	}
}

// flushBufferUnsafe writes the buffer to the backend (caller holds bufferMu).
func (al *AuditLogger) flushBufferUnsafe() error {
	if len(al.buffer) == 0 {
		return nil
	}
	if err := al.backend.Write(al.buffer); err != nil {
		return fmt.Errorf("failed to write audit events to backend: %w", err)
	}
	al.buffer = al.buffer[:0]
	return nil
}

// checksumEvent creates a tamper-detection checksum using SHA-256
func checksumEvent(ev AuditEvent) string {
	data := fmt.Sprintf("%s:%d:%s:%s:%s:%d:%v",
		ev.Timestamp.Format(time.RFC3339Nano), ev.Level,
		ev.Event, ev.Component, ev.Path, ev.ProcessID, ev.Context)
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum)
}
