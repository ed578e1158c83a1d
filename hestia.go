// hestia: cached, change-aware, atomically persisted host configuration files
//
// Philosophy:
// - One long-lived Cache object owns every registration and the single
//   change-notification session of the process
// - Parsed values are served from cache while the file version is unchanged
// - Writes never leave a half-written file behind (temp file + rename)
// - Codecs are small parse/write/update capability sets plugged in at boot
//
// Example Usage:
//
//	cache := hestia.New(hestia.Config{LockTimeout: 5 * time.Second})
//	_ = cache.Register("hostname", "/etc/hostname", hestia.Codec{Parse: parseHostname, Write: writeHostname})
//	if err := cache.StartWatching(); err != nil {
//	    log.Printf("running without change notification: %v", err)
//	}
//	defer cache.Close()
//
//	name, err := cache.Read("hostname")
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// Error codes for hestia operations
const (
	ErrCodeInvalidConfig        = "HESTIA_INVALID_CONFIG"
	ErrCodeRegistryClosed       = "HESTIA_REGISTRY_CLOSED"
	ErrCodeDuplicateID          = "HESTIA_DUPLICATE_ID"
	ErrCodeDuplicatePath        = "HESTIA_DUPLICATE_PATH"
	ErrCodeInvalidPattern       = "HESTIA_INVALID_PATTERN"
	ErrCodeNotRegistered        = "HESTIA_NOT_REGISTERED"
	ErrCodeCodecNotImplemented  = "HESTIA_CODEC_NOT_IMPLEMENTED"
	ErrCodeIOError              = "HESTIA_IO_ERROR"
	ErrCodeParseError           = "HESTIA_PARSE_ERROR"
	ErrCodeWriteError           = "HESTIA_WRITE_ERROR"
	ErrCodeLockTimeout          = "HESTIA_LOCK_TIMEOUT"
	ErrCodeWatchActive          = "HESTIA_WATCH_ACTIVE"
	ErrCodeWatchUnsupported     = "HESTIA_WATCH_UNSUPPORTED"
	ErrCodeWatchError           = "HESTIA_WATCH_ERROR"
	ErrCodeInvalidAuditConfig   = "HESTIA_INVALID_AUDIT_CONFIG"
	ErrCodeUnsupportedOperation = "HESTIA_UNSUPPORTED_OPERATION"
)

// ErrorHandler receives faults that are reported but never returned to a
// caller, such as a change-notification session being disabled.
type ErrorHandler func(err error, path string)

// Result is the full outcome of a read, write or discard.
type Result struct {
	// Data is the parsed value (read) or the writer's return value (write).
	Data any

	// Changes is the unified diff between the canonical file and its working
	// copy. Empty when there is no working copy or no difference.
	Changes string

	// Exists is false when the file could not be opened and the codec was not
	// registered with AlwaysCallParser.
	Exists bool

	// Digest is the xxhash64 of the bytes persisted by a write.
	Digest uint64
}

// CacheStats reports cache effectiveness counters.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Writes    uint64
	Updates   uint64
	Flushes   uint64
	LastFlush time.Time
}

// Cache is the registration, caching and change-notification engine.
// All methods are safe for concurrent use; operations are serialized.
type Cache struct {
	config Config
	logger *slog.Logger

	mu sync.Mutex

	// registry
	byPath       map[string]*descriptor
	byID         map[string]string
	patterns     []*descriptor
	patternKeys  map[string]*descriptor
	materialized map[string]*descriptor
	shadows      map[string]string
	closed       bool

	// version table and the one notification session
	versions    map[string]uint64
	session     *watchSession
	newNotifier func() (notifier, error)

	stats       CacheStats
	auditLogger *AuditLogger
}

// New creates a Cache. Registration must happen before StartWatching.
func New(config Config) *Cache {
	cfg := config.WithDefaults()

	auditLogger, err := NewAuditLogger(cfg.Audit)
	if err != nil {
		cfg.ErrorHandler(err, cfg.Audit.OutputFile)
		auditLogger, _ = NewAuditLogger(AuditConfig{Enabled: false})
	}

	return &Cache{
		config:       *cfg,
		logger:       cfg.Logger,
		byPath:       make(map[string]*descriptor),
		byID:         make(map[string]string),
		patternKeys:  make(map[string]*descriptor),
		materialized: make(map[string]*descriptor),
		shadows:      make(map[string]string),
		versions:     make(map[string]uint64),
		newNotifier:  newPlatformNotifier,
		auditLogger:  auditLogger,
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Flush drops every cached value, version and diff.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *Cache) flushLocked() {
	for _, d := range c.byPath {
		d.reset()
	}
	for _, d := range c.materialized {
		d.reset()
	}
	c.stats.Flushes++
	c.stats.LastFlush = timecache.CachedTime()
}

// Close stops watching and releases the audit trail.
func (c *Cache) Close() error {
	c.mu.Lock()
	c.stopWatchingLocked("close")
	c.mu.Unlock()
	return c.auditLogger.Close()
}

// AuditLogger exposes the audit trail used by this cache.
func (c *Cache) AuditLogger() *AuditLogger {
	return c.auditLogger
}

// Logger returns the logger of this cache.
func (c *Cache) Logger() *slog.Logger {
	return c.logger
}

// HostPath maps a fixed host path below Config.Root.
func (c *Cache) HostPath(path string) string {
	if c.config.Root == "" {
		return path
	}
	return filepath.Join(c.config.Root, path)
}

// report hands a non-fatal fault to the configured ErrorHandler.
func (c *Cache) report(err error, path string) {
	c.config.ErrorHandler(err, path)
}

var processID = os.Getpid
