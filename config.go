// config.go: Configuration for the hestia cache engine
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
	"go.yaml.in/yaml/v3"
)

// DefaultLockTimeout bounds how long Update waits for the advisory lock.
const DefaultLockTimeout = 10 * time.Second

// DefaultPerm is the file mode used by writes when a registration sets none.
const DefaultPerm os.FileMode = 0o644

// Config configures a Cache.
type Config struct {
	// LockTimeout bounds the advisory lock wait of Update.
	// Default: 10 seconds
	LockTimeout time.Duration

	// DefaultPerm is the mode of files created by Write and Update when the
	// registration did not ask for one. Default: 0644
	DefaultPerm os.FileMode

	// Root is prepended to the fixed host paths by the codec registration
	// helpers. Empty means the real filesystem root.
	Root string

	// Logger receives informational records (overflow flushes, session
	// lifecycle). Default: slog.Default()
	Logger *slog.Logger

	// ErrorHandler receives faults that are never returned to callers.
	// Default: an error record on Logger
	ErrorHandler ErrorHandler

	// Audit configures the audit trail. The zero value disables it.
	Audit AuditConfig
}

// WithDefaults applies sensible defaults to the configuration
func (c *Config) WithDefaults() *Config {
	config := *c

	if config.LockTimeout <= 0 {
		config.LockTimeout = DefaultLockTimeout
	}

	if config.DefaultPerm == 0 {
		config.DefaultPerm = DefaultPerm
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	if config.ErrorHandler == nil {
		logger := config.Logger
		config.ErrorHandler = func(err error, path string) {
			logger.Error("hestia: fault", "path", path, "error", err)
		}
	}

	if config.Audit.Enabled {
		config.Audit = config.Audit.withDefaults()
	}

	return &config
}

// fileConfig is the YAML form of Config.
type fileConfig struct {
	LockTimeout string `yaml:"lock_timeout"`
	DefaultPerm string `yaml:"default_perm"`
	Root        string `yaml:"root"`
	Audit       struct {
		Enabled    *bool  `yaml:"enabled"`
		OutputFile string `yaml:"output_file"`
		MinLevel   string `yaml:"min_level"`
		BufferSize int    `yaml:"buffer_size"`
	} `yaml:"audit"`
}

// LoadConfigFile reads a YAML configuration file.
//
// Example:
//
//	lock_timeout: 15s
//	default_perm: "0640"
//	root: /srv/sandbox
//	audit:
//	  enabled: true
//	  output_file: /var/log/hestia/audit.db
//	  min_level: warn
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied configuration path
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to read configuration file").
			WithContext("path", path)
	}
	return ParseConfig(data)
}

// ParseConfig decodes the YAML configuration form.
func ParseConfig(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "malformed configuration")
	}

	config := &Config{Root: fc.Root}

	if fc.LockTimeout != "" {
		d, err := time.ParseDuration(fc.LockTimeout)
		if err != nil || d <= 0 {
			return nil, errors.New(ErrCodeInvalidConfig, "lock_timeout must be a positive duration").
				WithContext("lock_timeout", fc.LockTimeout)
		}
		config.LockTimeout = d
	}

	if fc.DefaultPerm != "" {
		mode, err := parsePerm(fc.DefaultPerm)
		if err != nil {
			return nil, err
		}
		config.DefaultPerm = mode
	}

	if fc.Audit.Enabled != nil {
		config.Audit.Enabled = *fc.Audit.Enabled
	}
	config.Audit.OutputFile = fc.Audit.OutputFile
	config.Audit.BufferSize = fc.Audit.BufferSize
	if fc.Audit.MinLevel != "" {
		level, err := ParseAuditLevel(fc.Audit.MinLevel)
		if err != nil {
			return nil, err
		}
		config.Audit.MinLevel = level
	}

	return config, nil
}

// parsePerm accepts octal modes with or without the 0 / 0o prefix.
func parsePerm(s string) (os.FileMode, error) {
	v := strings.TrimPrefix(strings.TrimPrefix(s, "0o"), "0O")
	mode, err := strconv.ParseUint(v, 8, 32)
	if err != nil || mode > 0o7777 {
		return 0, errors.New(ErrCodeInvalidConfig, "invalid file mode").
			WithContext("default_perm", s)
	}
	return os.FileMode(mode), nil
}
