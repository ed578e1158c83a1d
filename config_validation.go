// config_validation.go: Configuration validation for hestia
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agilira/go-errors"
)

// Validation errors
var (
	ErrInvalidLockTimeout   = errors.New(ErrCodeInvalidConfig, "lock timeout cannot be negative")
	ErrInvalidPerm          = errors.New(ErrCodeInvalidConfig, "default perm has bits outside 07777")
	ErrInvalidBufferSize    = errors.New(ErrCodeInvalidAuditConfig, "audit buffer size cannot be negative")
	ErrInvalidFlushInterval = errors.New(ErrCodeInvalidAuditConfig, "audit flush interval cannot be negative")
)

// maxLockTimeout is the lock wait past which a warning is raised.
const maxLockTimeout = 5 * time.Minute

// ValidationResult lists the problems found in a configuration. Errors
// make it invalid; warnings do not.
type ValidationResult struct {
	Valid    bool     `yaml:"valid"`
	Errors   []string `yaml:"errors,omitempty"`
	Warnings []string `yaml:"warnings,omitempty"`

	first error
}

// String returns a human-readable representation of validation results
func (vr ValidationResult) String() string {
	if vr.Valid {
		if len(vr.Warnings) == 0 {
			return "Configuration is valid"
		}
		return fmt.Sprintf("Configuration is valid with %d warning(s)", len(vr.Warnings))
	}
	return fmt.Sprintf("Configuration is invalid: %d error(s), %d warning(s)",
		len(vr.Errors), len(vr.Warnings))
}

func (vr *ValidationResult) fail(err error) {
	if vr.first == nil {
		vr.first = err
	}
	vr.Errors = append(vr.Errors, err.Error())
}

func (vr *ValidationResult) warn(format string, args ...any) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// Validate returns the first error of ValidateDetailed, if any.
func (c *Config) Validate() error {
	return c.ValidateDetailed().first
}

// ValidateDetailed checks every setting and collects errors and warnings.
func (c *Config) ValidateDetailed() ValidationResult {
	var result ValidationResult

	c.validateCore(&result)
	c.validateRoot(&result)
	c.validateAudit(&result)

	result.Valid = len(result.Errors) == 0
	return result
}

func (c *Config) validateCore(result *ValidationResult) {
	if c.LockTimeout < 0 {
		result.fail(ErrInvalidLockTimeout)
	} else if c.LockTimeout > maxLockTimeout {
		result.warn("lock timeout %v keeps updates waiting for a long time", c.LockTimeout)
	}

	if c.DefaultPerm&^os.FileMode(0o7777) != 0 {
		result.fail(ErrInvalidPerm)
	} else if c.DefaultPerm&0o002 != 0 {
		result.warn("default perm %04o makes written files world writable", c.DefaultPerm)
	}
}

func (c *Config) validateRoot(result *ValidationResult) {
	if c.Root == "" {
		return
	}
	if !filepath.IsAbs(c.Root) {
		result.fail(errors.New(ErrCodeInvalidConfig, "root must be an absolute path").
			WithContext("root", c.Root))
		return
	}
	info, err := os.Stat(c.Root)
	if err != nil {
		result.fail(errors.Wrap(err, ErrCodeInvalidConfig, "cannot access root").
			WithContext("root", c.Root))
		return
	}
	if !info.IsDir() {
		result.fail(errors.New(ErrCodeInvalidConfig, "root is not a directory").
			WithContext("root", c.Root))
	}
}

func (c *Config) validateAudit(result *ValidationResult) {
	if !c.Audit.Enabled {
		return
	}
	if c.Audit.BufferSize < 0 {
		result.fail(ErrInvalidBufferSize)
	} else if c.Audit.BufferSize > 10000 {
		result.warn("large audit buffer size %d may consume significant memory", c.Audit.BufferSize)
	}
	if c.Audit.FlushInterval < 0 {
		result.fail(ErrInvalidFlushInterval)
	}
	if c.Audit.OutputFile != "" {
		if clean := filepath.Clean(c.Audit.OutputFile); clean == "." || clean == "/" {
			result.fail(errors.New(ErrCodeInvalidAuditConfig, "audit output file path is invalid").
				WithContext("output_file", c.Audit.OutputFile))
		}
	}
}
