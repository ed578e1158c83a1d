// env_config.go: Environment variable overrides for hestia
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// Environment variables read by ApplyEnv.
const (
	EnvRoot               = "HESTIA_ROOT"
	EnvLockTimeout        = "HESTIA_LOCK_TIMEOUT"
	EnvDefaultPerm        = "HESTIA_DEFAULT_PERM"
	EnvAuditEnabled       = "HESTIA_AUDIT_ENABLED"
	EnvAuditOutputFile    = "HESTIA_AUDIT_OUTPUT_FILE"
	EnvAuditMinLevel      = "HESTIA_AUDIT_MIN_LEVEL"
	EnvAuditBufferSize    = "HESTIA_AUDIT_BUFFER_SIZE"
	EnvAuditFlushInterval = "HESTIA_AUDIT_FLUSH_INTERVAL"
)

// ApplyEnv overrides config with the HESTIA_* variables that are set.
// Unset or empty variables leave the corresponding field alone.
func (c *Config) ApplyEnv() error {
	if err := c.applyCoreEnv(); err != nil {
		return err
	}
	return c.applyAuditEnv()
}

func (c *Config) applyCoreEnv() error {
	if root := os.Getenv(EnvRoot); root != "" {
		c.Root = root
	}

	if lockStr := os.Getenv(EnvLockTimeout); lockStr != "" {
		d, err := time.ParseDuration(lockStr)
		if err != nil || d <= 0 {
			return errors.New(ErrCodeInvalidConfig, "invalid "+EnvLockTimeout+" value").
				WithContext("value", lockStr)
		}
		c.LockTimeout = d
	}

	if permStr := os.Getenv(EnvDefaultPerm); permStr != "" {
		mode, err := parsePerm(permStr)
		if err != nil {
			return err
		}
		c.DefaultPerm = mode
	}
	return nil
}

func (c *Config) applyAuditEnv() error {
	if enabled := os.Getenv(EnvAuditEnabled); enabled != "" {
		c.Audit.Enabled = parseBool(enabled)
	}

	if output := os.Getenv(EnvAuditOutputFile); output != "" {
		c.Audit.OutputFile = output
	}

	if levelStr := os.Getenv(EnvAuditMinLevel); levelStr != "" {
		level, err := ParseAuditLevel(levelStr)
		if err != nil {
			return err
		}
		c.Audit.MinLevel = level
	}

	if bufferStr := os.Getenv(EnvAuditBufferSize); bufferStr != "" {
		buffer, err := strconv.Atoi(bufferStr)
		if err != nil || buffer <= 0 {
			return errors.New(ErrCodeInvalidAuditConfig, "invalid "+EnvAuditBufferSize+" value").
				WithContext("value", bufferStr)
		}
		c.Audit.BufferSize = buffer
	}

	if flushStr := os.Getenv(EnvAuditFlushInterval); flushStr != "" {
		d, err := time.ParseDuration(flushStr)
		if err != nil || d <= 0 {
			return errors.New(ErrCodeInvalidAuditConfig, "invalid "+EnvAuditFlushInterval+" value").
				WithContext("value", flushStr)
		}
		c.Audit.FlushInterval = d
	}
	return nil
}

// parseBool accepts true/false, 1/0, yes/no, on/off and enabled/disabled.
// Anything else is false.
func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on", "enabled":
		return true
	default:
		return false
	}
}
