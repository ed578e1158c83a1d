// Utility functions for the hestia CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/orpheus/pkg/orpheus"
	"go.yaml.in/yaml/v3"
)

// Error codes of the CLI layer
const (
	ErrCodeUsage    = "HESTIA_CLI_USAGE"
	ErrCodeNotFound = "HESTIA_CLI_NOT_FOUND"
	ErrCodeOutput   = "HESTIA_CLI_OUTPUT"
)

type auditSummary struct {
	Total   int64            `yaml:"total_events"`
	ByEvent map[string]int64 `yaml:"by_event"`
	ByLevel map[string]int64 `yaml:"by_level"`
	Oldest  time.Time        `yaml:"oldest"`
	Newest  time.Time        `yaml:"newest"`
	Bytes   int64            `yaml:"storage_bytes"`
}

type cacheInfo struct {
	Files    int    `yaml:"files"`
	Watching bool   `yaml:"watching"`
	Hits     uint64 `yaml:"hits"`
	Misses   uint64 `yaml:"misses"`
	Writes   uint64 `yaml:"writes"`
	Updates  uint64 `yaml:"updates"`
	Flushes  uint64 `yaml:"flushes"`
}

// requireArg returns positional argument i or a usage error naming it.
func requireArg(ctx *orpheus.Context, i int, name string) (string, error) {
	v := ctx.GetArg(i)
	if v == "" {
		return "", errors.New(ErrCodeUsage, "missing argument <"+name+">")
	}
	return v, nil
}

// printYAML writes v as one YAML document.
func (m *Manager) printYAML(v any) error {
	enc := yaml.NewEncoder(m.out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, ErrCodeOutput, "unable to render output")
	}
	return enc.Close()
}

func hasCode(err error, code string) bool {
	coder, ok := err.(errors.ErrorCoder)
	return ok && string(coder.ErrorCode()) == code
}
