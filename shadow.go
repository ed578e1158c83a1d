// shadow.go: Working-copy diffs
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	goerrors "errors"
	"io/fs"
	"os"
	"strings"

	"github.com/agilira/go-errors"
	"github.com/pmezard/go-difflib/difflib"
)

// diffContext is the number of unchanged lines around each hunk.
const diffContext = 3

// readOrEmpty returns the file content, treating a missing file as empty.
func readOrEmpty(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- registered path
	if err != nil {
		if goerrors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", errors.Wrap(err, ErrCodeIOError, "unable to read file for diff").
			WithContext("path", path)
	}
	return string(data), nil
}

// computeDiff renders the unified diff from canonical to working copy
// without the file header lines. No difference yields "".
func computeDiff(canonical, working string) (string, error) {
	a, err := readOrEmpty(canonical)
	if err != nil {
		return "", err
	}
	b, err := readOrEmpty(working)
	if err != nil {
		return "", err
	}
	if a == b {
		return "", nil
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:       splitLines(a),
		B:       splitLines(b),
		Context: diffContext,
	})
	if err != nil {
		return "", errors.Wrap(err, ErrCodeIOError, "unable to compute diff").
			WithContext("path", canonical)
	}
	return text, nil
}

// splitLines keeps line terminators and terminates a trailing partial line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if last := len(lines) - 1; lines[last] == "" {
		lines = lines[:last]
	} else {
		lines[last] += "\n"
	}
	return lines
}

// Diff returns the current canonical-vs-working-copy diff of a shadowed
// registration without touching the cache.
func (c *Cache) Diff(key string) (string, error) {
	c.mu.Lock()
	_, path, err := c.lookup(key)
	shadow, ok := c.shadows[path]
	c.mu.Unlock()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return computeDiff(path, shadow)
}
