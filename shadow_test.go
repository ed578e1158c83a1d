// shadow_test.go: Working copies
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newShadowed(t *testing.T) (*Cache, *textCodec, string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "interfaces")
	shadow := filepath.Join(dir, "interfaces.new")

	c, _ := newTestCache(t)
	tc := &textCodec{}
	if err := c.Register("interfaces", path, tc.codec(), Shadow(shadow)); err != nil {
		t.Fatal(err)
	}
	return c, tc, path, shadow
}

func TestComputeDiff(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	writeFile(t, a, "one\ntwo\nthree\n")
	writeFile(t, b, "one\nTWO\nthree\n")

	diff, err := computeDiff(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := "@@ -1,3 +1,3 @@\n one\n-two\n+TWO\n three\n"
	if diff != want {
		t.Errorf("Unexpected diff:\n%s\nwant:\n%s", diff, want)
	}

	same, err := computeDiff(a, a)
	if err != nil || same != "" {
		t.Errorf("Identical files must have no diff, got %q, %v", same, err)
	}

	created, err := computeDiff(filepath.Join(dir, "missing"), b)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(created, "+one\n+TWO\n+three\n") {
		t.Errorf("A missing canonical file diffs as empty, got:\n%s", created)
	}
}

func TestShadowWriteReadAndDiff(t *testing.T) {
	c, _, path, shadow := newShadowed(t)
	writeFile(t, path, "auto lo\n")

	res, err := c.WriteFull("interfaces", "auto lo\nauto eth0\n")
	if err != nil {
		t.Fatalf("WriteFull failed: %v", err)
	}
	if got := readFile(t, path); got != "auto lo\n" {
		t.Errorf("Writes must go to the working copy, canonical is %q", got)
	}
	if got := readFile(t, shadow); got != "auto lo\nauto eth0\n" {
		t.Errorf("Unexpected working copy %q", got)
	}
	if !strings.Contains(res.Changes, "+auto eth0\n") {
		t.Errorf("Expected the diff in the write result, got %q", res.Changes)
	}

	read, err := c.ReadFull("interfaces")
	if err != nil {
		t.Fatal(err)
	}
	if read.Data != "auto lo\nauto eth0\n" {
		t.Errorf("Reads must prefer the working copy, got %q", read.Data)
	}
	if read.Changes != res.Changes {
		t.Errorf("Read and write diffs differ:\n%s\n%s", read.Changes, res.Changes)
	}

	diff, err := c.Diff("interfaces")
	if err != nil || diff != res.Changes {
		t.Errorf("Diff = %q, %v", diff, err)
	}
}

func TestDiscardChanges(t *testing.T) {
	c, _, path, shadow := newShadowed(t)
	writeFile(t, path, "auto lo\n")
	writeFile(t, shadow, "auto eth0\n")

	res, err := c.DiscardChangesFull("interfaces")
	if err != nil {
		t.Fatalf("DiscardChanges failed: %v", err)
	}
	if _, err := os.Stat(shadow); !os.IsNotExist(err) {
		t.Errorf("Expected the working copy to be removed")
	}
	if res.Data != "auto lo\n" || res.Changes != "" {
		t.Errorf("Expected the canonical content without diff, got %+v", res)
	}

	if _, err := c.DiscardChanges("interfaces"); err != nil {
		t.Errorf("Discarding twice must be harmless: %v", err)
	}
}

func TestShadowFallsBackToCanonical(t *testing.T) {
	c, _, path, _ := newShadowed(t)
	writeFile(t, path, "auto lo\n")

	res, err := c.ReadFull("interfaces")
	if err != nil {
		t.Fatal(err)
	}
	if res.Data != "auto lo\n" || res.Changes != "" || !res.Exists {
		t.Errorf("Expected the canonical file without diff, got %+v", res)
	}
}

func TestDiffWithoutWorkingCopy(t *testing.T) {
	dir := t.TempDir()
	c, _ := newTestCache(t)
	if err := c.Register("plain", filepath.Join(dir, "plain"), (&textCodec{}).codec()); err != nil {
		t.Fatal(err)
	}
	diff, err := c.Diff("plain")
	if err != nil || diff != "" {
		t.Errorf("Expected no diff for plain registrations, got %q, %v", diff, err)
	}
	_, err = c.Diff("unknown")
	assertErrorCode(t, err, ErrCodeNotRegistered)
}
