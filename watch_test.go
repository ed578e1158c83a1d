// watch_test.go: Change-notification dispatcher tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

// fakeNotifier is an in-memory notifier; tests queue events with emit.
type fakeNotifier struct {
	mu       sync.Mutex
	nextWD   int
	wds      map[string]int
	queue    []notifyEvent
	closed   bool
	failDirs map[string]bool
	drainErr error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{wds: make(map[string]int), failDirs: make(map[string]bool)}
}

func (f *fakeNotifier) addWatch(dir string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDirs[dir] {
		return -1, fmt.Errorf("no such directory")
	}
	f.nextWD++
	f.wds[dir] = f.nextWD
	return f.nextWD, nil
}

func (f *fakeNotifier) drain(fn func(notifyEvent) bool) error {
	f.mu.Lock()
	if f.drainErr != nil {
		err := f.drainErr
		f.mu.Unlock()
		return err
	}
	pending := f.queue
	f.queue = nil
	f.mu.Unlock()

	for _, ev := range pending {
		if !fn(ev) {
			return nil
		}
	}
	return nil
}

func (f *fakeNotifier) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeNotifier) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// emit queues an event for a watched directory.
func (f *fakeNotifier) emit(dir string, mask eventMask, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, notifyEvent{wd: f.wds[dir], mask: mask, name: name})
}

func (f *fakeNotifier) watched(dir string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.wds[dir]
	return ok
}

// recordingHandler collects reported faults.
type recordingHandler struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingHandler) handle(err error, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingHandler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func newWatchedCache(t *testing.T) (*Cache, *fakeNotifier, *recordingHandler, string) {
	t.Helper()
	rec := &recordingHandler{}
	c := New(Config{ErrorHandler: rec.handle})
	fn := newFakeNotifier()
	c.newNotifier = func() (notifier, error) { return fn, nil }
	t.Cleanup(func() { _ = c.Close() })
	return c, fn, rec, t.TempDir()
}

func TestStartWatchingSeedsVersionsAndClosesRegistry(t *testing.T) {
	c, fn, _, dir := newWatchedCache(t)
	shadowDir := t.TempDir()
	path := filepath.Join(dir, "interfaces")
	shadow := filepath.Join(shadowDir, "interfaces.new")

	if err := c.Register("interfaces", path, (&textCodec{}).codec(), Shadow(shadow)); err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Version("interfaces"); v != 0 {
		t.Errorf("Expected version 0 before watching, got %d", v)
	}

	if err := c.StartWatching(); err != nil {
		t.Fatalf("StartWatching failed: %v", err)
	}
	if !c.Watching() {
		t.Fatalf("Expected an active session")
	}
	if !fn.watched(dir) || !fn.watched(shadowDir) {
		t.Errorf("Expected both the canonical and the working copy directory to be watched")
	}
	if v, _ := c.Version("interfaces"); v != 1 {
		t.Errorf("Expected seeded version 1, got %d", v)
	}

	// editing the working copy bumps the canonical version
	fn.emit(shadowDir, evChange, "interfaces.new")
	if v, _ := c.Version(path); v != 2 {
		t.Errorf("Expected version 2 after working copy change, got %d", v)
	}

	err := c.Register("late", filepath.Join(dir, "late"), (&textCodec{}).codec())
	assertErrorCode(t, err, ErrCodeRegistryClosed)
	err = c.RegisterPattern(dir, `x`, (&textCodec{}).codec())
	assertErrorCode(t, err, ErrCodeRegistryClosed)

	err = c.StartWatching()
	assertErrorCode(t, err, ErrCodeWatchActive)
}

func TestStopAndRestartWatching(t *testing.T) {
	c, fn, _, dir := newWatchedCache(t)
	path := filepath.Join(dir, "file")
	writeFile(t, path, "x")
	if err := c.Register("file", path, (&textCodec{}).codec()); err != nil {
		t.Fatal(err)
	}
	if err := c.StartWatching(); err != nil {
		t.Fatal(err)
	}
	if err := c.StopWatching(); err != nil {
		t.Fatal(err)
	}
	if c.Watching() || !fn.isClosed() {
		t.Fatalf("Expected the session to be closed")
	}
	if err := c.StopWatching(); err != nil {
		t.Errorf("Stopping twice must be harmless: %v", err)
	}

	if err := c.StartWatching(); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if v, _ := c.Version("file"); v != 2 {
		t.Errorf("Expected restart to bump the version to 2, got %d", v)
	}
}

func TestUnwatchableDirectoryIsReported(t *testing.T) {
	c, fn, rec, dir := newWatchedCache(t)
	missing := filepath.Join(dir, "missing")
	fn.failDirs[missing] = true

	tc := &textCodec{}
	if err := c.Register("ghost", filepath.Join(missing, "file"), tc.codec(), AlwaysCallParser()); err != nil {
		t.Fatal(err)
	}
	if err := c.StartWatching(); err != nil {
		t.Fatalf("StartWatching must survive an unwatchable directory: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("Expected one reported fault, got %d", rec.count())
	}

	for i := 0; i < 2; i++ {
		if _, err := c.Read("ghost"); err != nil {
			t.Fatal(err)
		}
	}
	if tc.count() != 2 {
		t.Errorf("Files in unwatched directories must always reparse, got %d parses", tc.count())
	}
}

func TestOverflowFlushesCache(t *testing.T) {
	c, fn, rec, dir := newWatchedCache(t)
	path := filepath.Join(dir, "file")
	writeFile(t, path, "x")
	tc := &textCodec{}
	if err := c.Register("file", path, tc.codec()); err != nil {
		t.Fatal(err)
	}
	if err := c.StartWatching(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Read("file"); err != nil {
		t.Fatal(err)
	}

	fn.emit(dir, evOverflow, "")
	if _, err := c.Read("file"); err != nil {
		t.Fatal(err)
	}
	if tc.count() != 2 {
		t.Errorf("Expected reparse after overflow, got %d parses", tc.count())
	}
	if !c.Watching() {
		t.Errorf("Overflow must not end the session")
	}
	if rec.count() != 0 {
		t.Errorf("Overflow is not a fault, got %d reports", rec.count())
	}
	if c.Stats().Flushes != 1 {
		t.Errorf("Expected one flush, got %+v", c.Stats())
	}
}

func TestIgnoredAndUnmountDisableSession(t *testing.T) {
	for _, mask := range []eventMask{evIgnored, evUnmount} {
		t.Run(fmt.Sprintf("mask-%d", mask), func(t *testing.T) {
			c, fn, rec, dir := newWatchedCache(t)
			path := filepath.Join(dir, "file")
			writeFile(t, path, "x")
			tc := &textCodec{}
			if err := c.Register("file", path, tc.codec()); err != nil {
				t.Fatal(err)
			}
			if err := c.StartWatching(); err != nil {
				t.Fatal(err)
			}

			fn.emit(dir, mask, "")
			fn.emit(dir, evChange, "file")
			if _, err := c.Read("file"); err != nil {
				t.Fatal(err)
			}
			if c.Watching() {
				t.Errorf("Expected the session to be disabled")
			}
			if rec.count() != 1 {
				t.Errorf("Expected one reported fault, got %d", rec.count())
			}

			if _, err := c.Read("file"); err != nil {
				t.Fatal(err)
			}
			if tc.count() != 2 {
				t.Errorf("Expected every read to reparse after disable, got %d parses", tc.count())
			}
		})
	}
}

func TestDirectoryEventsAreIgnored(t *testing.T) {
	c, fn, _, dir := newWatchedCache(t)
	path := filepath.Join(dir, "file")
	if err := c.Register("file", path, (&textCodec{}).codec()); err != nil {
		t.Fatal(err)
	}
	if err := c.StartWatching(); err != nil {
		t.Fatal(err)
	}
	fn.emit(dir, evChange|evIsDir, "file")
	fn.emit(dir, evChange, "")
	if v, _ := c.Version("file"); v != 1 {
		t.Errorf("Directory and nameless events must not bump versions, got %d", v)
	}
}

func TestWrongProcessDisablesSession(t *testing.T) {
	c, _, rec, dir := newWatchedCache(t)
	path := filepath.Join(dir, "file")
	writeFile(t, path, "x")
	tc := &textCodec{}
	if err := c.Register("file", path, tc.codec()); err != nil {
		t.Fatal(err)
	}
	if err := c.StartWatching(); err != nil {
		t.Fatal(err)
	}

	realPID := processID
	processID = func() int { return realPID() + 1 }
	defer func() { processID = realPID }()

	if _, err := c.Read("file"); err != nil {
		t.Fatal(err)
	}
	if c.Watching() {
		t.Errorf("A forked process must not use the parent's session")
	}
	if rec.count() != 1 {
		t.Errorf("Expected one reported fault, got %d", rec.count())
	}
}

func TestDrainErrorDisablesSession(t *testing.T) {
	c, fn, rec, dir := newWatchedCache(t)
	if err := c.Register("file", filepath.Join(dir, "file"), (&textCodec{}).codec()); err != nil {
		t.Fatal(err)
	}
	if err := c.StartWatching(); err != nil {
		t.Fatal(err)
	}
	fn.drainErr = fmt.Errorf("read failed")

	versions := c.Versions()
	if c.Watching() {
		t.Errorf("Expected the session to be disabled after a read error")
	}
	if rec.count() != 1 {
		t.Errorf("Expected one reported fault, got %d", rec.count())
	}
	if len(versions) != 1 {
		t.Errorf("Expected one tracked version, got %v", versions)
	}
}

func TestPatternEvents(t *testing.T) {
	c, fn, _, dir := newWatchedCache(t)
	writeFile(t, filepath.Join(dir, "100.conf"), "a")
	writeFile(t, filepath.Join(dir, "notes.txt"), "b")

	tc := &textCodec{}
	if err := c.RegisterPattern(dir, `\d+\.conf`, tc.codec()); err != nil {
		t.Fatal(err)
	}
	if err := c.StartWatching(); err != nil {
		t.Fatal(err)
	}

	existing := filepath.Join(dir, "100.conf")
	if v, _ := c.Version(existing); v != 1 {
		t.Errorf("Expected existing pattern match to be seeded, got %d", v)
	}

	created := filepath.Join(dir, "101.conf")
	fn.emit(dir, evChange, "101.conf")
	fn.emit(dir, evChange, "notes.txt")
	versions := c.Versions()
	if versions[created] != 1 {
		t.Errorf("Expected new pattern match to get version 1, got %d", versions[created])
	}
	if _, tracked := versions[filepath.Join(dir, "notes.txt")]; tracked {
		t.Errorf("Non-matching names must not be tracked")
	}

	for i := 0; i < 2; i++ {
		data, err := c.Read(existing)
		if err != nil {
			t.Fatal(err)
		}
		if data != "a" {
			t.Errorf("Unexpected data %v", data)
		}
	}
	if tc.count() != 1 {
		t.Errorf("Pattern matches are cached like fixed paths, got %d parses", tc.count())
	}
}
