// watch.go: Change-notification dispatcher and version table
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/agilira/go-errors"
)

// eventMask is the platform-neutral subset of notification flags the
// dispatcher acts on.
type eventMask uint32

const (
	evChange eventMask = 1 << iota
	evIsDir
	evOverflow
	evUnmount
	evIgnored
)

// notifyEvent is one drained change notification.
type notifyEvent struct {
	wd   int
	mask eventMask
	name string
}

// notifier is the change-notification primitive: directory subscriptions
// and a non-blocking drain of pending events.
type notifier interface {
	addWatch(dir string) (int, error)
	// drain delivers pending events until none are left or fn returns false.
	drain(fn func(notifyEvent) bool) error
	close() error
}

// watchedDir maps one watched directory to what it tracks.
type watchedDir struct {
	path     string
	files    map[string]string // file name -> canonical path
	patterns []*regexp.Regexp
}

// watchSession is the one notification session of a Cache, bound to the
// process that created it.
type watchSession struct {
	n    notifier
	pid  int
	dirs map[int]*watchedDir
}

// StartWatching creates the change-notification session. It closes the
// registry for good and seeds the version table: every tracked file that
// can be watched starts one version past its previous value, and every
// existing pattern match is bumped once.
func (c *Cache) StartWatching() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return errors.New(ErrCodeWatchActive, "change notification session already active")
	}

	n, err := c.newNotifier()
	if err != nil {
		return err
	}

	c.closed = true
	session := &watchSession{n: n, pid: processID(), dirs: make(map[int]*watchedDir)}

	plan := c.watchPlan()
	dirs := make([]string, 0, len(plan))
	for dir := range plan {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		wd, err := n.addWatch(dir)
		if err != nil {
			c.report(errors.Wrap(err, ErrCodeWatchError, "unable to watch directory, files inside are always reparsed").
				WithContext("directory", dir), dir)
			continue
		}
		session.dirs[wd] = plan[dir]
	}
	c.session = session

	for _, wdir := range session.dirs {
		c.seedVersions(wdir)
	}

	c.logger.Info("hestia: change notification started", "directories", len(session.dirs))
	c.auditLogger.LogFileEvent(AuditInfo, "watch_started", "", map[string]interface{}{
		"directories": len(session.dirs),
	})
	return nil
}

// watchPlan groups every canonical path, working copy and pattern by
// directory. Working copies map to their canonical path so editing the
// copy bumps the canonical version.
func (c *Cache) watchPlan() map[string]*watchedDir {
	plan := make(map[string]*watchedDir)
	get := func(dir string) *watchedDir {
		wdir, ok := plan[dir]
		if !ok {
			wdir = &watchedDir{path: dir, files: make(map[string]string)}
			plan[dir] = wdir
		}
		return wdir
	}

	for path := range c.byPath {
		get(filepath.Dir(path)).files[filepath.Base(path)] = path
		if shadow, ok := c.shadows[path]; ok {
			get(filepath.Dir(shadow)).files[filepath.Base(shadow)] = path
		}
	}
	for _, tmpl := range c.patterns {
		wdir := get(tmpl.dir)
		wdir.patterns = append(wdir.patterns, tmpl.pattern)
	}
	return plan
}

func (c *Cache) seedVersions(wdir *watchedDir) {
	for name, path := range wdir.files {
		if name == filepath.Base(path) && filepath.Dir(path) == wdir.path {
			c.versions[path]++
		}
	}
	if len(wdir.patterns) == 0 {
		return
	}
	entries, err := os.ReadDir(wdir.path)
	if err != nil {
		c.report(errors.Wrap(err, ErrCodeWatchError, "unable to list pattern directory").
			WithContext("directory", wdir.path), wdir.path)
		return
	}
	for _, entry := range entries {
		for _, re := range wdir.patterns {
			if re.MatchString(entry.Name()) {
				c.versions[filepath.Join(wdir.path, entry.Name())]++
			}
		}
	}
}

// StopWatching drops the session. Reads reparse until it is started again.
func (c *Cache) StopWatching() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopWatchingLocked("stop")
}

func (c *Cache) stopWatchingLocked(reason string) error {
	s := c.session
	if s == nil {
		return nil
	}
	c.session = nil
	c.auditLogger.LogFileEvent(AuditInfo, "watch_stopped", "", map[string]interface{}{
		"reason": reason,
	})
	if err := s.n.close(); err != nil {
		return errors.Wrap(err, ErrCodeWatchError, "closing change notification session failed")
	}
	return nil
}

// Watching reports whether a session is active.
func (c *Cache) Watching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Version returns the current version of a registered file after draining
// pending notifications. Zero means no version was ever observed.
func (c *Cache) Version(key string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, path, err := c.lookup(key)
	if err != nil {
		return 0, err
	}
	return c.currentVersion(path), nil
}

// Versions returns a copy of the version table.
func (c *Cache) Versions() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.poll()
	out := make(map[string]uint64, len(c.versions))
	for path, v := range c.versions {
		out[path] = v
	}
	return out
}

// currentVersion drains pending events and returns the version of path.
func (c *Cache) currentVersion(path string) uint64 {
	c.poll()
	return c.versions[path]
}

// poll drains pending events without blocking.
func (c *Cache) poll() {
	s := c.session
	if s == nil {
		return
	}
	if s.pid != processID() {
		c.disable(errors.New(ErrCodeWatchError, "got change notification poll request in wrong process - disabling").
			WithContext("owner_pid", s.pid), "wrong_process")
		return
	}
	if err := s.n.drain(func(ev notifyEvent) bool { return c.dispatch(s, ev) }); err != nil {
		c.disable(errors.Wrap(err, ErrCodeWatchError, "reading change notifications failed - disabling"), "read_error")
	}
}

// dispatch applies one event. It returns false once the session is gone.
func (c *Cache) dispatch(s *watchSession, ev notifyEvent) bool {
	if c.session != s {
		return false
	}
	if s.pid != processID() {
		c.disable(errors.New(ErrCodeWatchError, "got change notification event in wrong process - disabling").
			WithContext("owner_pid", s.pid), "wrong_process")
		return false
	}

	if ev.mask&evOverflow != 0 {
		c.logger.Info("hestia: change notification overflow - flushing cache")
		c.auditLogger.LogFileEvent(AuditWarn, "watch_overflow", "", nil)
		c.flushLocked()
		return true
	}

	wdir := s.dirs[ev.wd]

	if ev.mask&(evUnmount|evIgnored) != 0 {
		dir := ""
		if wdir != nil {
			dir = wdir.path
		}
		kind := "ignored"
		if ev.mask&evUnmount != 0 {
			kind = "unmount"
		}
		c.disable(errors.New(ErrCodeWatchError, "got '"+kind+"' event - disabling change notification").
			WithContext("directory", dir), kind)
		return false
	}

	if ev.mask&evIsDir != 0 || ev.name == "" || wdir == nil {
		return true
	}

	for _, re := range wdir.patterns {
		if re.MatchString(ev.name) {
			c.versions[filepath.Join(wdir.path, ev.name)]++
		}
	}
	if path, ok := wdir.files[ev.name]; ok {
		c.versions[path]++
	}
	return true
}

// disable reports err and drops the session.
func (c *Cache) disable(err error, reason string) {
	c.report(err, "")
	c.auditLogger.LogFileEvent(AuditCritical, "watch_disabled", "", map[string]interface{}{
		"reason": reason,
	})
	if closeErr := c.stopWatchingLocked(reason); closeErr != nil {
		c.report(closeErr, "")
	}
}
