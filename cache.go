// cache.go: Read, write, update and discard operations
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"io"
	"os"

	"github.com/agilira/go-errors"
	"github.com/cespare/xxhash/v2"
)

// Read returns the parsed value of a registered file, by identifier or
// path. An absent file yields a nil value and a nil error; use ReadFull to
// tell it apart from a codec that parsed to nil.
func (c *Cache) Read(key string) (any, error) {
	res, err := c.ReadFull(key)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// ReadFull is Read with the working-copy diff and the existence flag.
func (c *Cache) ReadFull(key string) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked(key)
}

func (c *Cache) readLocked(key string) (*Result, error) {
	d, path, err := c.lookup(key)
	if err != nil {
		return nil, err
	}

	current := c.currentVersion(path)

	var f *os.File
	shadow, shadowed := c.shadows[path]
	if shadowed {
		// #nosec G304 -- registered working copy
		if f, err = os.Open(shadow); err != nil {
			f = nil
			shadowed = false
		}
	}
	if f == nil {
		// #nosec G304 -- registered path
		if f, err = os.Open(path); err != nil {
			f = nil
		}
	}
	if f != nil {
		defer f.Close()
	}

	if f == nil {
		d.reset()
		if !d.opts.alwaysCallParser {
			return &Result{Exists: false}, nil
		}
	}

	if c.cacheUsable(d, current) {
		c.stats.Hits++
		return &Result{Data: c.handOut(d, d.data), Changes: d.diff, Exists: true}, nil
	}
	c.stats.Misses++

	var diff string
	if shadowed {
		if diff, err = computeDiff(path, shadow); err != nil {
			return nil, err
		}
	}

	var r io.Reader
	if f != nil {
		r = f
	}
	data, err := d.codec.Parse(path, r)
	if err != nil {
		if isNotImplemented(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, ErrCodeParseError, "failed to parse file").
			WithContext("path", path)
	}

	d.data = data
	d.cached = true
	d.diff = diff
	if !d.opts.noCache {
		d.version = current
	}

	c.auditLogger.LogFileEvent(AuditInfo, "file_parsed", path, nil)

	return &Result{Data: c.handOut(d, data), Changes: diff, Exists: f != nil}, nil
}

// cacheUsable is the cache-hit test. A disabled or missing notification
// session makes every read a miss.
func (c *Cache) cacheUsable(d *descriptor, current uint64) bool {
	if d.opts.noCache || c.session == nil || current == 0 {
		return false
	}
	if !d.cached || d.version == 0 {
		return false
	}
	return d.opts.readOnce || d.version == current
}

func (c *Cache) handOut(d *descriptor, v any) any {
	if d.opts.noClone {
		return v
	}
	return cloneValue(v)
}

// Write serializes data through the registered writer and atomically
// replaces the target (the working copy when one is registered).
func (c *Cache) Write(key string, data any) (any, error) {
	res, err := c.write(key, data, false)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// WriteFull is Write returning the working-copy diff and content digest.
func (c *Cache) WriteFull(key string, data any) (*Result, error) {
	return c.write(key, data, true)
}

func (c *Cache) write(key string, data any, full bool) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, path, err := c.lookup(key)
	if err != nil {
		return nil, err
	}

	target := path
	shadow, shadowed := c.shadows[path]
	if shadowed {
		target = shadow
	}

	var written any
	digest := xxhash.New()
	err = atomicWrite(target, c.permFor(d), func(w io.Writer) error {
		out, werr := d.codec.Write(path, io.MultiWriter(w, digest), data)
		if werr != nil {
			if isNotImplemented(werr) {
				return werr
			}
			return errors.Wrap(werr, ErrCodeWriteError, "writer failed").
				WithContext("path", path)
		}
		written = out
		return nil
	})

	// Invalidate even on failure so no read serves data past this attempt.
	d.version = 0

	if err != nil {
		c.auditLogger.LogFileEvent(AuditWarn, "write_failed", target, map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	c.stats.Writes++
	res := &Result{Data: written, Exists: true, Digest: digest.Sum64()}
	if full && shadowed {
		if res.Changes, err = computeDiff(path, shadow); err != nil {
			return nil, err
		}
	}

	c.auditLogger.LogFileEvent(AuditCritical, "file_written", target, map[string]interface{}{
		"digest": res.Digest,
	})
	return res, nil
}

func (c *Cache) permFor(d *descriptor) os.FileMode {
	if d.opts.perm != 0 {
		return d.opts.perm
	}
	return c.config.DefaultPerm
}

// Update runs the registered updater under an exclusive advisory lock on
// <path>.lock: the current content and data are merged and the result is
// persisted atomically, or the file is removed when the updater returns no
// content. Update waits at most Config.LockTimeout for the lock.
func (c *Cache) Update(key string, data any, args ...any) error {
	c.mu.Lock()
	d, path, err := c.lookup(key)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	update := d.codec.Update
	perm := c.permFor(d)
	timeout := c.config.LockTimeout
	c.mu.Unlock()

	if update == nil {
		return errors.New(ErrCodeCodecNotImplemented, "unable to update/merge data").
			WithContext("path", path)
	}

	lock, err := acquireLock(path+".lock", timeout)
	if err != nil {
		return err
	}
	defer func() { _ = lock.release() }()

	err = c.updateLocked(path, perm, update, data, args)

	c.mu.Lock()
	d.version = 0
	if err == nil {
		c.stats.Updates++
	}
	c.mu.Unlock()

	if err != nil {
		return err
	}
	c.auditLogger.LogFileEvent(AuditCritical, "file_updated", path, nil)
	return nil
}

// updateLocked is the read-merge-write critical section; the advisory lock
// is held by the caller.
func (c *Cache) updateLocked(path string, perm os.FileMode, update UpdateFunc, data any, args []any) error {
	var r io.Reader
	// #nosec G304 -- registered path
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		r = f
	}

	content, err := update(path, r, data, args...)
	if err != nil {
		return errors.Wrap(err, ErrCodeWriteError, "updater failed").
			WithContext("path", path)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(content) == 0 {
		return removeIfExists(path)
	}
	return writeContent(path, perm, content)
}

// DiscardChanges removes the working copy, if any, and rereads the file.
func (c *Cache) DiscardChanges(key string) (any, error) {
	res, err := c.DiscardChangesFull(key)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// DiscardChangesFull is DiscardChanges returning the full read result.
func (c *Cache) DiscardChangesFull(key string) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, path, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	if shadow, ok := c.shadows[path]; ok {
		if err := removeIfExists(shadow); err != nil {
			return nil, err
		}
		c.auditLogger.LogFileEvent(AuditWarn, "changes_discarded", shadow, nil)
	}
	return c.readLocked(key)
}
