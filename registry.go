// registry.go: Codec registrations for fixed paths and file-name patterns
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/agilira/go-errors"
)

// ParseFunc turns file content into a value. r is nil when the file is
// absent, which only happens for AlwaysCallParser registrations. path is
// always the canonical path, even when a working copy is being read.
type ParseFunc func(path string, r io.Reader) (any, error)

// WriteFunc serializes data. The returned value is what the codec considers
// written, possibly a normalized form of data.
type WriteFunc func(path string, w io.Writer, data any) (any, error)

// UpdateFunc merges data into the existing content (r is nil when the file
// is absent). Returning empty content deletes the file.
type UpdateFunc func(path string, r io.Reader, data any, args ...any) ([]byte, error)

// Codec is the capability set of one registered file format.
type Codec struct {
	Parse  ParseFunc
	Write  WriteFunc
	Update UpdateFunc
}

// Option tunes a registration.
type Option func(*options)

type options struct {
	readOnce         bool
	noCache          bool
	noClone          bool
	alwaysCallParser bool
	shadow           string
	perm             os.FileMode
}

// ReadOnce serves the cached value forever once populated.
func ReadOnce() Option { return func(o *options) { o.readOnce = true } }

// NoCache always reparses.
func NoCache() Option { return func(o *options) { o.noCache = true } }

// NoClone hands out the cached value itself. Callers must not mutate it.
func NoClone() Option { return func(o *options) { o.noClone = true } }

// AlwaysCallParser invokes the parser with a nil reader when the file is
// absent so the codec can supply a default.
func AlwaysCallParser() Option { return func(o *options) { o.alwaysCallParser = true } }

// Shadow routes reads and writes through a working copy at path.
func Shadow(path string) Option { return func(o *options) { o.shadow = filepath.Clean(path) } }

// Perm sets the mode of written files.
func Perm(mode os.FileMode) Option { return func(o *options) { o.perm = mode } }

// descriptor is the registration record of one file or one pattern template.
type descriptor struct {
	id      string
	path    string
	dir     string
	pattern *regexp.Regexp
	codec   Codec
	opts    options

	data    any
	cached  bool
	diff    string
	version uint64 // 0 means no version observed
}

func (d *descriptor) reset() {
	d.data = nil
	d.cached = false
	d.diff = ""
	d.version = 0
}

// materialize copies a pattern template for one concrete path.
func (d *descriptor) materialize(path string) *descriptor {
	return &descriptor{
		id:    d.id,
		path:  path,
		codec: d.codec,
		opts:  d.opts,
	}
}

// notImplemented builds the stub installed for missing codec functions.
func notImplemented(op string) error {
	return errors.New(ErrCodeCodecNotImplemented, "codec does not implement this operation").
		WithContext("operation", op)
}

func isNotImplemented(err error) bool {
	coder, ok := err.(errors.ErrorCoder)
	return ok && string(coder.ErrorCode()) == ErrCodeCodecNotImplemented
}

func completeCodec(codec Codec) Codec {
	if codec.Parse == nil {
		codec.Parse = func(path string, _ io.Reader) (any, error) {
			return nil, notImplemented("parse")
		}
	}
	if codec.Write == nil {
		codec.Write = func(path string, _ io.Writer, _ any) (any, error) {
			return nil, notImplemented("write")
		}
	}
	return codec
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Register adds a codec for one fixed path under a logical identifier.
// Registration closes once StartWatching has been called.
func (c *Cache) Register(id, path string, codec Codec, opts ...Option) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New(ErrCodeRegistryClosed, "cannot register after change notification started").
			WithContext("id", id)
	}
	if id == "" {
		return errors.New(ErrCodeInvalidConfig, "registration id cannot be empty")
	}
	if !filepath.IsAbs(path) {
		return errors.New(ErrCodeInvalidConfig, "registered path must be absolute").
			WithContext("path", path)
	}
	path = filepath.Clean(path)

	if _, exists := c.byPath[path]; exists {
		return errors.New(ErrCodeDuplicatePath, "file already registered").
			WithContext("path", path)
	}
	if _, exists := c.byID[id]; exists {
		return errors.New(ErrCodeDuplicateID, "identifier already registered").
			WithContext("id", id)
	}

	o := buildOptions(opts)
	if o.shadow != "" {
		if !filepath.IsAbs(o.shadow) || o.shadow == path {
			return errors.New(ErrCodeInvalidConfig, "shadow path must be absolute and differ from the canonical path").
				WithContext("path", path).
				WithContext("shadow", o.shadow)
		}
		c.shadows[path] = o.shadow
	}

	c.byPath[path] = &descriptor{id: id, path: path, codec: completeCodec(codec), opts: o}
	c.byID[id] = path
	return nil
}

// RegisterPattern adds a codec for every file in dir whose name matches
// pattern. The pattern must match the whole file name.
func (c *Cache) RegisterPattern(dir, pattern string, codec Codec, opts ...Option) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New(ErrCodeRegistryClosed, "cannot register after change notification started").
			WithContext("directory", dir).
			WithContext("pattern", pattern)
	}
	if !filepath.IsAbs(dir) {
		return errors.New(ErrCodeInvalidConfig, "pattern directory must be absolute").
			WithContext("directory", dir)
	}
	dir = filepath.Clean(dir)

	key := dir + "/" + pattern
	if _, exists := c.patternKeys[key]; exists {
		return errors.New(ErrCodeDuplicatePath, "pattern already registered").
			WithContext("directory", dir).
			WithContext("pattern", pattern)
	}

	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return errors.Wrap(err, ErrCodeInvalidPattern, "invalid file name pattern").
			WithContext("pattern", pattern)
	}

	o := buildOptions(opts)
	if o.shadow != "" {
		return errors.New(ErrCodeInvalidConfig, "pattern registrations cannot have a working copy").
			WithContext("pattern", pattern)
	}

	d := &descriptor{id: key, dir: dir, pattern: re, codec: completeCodec(codec), opts: o}
	c.patternKeys[key] = d
	c.patterns = append(c.patterns, d)
	return nil
}

// lookup resolves an identifier or a path. Pattern matches are materialized
// once and reused. The caller must hold c.mu.
func (c *Cache) lookup(key string) (*descriptor, string, error) {
	if path, ok := c.byID[key]; ok {
		return c.byPath[path], path, nil
	}

	path := key
	if filepath.IsAbs(path) {
		path = filepath.Clean(path)
	}
	if d, ok := c.byPath[path]; ok {
		return d, path, nil
	}
	if d, ok := c.materialized[path]; ok {
		return d, path, nil
	}

	if filepath.IsAbs(path) {
		dir, name := filepath.Split(path)
		dir = filepath.Clean(dir)
		for _, tmpl := range c.patterns {
			if tmpl.dir == dir && tmpl.pattern.MatchString(name) {
				d := tmpl.materialize(path)
				c.materialized[path] = d
				return d, path, nil
			}
		}
	}

	return nil, "", errors.New(ErrCodeNotRegistered, "file not registered").
		WithContext("file", key)
}

// Registered lists the identifiers of fixed-path registrations.
func (c *Cache) Registered() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PathOf resolves an identifier or path to its canonical path.
func (c *Cache) PathOf(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, path, err := c.lookup(key)
	return path, err
}

// ShadowOf returns the working-copy path of a registration, if any.
func (c *Cache) ShadowOf(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, path, err := c.lookup(key)
	if err != nil {
		return "", false
	}
	shadow, ok := c.shadows[path]
	return shadow, ok
}
