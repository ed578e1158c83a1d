// Command handlers for the hestia CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/agilira/go-errors"
	"github.com/agilira/hestia"
	"github.com/agilira/hestia/codecs/netif"
	"github.com/agilira/orpheus/pkg/orpheus"
)

// fileEntry is one line of the files listing.
type fileEntry struct {
	ID     string `yaml:"id"`
	Path   string `yaml:"path"`
	Shadow string `yaml:"shadow,omitempty"`
}

func (m *Manager) handleFiles(ctx *orpheus.Context) error {
	ids := m.cache.Registered()
	entries := make([]fileEntry, 0, len(ids))
	for _, id := range ids {
		path, err := m.cache.PathOf(id)
		if err != nil {
			return err
		}
		shadow, _ := m.cache.ShadowOf(id)
		entries = append(entries, fileEntry{ID: id, Path: path, Shadow: shadow})
	}
	return m.printYAML(entries)
}

// handleRead prints the parsed value; with --diff the pending working
// copy changes follow as a second document.
func (m *Manager) handleRead(ctx *orpheus.Context) error {
	key, err := requireArg(ctx, 0, "file")
	if err != nil {
		return err
	}

	res, err := m.cache.ReadFull(key)
	if err != nil {
		return err
	}
	if !res.Exists && res.Data == nil {
		path, _ := m.cache.PathOf(key)
		return errors.New(ErrCodeNotFound, "file does not exist").
			WithContext("path", path)
	}

	if err := m.printYAML(res.Data); err != nil {
		return err
	}
	if ctx.GetFlagBool("diff") && res.Changes != "" {
		fmt.Fprintf(m.out, "---\n%s", res.Changes)
	}
	return nil
}

func (m *Manager) handleDiff(ctx *orpheus.Context) error {
	key, err := requireArg(ctx, 0, "file")
	if err != nil {
		return err
	}
	diff, err := m.cache.Diff(key)
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Fprintln(m.out, "no pending changes")
		return nil
	}
	fmt.Fprint(m.out, diff)
	return nil
}

func (m *Manager) handleDiscard(ctx *orpheus.Context) error {
	key, err := requireArg(ctx, 0, "file")
	if err != nil {
		return err
	}
	shadow, ok := m.cache.ShadowOf(key)
	if !ok {
		return errors.New(ErrCodeUsage, "file has no working copy").
			WithContext("file", key)
	}
	if _, err := m.cache.DiscardChanges(key); err != nil {
		return err
	}
	fmt.Fprintf(m.out, "discarded %s\n", shadow)
	return nil
}

// handleNetcheck runs a network interfaces file through the parser, the
// validator and the serializer without writing anything. The default is
// the canonical file below the cache root.
func (m *Manager) handleNetcheck(ctx *orpheus.Context) error {
	path := ctx.GetArg(0)
	if path == "" {
		path = m.cache.HostPath(netif.DefaultPath)
	}

	// #nosec G304 -- operator supplied path, read only
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, ErrCodeNotFound, "unable to open interfaces file").
			WithContext("path", path)
	}
	defer f.Close()

	cfg, err := netif.Parse(f, m.probe.Snapshot())
	if err != nil {
		return err
	}

	var rendered bytes.Buffer
	_, warnings, err := netif.Write(&rendered, cfg, netif.WriteOptions{Ifupdown2: m.probe.Ifupdown2()})
	if err != nil {
		return err
	}

	for _, warning := range warnings {
		fmt.Fprintf(m.out, "# warning: %s\n", warning)
	}
	if !ctx.GetFlagBool("quiet") {
		fmt.Fprint(m.out, rendered.String())
	}
	return nil
}

// handleVersions starts a notification session when none is active so the
// table reflects what the cache would track.
func (m *Manager) handleVersions(ctx *orpheus.Context) error {
	if !m.cache.Watching() {
		if err := m.cache.StartWatching(); err != nil && !hasCode(err, hestia.ErrCodeWatchActive) {
			return err
		}
	}
	return m.printYAML(m.cache.Versions())
}

func (m *Manager) handleAuditStats(ctx *orpheus.Context) error {
	logger := m.cache.AuditLogger()
	if !logger.Enabled() {
		fmt.Fprintln(m.out, "audit trail disabled")
		return nil
	}
	stats, err := logger.Stats()
	if err != nil {
		return errors.Wrap(err, hestia.ErrCodeIOError, "unable to read audit trail")
	}
	return m.printYAML(auditSummary{
		Total:   stats.TotalEvents,
		ByEvent: stats.EventsByName,
		ByLevel: stats.EventsByLevel,
		Oldest:  stats.OldestEvent,
		Newest:  stats.NewestEvent,
		Bytes:   stats.StorageSize,
	})
}

func (m *Manager) handleInfo(ctx *orpheus.Context) error {
	stats := m.cache.Stats()
	return m.printYAML(cacheInfo{
		Files:    len(m.cache.Registered()),
		Watching: m.cache.Watching(),
		Hits:     stats.Hits,
		Misses:   stats.Misses,
		Writes:   stats.Writes,
		Updates:  stats.Updates,
		Flushes:  stats.Flushes,
	})
}
