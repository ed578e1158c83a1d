// Package cli provides the command-line interface of hestia.
//
// The commands inspect and maintain the registered host configuration
// files through a hestia.Cache: list registrations, print parsed values,
// show and discard pending working copies, check a network interfaces file
// without writing it, and summarize the audit trail.
//
// Architecture:
//   - Manager: command tree and routing (orpheus)
//   - Handlers: one method per command
//   - Utils: argument checks and YAML output
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"io"
	"os"

	"github.com/agilira/hestia"
	"github.com/agilira/hestia/codecs/netif"
	"github.com/agilira/orpheus/pkg/orpheus"
)

// Version of the hestia command.
const Version = "1.0.0"

// Manager routes hestia commands to a cache.
type Manager struct {
	app   *orpheus.App
	cache *hestia.Cache
	probe *netif.Probe
	out   io.Writer
}

// NewManager creates the command tree over cache. probe supplies the live
// interface state for netcheck; nil means none.
func NewManager(cache *hestia.Cache, probe *netif.Probe) *Manager {
	app := orpheus.New("hestia").
		SetDescription("Cached, change-aware host configuration files").
		SetVersion(Version)

	manager := &Manager{
		app:   app,
		cache: cache,
		probe: probe,
		out:   os.Stdout,
	}

	manager.setupFileCommands()
	manager.setupNetworkCommands()
	manager.setupUtilityCommands()

	return manager
}

// WithOutput redirects command output.
func (m *Manager) WithOutput(w io.Writer) *Manager {
	m.out = w
	return m
}

// Run executes the command line args (without the program name).
func (m *Manager) Run(args []string) error {
	return m.app.Run(args)
}

// setupFileCommands configures the commands over registered files.
func (m *Manager) setupFileCommands() {
	filesCmd := orpheus.NewCommand("files", "List registered files").
		SetHandler(m.handleFiles)
	m.app.AddCommand(filesCmd)

	// read <id|path> [--diff]
	readCmd := orpheus.NewCommand("read", "Print the parsed value of a registered file").
		AddBoolFlag("diff", "d", false, "Also print pending working copy changes").
		SetHandler(m.handleRead)
	m.app.AddCommand(readCmd)

	diffCmd := orpheus.NewCommand("diff", "Show pending working copy changes").
		SetHandler(m.handleDiff)
	m.app.AddCommand(diffCmd)

	discardCmd := orpheus.NewCommand("discard", "Drop the working copy of a registered file").
		SetHandler(m.handleDiscard)
	m.app.AddCommand(discardCmd)
}

// setupNetworkCommands configures the network interfaces checks.
func (m *Manager) setupNetworkCommands() {
	// netcheck [path] [--quiet]
	netcheckCmd := orpheus.NewCommand("netcheck", "Parse, validate and render a network interfaces file").
		AddBoolFlag("quiet", "q", false, "Only report problems").
		SetHandler(m.handleNetcheck)
	m.app.AddCommand(netcheckCmd)
}

// setupUtilityCommands configures diagnostics.
func (m *Manager) setupUtilityCommands() {
	versionsCmd := orpheus.NewCommand("versions", "Show the change-notification version table").
		SetHandler(m.handleVersions)
	m.app.AddCommand(versionsCmd)

	auditCmd := orpheus.NewCommand("audit", "Audit trail")
	auditCmd.Subcommand("stats", "Summarize recorded events", m.handleAuditStats)
	m.app.AddCommand(auditCmd)

	infoCmd := orpheus.NewCommand("info", "Cache counters").
		SetHandler(m.handleInfo)
	m.app.AddCommand(infoCmd)
}
