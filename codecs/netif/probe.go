// probe.go: live interface enumeration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netif

import (
	"bufio"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// Default locations read by Probe.
const (
	DefaultProcNetDev      = "/proc/net/dev"
	DefaultSysClassNet     = "/sys/class/net"
	DefaultIfupdown2Marker = "/usr/share/ifupdown2/ifupdown2"
)

// iffUp is IFF_UP in /sys/class/net/<iface>/flags.
const iffUp = 0x1

// Snapshot is the live state the parser merges into a configuration.
type Snapshot struct {
	// Existing holds the physical NICs known to the kernel.
	Existing map[string]bool
	// Active holds the interfaces that are administratively up.
	Active map[string]bool
}

// Probe enumerates interfaces through a filesystem, the OS one by default.
type Probe struct {
	Fs              afero.Fs
	ProcNetDev      string
	SysClassNet     string
	Ifupdown2Marker string
}

// NewProbe returns a Probe reading the standard kernel files from fs.
// A nil fs means the OS filesystem.
func NewProbe(fs afero.Fs) *Probe {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Probe{
		Fs:              fs,
		ProcNetDev:      DefaultProcNetDev,
		SysClassNet:     DefaultSysClassNet,
		Ifupdown2Marker: DefaultIfupdown2Marker,
	}
}

// Snapshot reads existence and link state. Missing kernel files yield
// empty sets.
func (p *Probe) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}
	return Snapshot{
		Existing: p.physicalInterfaces(),
		Active:   p.activeInterfaces(),
	}
}

// Ifupdown2 reports whether the ifupdown2 implementation is installed.
func (p *Probe) Ifupdown2() bool {
	if p == nil {
		return false
	}
	ok, err := afero.Exists(p.Fs, p.Ifupdown2Marker)
	return err == nil && ok
}

func (p *Probe) physicalInterfaces() map[string]bool {
	found := make(map[string]bool)
	f, err := p.Fs.Open(p.ProcNetDev)
	if err != nil {
		return found
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name, _, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if IsPhysical(name) {
			found[name] = true
		}
	}
	return found
}

func (p *Probe) activeInterfaces() map[string]bool {
	active := make(map[string]bool)
	entries, err := afero.ReadDir(p.Fs, p.SysClassNet)
	if err != nil {
		return active
	}
	for _, entry := range entries {
		raw, err := afero.ReadFile(p.Fs, path.Join(p.SysClassNet, entry.Name(), "flags"))
		if err != nil {
			continue
		}
		flags, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 0, 32)
		if err != nil {
			continue
		}
		if flags&iffUp != 0 {
			active[entry.Name()] = true
		}
	}
	return active
}
