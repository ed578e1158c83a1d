// writer.go: byte-stable serializer for interfaces files
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netif

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
)

// Header opens every generated file.
const Header = `# network interface settings; autogenerated
# Please do NOT modify this file directly, unless you know what
# you're doing.
#
# If you want to manage parts of the network configuration manually,
# please utilize the 'source' or 'source-directory' directives to do
# so.
# hestia will preserve these directives, but will NOT read its network
# configuration from sourced files, so do not attempt to move any of
# the managed interfaces into external files!

`

// WriteOptions selects the activation syntax of the target system.
type WriteOptions struct {
	// Ifupdown2 emits "auto" for OVS bridges and members instead of the
	// legacy allow-ovs and allow-<bridge> lines.
	Ifupdown2 bool
}

// defaultPriority orders interfaces that were never seen in a file.
const defaultPriority = 50000

var typeBase = map[Type]int{
	TypeLoopback:   100000,
	TypeDummy:      100000,
	TypeEthernet:   200000,
	TypeOVSPort:    200000,
	TypeOVSIntPort: 300000,
	TypeOVSBond:    400000,
	TypeBond:       400000,
	TypeBridge:     500000,
	TypeOVSBridge:  500000,
	TypeVLAN:       600000,
	TypeVXLAN:      600000,
}

// Write validates a copy of cfg and serializes it to w. It returns the
// validated copy and the non-fatal warnings. Nothing is written when
// validation fails.
func Write(w io.Writer, cfg *Config, opts WriteOptions) (*Config, []string, error) {
	if cfg == nil {
		return nil, nil, errors.New(ErrCodeInvalidValue, "no network configuration to write")
	}
	out := cfg.Copy()
	warnings, err := Validate(out)
	if err != nil {
		return nil, nil, err
	}

	var b strings.Builder
	b.WriteString(Header)

	pending := append([]PassthroughLine(nil), out.Passthrough...)
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Priority < pending[j].Priority })

	for _, name := range sortedForOutput(out) {
		d := out.Interfaces[name]

		if len(pending) > 0 && pending[0].Priority < d.Priority {
			for len(pending) > 0 && pending[0].Priority < d.Priority {
				b.WriteString(pending[0].Line + "\n")
				pending = pending[1:]
			}
			b.WriteString("\n")
		}

		if d.Autostart {
			if d.Type == TypeOVSBridge && !opts.Ifupdown2 {
				b.WriteString("allow-ovs " + name + "\n")
			} else {
				b.WriteString("auto " + name + "\n")
			}
		}
		b.WriteString(interfaceBlock(d, opts))
	}
	for _, opt := range pending {
		b.WriteString(opt.Line + "\n")
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return nil, nil, errors.Wrap(err, ErrCodeIO, "failed to write interfaces file")
	}
	return out, warnings, nil
}

// sortedForOutput orders interfaces by type class, nesting depth and file
// position. An interface whose root is untyped orders by position alone.
func sortedForOutput(cfg *Config) []string {
	names := cfg.Names()
	sort.SliceStable(names, func(i, j int) bool {
		a, b := cfg.Interfaces[names[i]], cfg.Interfaces[names[j]]
		pa, oka := typePriority(cfg, a.Name)
		pb, okb := typePriority(cfg, b.Name)
		if !oka || !okb {
			pa, pb = 0, 0
		}
		pa += priorityOrDefault(a)
		pb += priorityOrDefault(b)
		if pa != pb {
			return pa < pb
		}
		return a.Name < b.Name
	})
	return names
}

func typePriority(cfg *Config, name string) (int, bool) {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '.' || r == ':' })
	if len(parts) == 0 {
		return 0, false
	}
	root, ok := cfg.Interfaces[parts[0]]
	if !ok || root.Type == "" || root.Type == TypeUnknown {
		return 0, false
	}
	return typeBase[root.Type] + len(parts) - 1, true
}

func priorityOrDefault(d *Interface) int {
	if d.Priority == 0 {
		return defaultPriority
	}
	return d.Priority
}

// interfaceBlock renders all family stanzas of one interface. Type
// specific options go into the first stanza only.
func interfaceBlock(d *Interface, opts WriteOptions) string {
	var b strings.Builder
	first := true

	if d.Type.IsOVSMember() && d.OVSBridge != "" {
		if opts.Ifupdown2 {
			b.WriteString("auto " + d.Name + "\n")
		} else {
			b.WriteString("allow-" + d.OVSBridge + " " + d.Name + "\n")
		}
	}

	for _, family := range d.Families {
		f := d.Family(family)
		if f.Method == "" {
			continue
		}
		fmt.Fprintf(&b, "iface %s %s %s\n", d.Name, family, f.Method)

		if addr := formatAddress(f); addr != "" {
			b.WriteString("\taddress " + addr + "\n")
		}
		if mask := rawNetmask(f); mask != "" {
			b.WriteString("\tnetmask " + mask + "\n")
		}
		if f.Broadcast != "" {
			b.WriteString("\tbroadcast " + f.Broadcast + "\n")
		}
		if f.Gateway != "" {
			b.WriteString("\tgateway " + f.Gateway + "\n")
		}

		if first {
			b.WriteString(typeOptions(d))
			first = false
		}

		for _, opt := range f.Options {
			b.WriteString("\t" + opt + "\n")
		}
		if f.Comments != "" {
			for _, line := range strings.Split(strings.TrimSuffix(f.Comments, "\n"), "\n") {
				b.WriteString("#" + line + "\n")
			}
		}
		b.WriteString("\n")
	}

	if first {
		return ""
	}
	return b.String()
}

// rawNetmask returns a netmask that cannot be folded into the address.
func rawNetmask(f *Family) string {
	if f.Address == "" || f.Netmask == "" || strings.Contains(f.Address, "/") {
		return ""
	}
	if _, ok := netmaskBits(f.Netmask); ok {
		return ""
	}
	return f.Netmask
}

func formatAddress(f *Family) string {
	addr := f.Address
	if addr == "" {
		return f.CIDR
	}
	if strings.Contains(addr, "/") || f.Netmask == "" {
		return addr
	}
	if bits, ok := netmaskBits(f.Netmask); ok {
		return addr + "/" + strconv.Itoa(bits)
	}
	return addr
}

// typeOptions renders the type specific options in their fixed order,
// followed by the remaining scalar options sorted by key.
func typeOptions(src *Interface) string {
	d := *src
	var b strings.Builder
	line := func(key, value string) { b.WriteString("\t" + key + " " + value + "\n") }
	done := make(map[string]bool)
	markDone := func(keys ...string) {
		for _, k := range keys {
			done[k] = true
		}
	}

	switch d.Type {
	case TypeBridge:
		markDone("bridge_ports", "bridge_stp", "bridge_fd", "bridge_vids", "mtu")
		line("bridge-ports", orNone(d.BridgePorts))
		line("bridge-stp", orDefault(d.BridgeSTP, "off"))
		if fdAccepted(&d) {
			line("bridge-fd", orDefault(d.BridgeFD, "0"))
		}
		if d.BridgeVLANAware {
			line("bridge-vlan-aware", "yes")
			line("bridge-vids", orDefault(d.BridgeVIDs, "2-4094"))
		}
		if d.MTU != "" {
			line("mtu", d.MTU)
		}

	case TypeBond:
		markDone("slaves", "bond_miimon", "bond_mode", "bond_xmit_hash_policy", "bond-primary", "mtu")
		mode := orDefault(d.BondMode, "balance-rr")
		line("bond-slaves", orNone(d.Slaves))
		line("bond-miimon", orDefault(d.BondMiimon, "100"))
		line("bond-mode", mode)
		if d.BondXmitHashPolicy != "" && (mode == "balance-xor" || mode == "802.3ad") {
			line("bond-xmit-hash-policy", d.BondXmitHashPolicy)
		}
		if d.BondPrimary != "" && mode == "active-backup" {
			line("bond-primary", d.BondPrimary)
		}
		if d.MTU != "" {
			line("mtu", d.MTU)
		}

	case TypeVXLAN:
		markDone("vxlan-id", "vxlan-svcnodeip", "vxlan-physdev", "vxlan-local-tunnelip", "mtu")
		line("vxlan-id", d.VXLANID)
		if d.VXLANSvcNodeIP != "" {
			line("vxlan-svcnodeip", d.VXLANSvcNodeIP)
		}
		if d.VXLANPhysDev != "" {
			line("vxlan-physdev", d.VXLANPhysDev)
		}
		if d.VXLANLocalTunnelIP != "" {
			line("vxlan-local-tunnelip", d.VXLANLocalTunnelIP)
		}
		for _, ip := range d.VXLANRemoteIPs {
			line("vxlan-remoteip", ip)
		}
		if d.MTU != "" {
			line("mtu", d.MTU)
		}

	case TypeOVSBridge:
		markDone("ovs_type", "ovs_ports", "mtu")
		line("ovs_type", string(TypeOVSBridge))
		if d.OVSPorts != "" {
			line("ovs_ports", d.OVSPorts)
		}
		if d.MTU != "" {
			line("ovs_mtu", d.MTU)
		}

	case TypeOVSPort, TypeOVSIntPort, TypeOVSBond:
		markDone("ovs_type", "ovs_bridge", "ovs_bonds", "bond_mode", "mtu")
		line("ovs_type", string(d.Type))
		setOVSOption(&d, "tag", d.OVSTag)
		if d.Type == TypeOVSBond {
			mode := orDefault(d.BondMode, "active-backup")
			if strings.HasPrefix(mode, "lacp-") {
				setOVSOption(&d, "lacp", "active")
				mode = strings.TrimPrefix(mode, "lacp-")
			} else {
				setOVSOption(&d, "lacp", "")
			}
			setOVSOption(&d, "bond_mode", mode)
			if d.OVSBonds != "" {
				line("ovs_bonds", d.OVSBonds)
			}
		}
		if d.OVSBridge != "" {
			line("ovs_bridge", d.OVSBridge)
		}
		if d.MTU != "" {
			line("ovs_mtu", d.MTU)
		}
	}

	type kv struct{ key, value string }
	var tail []kv
	for _, f := range scalarFields {
		if v := *f.ptr(&d); v != "" && !done[f.key] {
			tail = append(tail, kv{f.key, v})
		}
	}
	for k, v := range d.PortOptions {
		if v != "" {
			tail = append(tail, kv{k, v})
		}
	}
	if d.Type != TypeVXLAN {
		for _, ip := range d.VXLANRemoteIPs {
			tail = append(tail, kv{"vxlan-remoteip", ip})
		}
	}
	sort.SliceStable(tail, func(i, j int) bool { return tail[i].key < tail[j].key })
	for _, e := range tail {
		line(e.key, e.value)
	}
	return b.String()
}

func orNone(s string) string {
	return orDefault(s, "none")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
