// parser.go: /etc/network/interfaces reader
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netif

import (
	"bufio"
	"io"
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
)

var (
	reAutostart = regexp.MustCompile(`^\s*(?:auto|allow-auto|allow-hotplug|allow-ovs)\s+(.*)$`)
	reIface     = regexp.MustCompile(`^\s*iface\s+(\S+)\s+(inet6?)\s+(\S+)\s*$`)
	reTopLevel  = regexp.MustCompile(`^\s*(?:(?:iface|mapping|auto|source|source-directory)\s|allow-)`)
	reOption    = regexp.MustCompile(`^\s*((\S+)\s+(.+))$`)
	reComment   = regexp.MustCompile(`^\s*#(.*?)\s*$`)
	reAllow     = regexp.MustCompile(`^allow-([-a-zA-Z0-9_]+)\s+(.*)$`)
	reWord      = regexp.MustCompile(`\w`)

	reBond  = regexp.MustCompile(`^bond\d+$`)
	reVmbr  = regexp.MustCompile(`^vmbr\d+$`)
	reAlias = regexp.MustCompile(`^(\S+):\d+$`)
	reVLAN  = regexp.MustCompile(`^(\S+)\.(\d+)$`)
	reVlanN = regexp.MustCompile(`^vlan(\d+)$`)
)

// optionAliases maps alternative spellings to the canonical option key.
var optionAliases = map[string]string{
	"bond-slaves":           "slaves",
	"bond_slaves":           "slaves",
	"bond-xmit-hash-policy": "bond_xmit_hash_policy",
	"bond-mode":             "bond_mode",
	"bond-miimon":           "bond_miimon",
	"bridge-vlan-aware":     "bridge_vlan_aware",
	"bridge-fd":             "bridge_fd",
	"bridge-stp":            "bridge_stp",
	"bridge-ports":          "bridge_ports",
	"bridge-vids":           "bridge_vids",
	"ovs_mtu":               "mtu",
}

// parseState carries what the derivation step needs beyond the model.
type parseState struct {
	cfg         *Config
	bridgePorts map[string]bool // interfaces that carried a bridge_ports line
	priority    int
}

// Parse reads an interfaces file and merges the live state from snap.
// Physical NICs present in snap appear in the result even when the file
// does not mention them.
func Parse(r io.Reader, snap Snapshot) (*Config, error) {
	st := &parseState{
		cfg:         NewConfig(),
		bridgePorts: make(map[string]bool),
		priority:    2,
	}

	for name := range snap.Existing {
		st.cfg.ensure(name).Exists = true
	}

	if r != nil {
		if err := st.read(r); err != nil {
			return nil, err
		}
	}

	for name := range snap.Active {
		if iface, ok := st.cfg.Interfaces[name]; ok {
			iface.Active = true
		}
	}

	lo, ok := st.cfg.Interfaces["lo"]
	if !ok {
		lo = st.cfg.ensure("lo")
		lo.Priority = 1
		lo.Inet.Method = "loopback"
		lo.Type = TypeLoopback
		lo.Autostart = true
	}

	for _, name := range st.cfg.Names() {
		st.derive(st.cfg.Interfaces[name])
	}
	st.resolveExistence()
	st.pruneAllowLines()

	return st.cfg, nil
}

// read runs the line grammar with one line of look-ahead.
func (st *parseState) read(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pending *string
	next := func() (string, bool) {
		if pending != nil {
			line := *pending
			pending = nil
			return line, true
		}
		if !scanner.Scan() {
			return "", false
		}
		return scanner.Text(), true
	}

	for {
		line, ok := next()
		if !ok {
			break
		}

		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}

		if m := reAutostart.FindStringSubmatch(line); m != nil {
			for _, name := range strings.Fields(m[1]) {
				st.cfg.ensure(name).Autostart = true
			}
			continue
		}

		if m := reIface.FindStringSubmatch(line); m != nil {
			iface := st.cfg.ensure(m[1])
			family := m[2]
			fam := iface.Family(family)
			fam.Method = m[3]
			if !iface.HasFamily(family) {
				iface.Families = append(iface.Families, family)
			}
			if iface.Priority == 0 {
				iface.Priority = st.priority
				st.priority++
			}

			for {
				opt, ok := next()
				if !ok {
					break
				}
				if c := reComment.FindStringSubmatch(opt); c != nil {
					fam.Comments += c[1] + "\n"
					continue
				}
				if reTopLevel.MatchString(opt) {
					pending = &opt
					break
				}
				om := reOption.FindStringSubmatch(opt)
				if om == nil {
					pending = &opt
					break
				}
				if err := st.option(iface, fam, om[1], om[2], strings.TrimSpace(om[3])); err != nil {
					return err
				}
			}
			continue
		}

		if reWord.MatchString(line) {
			st.cfg.Passthrough = append(st.cfg.Passthrough, PassthroughLine{
				Priority: st.priority,
				Line:     strings.TrimSpace(line),
			})
			st.priority++
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, ErrCodeParse, "failed to read interfaces file")
	}
	return nil
}

// option applies one "key value" line of a family block.
func (st *parseState) option(iface *Interface, fam *Family, raw, key, value string) error {
	if canon, ok := optionAliases[key]; ok {
		key = canon
	}

	switch key {
	case "address":
		fam.Address = value
	case "netmask":
		fam.Netmask = value
	case "broadcast":
		fam.Broadcast = value
	case "gateway":
		fam.Gateway = value
	case "slaves":
		iface.Slaves = mergeMembers(iface.Slaves, value)
	case "bridge_ports":
		iface.BridgePorts = mergeMembers(iface.BridgePorts, value)
		st.bridgePorts[iface.Name] = true
	case "bridge_stp":
		switch strings.ToLower(value) {
		case "on", "yes":
			iface.BridgeSTP = "on"
		default:
			iface.BridgeSTP = "off"
		}
	case "bridge_vlan_aware":
		iface.BridgeVLANAware = true
	case "bond_mode":
		mode, err := normalizeBondMode(value)
		if err != nil {
			return err
		}
		iface.BondMode = mode
	case "vxlan-remoteip":
		iface.VXLANRemoteIPs = append(iface.VXLANRemoteIPs, value)
	default:
		if f, ok := scalarByKey[key]; ok {
			*f.ptr(iface) = value
			return nil
		}
		for _, k := range bridgePortOnly {
			if k == key {
				if iface.PortOptions == nil {
					iface.PortOptions = make(map[string]string)
				}
				iface.PortOptions[key] = value
				return nil
			}
		}
		fam.Options = append(fam.Options, raw)
	}
	return nil
}

// mergeMembers adds the member names in value to the space separated set
// in current, sorted and without "none".
func mergeMembers(current, value string) string {
	set := make(map[string]bool)
	for _, m := range strings.Fields(current) {
		set[m] = true
	}
	for _, m := range strings.Fields(value) {
		if m != "none" {
			set[m] = true
		}
	}
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Strings(members)
	return strings.Join(members, " ")
}

func normalizeBondMode(value string) (string, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return value, nil
	}
	if n < 0 || n >= len(bondModes) {
		return "", errors.New(ErrCodeInvalidValue, "unknown numeric bond mode").
			WithContext("bond_mode", value)
	}
	return bondModes[n], nil
}

// derive infers the type of one interface and fills family defaults.
func (st *parseState) derive(d *Interface) {
	name := d.Name

	switch {
	case reBond.MatchString(name):
		switch d.OVSType {
		case "":
			d.Type = TypeBond
			bondDefaults(d)
		case string(TypeOVSBond):
			d.Type = TypeOVSBond
			extractOVSBond(d)
		default:
			d.Type = TypeUnknown
		}

	case reVmbr.MatchString(name):
		switch d.OVSType {
		case "":
			d.Type = TypeBridge
			bridgeDefaults(d)
		case string(TypeOVSBridge):
			d.Type = TypeOVSBridge
		default:
			d.Type = TypeUnknown
		}

	case reAlias.MatchString(name):
		d.Type = TypeAlias

	case reVLAN.MatchString(name):
		d.Type = TypeVLAN

	case IsPhysical(name):
		switch d.OVSType {
		case "":
			d.Type = TypeEthernet
		case string(TypeOVSPort):
			d.Type = TypeOVSPort
			d.OVSTag, _ = extractOVSOption(d, "tag")
		case string(TypeOVSIntPort):
			d.Type = TypeOVSIntPort
			d.OVSTag, _ = extractOVSOption(d, "tag")
		default:
			d.Type = TypeUnknown
		}

	case name == "lo":
		d.Type = TypeLoopback

	case d.VXLANID != "":
		d.Type = TypeVXLAN

	case d.VLANRawDevice != "":
		d.Type = TypeVLAN

	case d.OVSType == string(TypeOVSIntPort):
		d.Type = TypeOVSIntPort
		d.OVSTag, _ = extractOVSOption(d, "tag")

	case d.OVSType == string(TypeOVSBridge):
		d.Type = TypeOVSBridge

	case d.OVSType == "" && d.LinkType == "dummy":
		d.Type = TypeDummy

	case d.OVSType == "" && st.bridgePorts[name]:
		d.Type = TypeBridge
		bridgeDefaults(d)

	default:
		d.Type = TypeUnknown
	}

	if d.Inet.Method == "" {
		d.Inet.Method = "manual"
	}
	if d.Inet6.Method == "" {
		d.Inet6.Method = "manual"
	}
	normalizeCIDR(&d.Inet, false)
	normalizeCIDR(&d.Inet6, true)

	if d.Inet6.Comments != "" {
		d.Inet.Comments += d.Inet6.Comments
		d.Inet6.Comments = ""
	}
	if len(d.Families) == 0 {
		d.Families = []string{FamilyInet}
	}
}

func bridgeDefaults(d *Interface) {
	if d.BridgeSTP == "" {
		d.BridgeSTP = "off"
	}
	if d.BridgeFD == "" {
		d.BridgeFD = "0"
	}
	if d.BridgeVLANAware && d.BridgeVIDs == "" {
		d.BridgeVIDs = "2-4094"
	}
}

func bondDefaults(d *Interface) {
	if d.BondMiimon == "" {
		d.BondMiimon = "100"
	}
	if d.BondMode == "" {
		d.BondMode = "balance-rr"
	}
}

// extractOVSBond moves bond_mode, lacp and tag out of ovs_options. An
// active LACP negotiation is folded into the lacp-* bond modes.
func extractOVSBond(d *Interface) {
	mode, _ := extractOVSOption(d, "bond_mode")
	lacp, _ := extractOVSOption(d, "lacp")
	d.OVSTag, _ = extractOVSOption(d, "tag")

	if mode == "" {
		mode = "active-backup"
	}
	switch {
	case mode == "balance-tcp":
		// balance-tcp only runs over LACP
		mode = "lacp-balance-tcp"
	case mode == "balance-slb" && lacp == "active":
		mode = "lacp-balance-slb"
	}
	d.BondMode = mode
}

// resolveExistence copies the parent's existence onto aliases and VLANs
// once every type is derived. Parents resolve first, so stacked VLANs
// follow the final state of the whole chain.
func (st *parseState) resolveExistence() {
	resolved := make(map[string]bool)

	var resolve func(name string) bool
	resolve = func(name string) bool {
		d := st.cfg.Interfaces[name]
		if resolved[name] {
			return d.Exists
		}
		resolved[name] = true

		parent, keep := existenceParent(d)
		if parent == "" {
			return d.Exists
		}
		if _, ok := st.cfg.Interfaces[parent]; !ok {
			// a missing parent is absent; vlan-raw-device keeps the snapshot
			d.Exists = d.Exists && keep
			return d.Exists
		}
		d.Exists = resolve(parent)
		return d.Exists
	}

	for _, name := range st.cfg.Names() {
		resolve(name)
	}
}

// existenceParent names the interface whose existence d inherits. keep
// reports whether d keeps its own flag when that parent is not configured.
func existenceParent(d *Interface) (parent string, keep bool) {
	switch d.Type {
	case TypeAlias:
		if m := reAlias.FindStringSubmatch(d.Name); m != nil {
			return m[1], false
		}
	case TypeVLAN:
		if m := reVLAN.FindStringSubmatch(d.Name); m != nil {
			return m[1], false
		}
		return d.VLANRawDevice, true
	}
	return "", false
}

// normalizeCIDR fills CIDR and turns the netmask into a prefix length.
func normalizeCIDR(f *Family, v6 bool) {
	if f.Address == "" {
		return
	}
	if addr, prefix, ok := strings.Cut(f.Address, "/"); ok {
		f.Address = addr
		f.Netmask = prefix
		f.CIDR = addr + "/" + prefix
		return
	}

	if f.Netmask != "" {
		if bits, ok := netmaskBits(f.Netmask); ok {
			f.Netmask = strconv.Itoa(bits)
			f.CIDR = f.Address + "/" + f.Netmask
			return
		}
	}

	if v6 || strings.Contains(f.Address, ":") {
		f.CIDR = f.Address + "/128"
	} else {
		f.CIDR = f.Address + "/32"
	}
}

// netmaskBits accepts a prefix length or a dotted IPv4 mask.
func netmaskBits(mask string) (int, bool) {
	if n, err := strconv.Atoi(mask); err == nil {
		return n, n >= 0 && n <= 128
	}
	ip := net.ParseIP(mask).To4()
	if ip == nil {
		return 0, false
	}
	ones, bits := net.IPMask(ip).Size()
	if bits == 0 {
		return 0, false
	}
	return ones, true
}

// pruneAllowLines drops the ports an OVS bridge already lists in ovs_ports
// from its allow-<bridge> passthrough lines.
func (st *parseState) pruneAllowLines() {
	kept := st.cfg.Passthrough[:0]
	for _, opt := range st.cfg.Passthrough {
		m := reAllow.FindStringSubmatch(opt.Line)
		if m == nil {
			kept = append(kept, opt)
			continue
		}
		bridge, ports := m[1], strings.Fields(m[2])

		if br, ok := st.cfg.Interfaces[bridge]; ok {
			owned := make(map[string]bool)
			for _, p := range strings.Fields(br.OVSPorts) {
				owned[p] = true
			}
			rest := ports[:0]
			for _, p := range ports {
				if !owned[p] {
					rest = append(rest, p)
				}
			}
			ports = rest
		}
		if len(ports) == 0 {
			continue
		}
		opt.Line = "allow-" + bridge + " " + strings.Join(ports, " ")
		kept = append(kept, opt)
	}
	st.cfg.Passthrough = kept
}
