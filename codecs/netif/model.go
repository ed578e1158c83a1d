// Package netif reads, validates and regenerates Debian-style
// /etc/network/interfaces files, including Open vSwitch, bonding, VLAN and
// VXLAN stanzas.
//
// Parsing keeps unmanaged top-level directives as passthrough lines and
// unknown per-family options verbatim, so regenerating a parsed file is
// byte-stable.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package netif

import (
	"regexp"
	"sort"
)

// Error codes of the network interfaces codec
const (
	ErrCodeParse        = "NETIF_PARSE_ERROR"
	ErrCodeValidation   = "NETIF_VALIDATION_ERROR"
	ErrCodeInvalidValue = "NETIF_INVALID_VALUE"
	ErrCodeIO           = "NETIF_IO_ERROR"
)

// Type classifies an interface.
type Type string

const (
	TypeEthernet   Type = "eth"
	TypeBridge     Type = "bridge"
	TypeBond       Type = "bond"
	TypeVLAN       Type = "vlan"
	TypeVXLAN      Type = "vxlan"
	TypeLoopback   Type = "loopback"
	TypeAlias      Type = "alias"
	TypeOVSBridge  Type = "OVSBridge"
	TypeOVSPort    Type = "OVSPort"
	TypeOVSIntPort Type = "OVSIntPort"
	TypeOVSBond    Type = "OVSBond"
	TypeDummy      Type = "dummy"
	TypeUnknown    Type = "unknown"
)

// IsOVSMember reports whether t is attached to an OVS bridge.
func (t Type) IsOVSMember() bool {
	return t == TypeOVSPort || t == TypeOVSIntPort || t == TypeOVSBond
}

// Address families
const (
	FamilyInet  = "inet"
	FamilyInet6 = "inet6"
)

// Family holds the per-family part of an interface.
type Family struct {
	Method    string
	Address   string
	Netmask   string // prefix length
	Broadcast string
	Gateway   string
	CIDR      string
	Comments  string   // one line per comment, newline terminated, without '#'
	Options   []string // unrecognized "key value" lines, verbatim
}

// Interface is one named interface with all of its stanzas merged.
type Interface struct {
	Name      string
	Type      Type
	Exists    bool
	Active    bool
	Autostart bool
	Priority  int
	Families  []string

	Inet  Family
	Inet6 Family

	BridgePorts     string
	BridgeSTP       string
	BridgeFD        string
	BridgeVLANAware bool
	BridgeVIDs      string

	Slaves             string
	BondMode           string
	BondMiimon         string
	BondXmitHashPolicy string
	BondPrimary        string

	OVSType    string
	OVSOptions string
	OVSBridge  string
	OVSPorts   string
	OVSBonds   string
	OVSTag     string

	MTU           string
	LinkType      string
	VLANRawDevice string
	VLANID        string
	VLANProtocol  string

	VXLANID            string
	VXLANSvcNodeIP     string
	VXLANPhysDev       string
	VXLANLocalTunnelIP string
	VXLANRemoteIPs     []string

	UplinkID string

	// PortOptions holds the options only valid on bridge members
	// (bridge-access, bridge-learning, ...).
	PortOptions map[string]string
}

// PassthroughLine is a top-level line that is not interpreted.
type PassthroughLine struct {
	Priority int
	Line     string
}

// Config is a parsed interfaces file.
type Config struct {
	Interfaces  map[string]*Interface
	Passthrough []PassthroughLine
}

// NewConfig returns an empty configuration.
func NewConfig() *Config {
	return &Config{Interfaces: make(map[string]*Interface)}
}

// Family returns the stanza of the named family.
func (i *Interface) Family(name string) *Family {
	if name == FamilyInet6 {
		return &i.Inet6
	}
	return &i.Inet
}

// HasFamily reports whether the interface has a stanza for family.
func (i *Interface) HasFamily(family string) bool {
	for _, f := range i.Families {
		if f == family {
			return true
		}
	}
	return false
}

func (f Family) clone() Family {
	f.Options = append([]string(nil), f.Options...)
	return f
}

// Clone deep copies the interface.
func (i *Interface) Clone() *Interface {
	if i == nil {
		return nil
	}
	cp := *i
	cp.Families = append([]string(nil), i.Families...)
	cp.Inet = i.Inet.clone()
	cp.Inet6 = i.Inet6.clone()
	cp.VXLANRemoteIPs = append([]string(nil), i.VXLANRemoteIPs...)
	if i.PortOptions != nil {
		cp.PortOptions = make(map[string]string, len(i.PortOptions))
		for k, v := range i.PortOptions {
			cp.PortOptions[k] = v
		}
	}
	return &cp
}

// Clone deep copies the configuration. It satisfies hestia.Cloner.
func (c *Config) Clone() any {
	return c.Copy()
}

// Copy is the typed form of Clone.
func (c *Config) Copy() *Config {
	if c == nil {
		return nil
	}
	cp := &Config{
		Interfaces:  make(map[string]*Interface, len(c.Interfaces)),
		Passthrough: append([]PassthroughLine(nil), c.Passthrough...),
	}
	for name, iface := range c.Interfaces {
		cp.Interfaces[name] = iface.Clone()
	}
	return cp
}

// Names returns the interface names in lexical order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Interfaces))
	for name := range c.Interfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ensure returns the named interface, creating an empty record.
func (c *Config) ensure(name string) *Interface {
	iface, ok := c.Interfaces[name]
	if !ok {
		iface = &Interface{Name: name}
		c.Interfaces[name] = iface
	}
	return iface
}

// physicalNIC matches the kernel names of physical network cards.
var physicalNIC = regexp.MustCompile(`^(?:eth\d+|en[^:.]+|ib[^:.]+)$`)

// IsPhysical reports whether name has the shape of a physical NIC.
func IsPhysical(name string) bool {
	return physicalNIC.MatchString(name)
}

// bondModes maps the legacy numeric bonding modes to their names.
var bondModes = []string{
	"balance-rr",
	"active-backup",
	"balance-xor",
	"broadcast",
	"802.3ad",
	"balance-tlb",
	"balance-alb",
}

// ovsBondModes are the bond modes accepted on OVSBond interfaces.
var ovsBondModes = map[string]bool{
	"active-backup":    true,
	"balance-slb":      true,
	"lacp-balance-slb": true,
	"lacp-balance-tcp": true,
}

// bridgePortOnly lists options only valid on bridge members.
var bridgePortOnly = []string{
	"bridge-access",
	"bridge-arp-nd-suppress",
	"bridge-learning",
	"bridge-multicast-flood",
	"bridge-unicast-flood",
}

// scalarField binds an option key to a string field of Interface.
type scalarField struct {
	key string
	ptr func(*Interface) *string
}

// scalarFields are the single-valued options stored on Interface, sorted by
// key. The serializer emits the ones its type branch did not handle in this
// order.
var scalarFields = []scalarField{
	{"bond-primary", func(i *Interface) *string { return &i.BondPrimary }},
	{"bond_miimon", func(i *Interface) *string { return &i.BondMiimon }},
	{"bond_mode", func(i *Interface) *string { return &i.BondMode }},
	{"bond_xmit_hash_policy", func(i *Interface) *string { return &i.BondXmitHashPolicy }},
	{"bridge_fd", func(i *Interface) *string { return &i.BridgeFD }},
	{"bridge_ports", func(i *Interface) *string { return &i.BridgePorts }},
	{"bridge_stp", func(i *Interface) *string { return &i.BridgeSTP }},
	{"bridge_vids", func(i *Interface) *string { return &i.BridgeVIDs }},
	{"link-type", func(i *Interface) *string { return &i.LinkType }},
	{"mtu", func(i *Interface) *string { return &i.MTU }},
	{"ovs_bonds", func(i *Interface) *string { return &i.OVSBonds }},
	{"ovs_bridge", func(i *Interface) *string { return &i.OVSBridge }},
	{"ovs_options", func(i *Interface) *string { return &i.OVSOptions }},
	{"ovs_ports", func(i *Interface) *string { return &i.OVSPorts }},
	{"ovs_type", func(i *Interface) *string { return &i.OVSType }},
	{"slaves", func(i *Interface) *string { return &i.Slaves }},
	{"uplink-id", func(i *Interface) *string { return &i.UplinkID }},
	{"vlan-id", func(i *Interface) *string { return &i.VLANID }},
	{"vlan-protocol", func(i *Interface) *string { return &i.VLANProtocol }},
	{"vlan-raw-device", func(i *Interface) *string { return &i.VLANRawDevice }},
	{"vxlan-id", func(i *Interface) *string { return &i.VXLANID }},
	{"vxlan-local-tunnelip", func(i *Interface) *string { return &i.VXLANLocalTunnelIP }},
	{"vxlan-physdev", func(i *Interface) *string { return &i.VXLANPhysDev }},
	{"vxlan-svcnodeip", func(i *Interface) *string { return &i.VXLANSvcNodeIP }},
}

var scalarByKey = func() map[string]scalarField {
	m := make(map[string]scalarField, len(scalarFields))
	for _, f := range scalarFields {
		m[f.key] = f
	}
	return m
}()
