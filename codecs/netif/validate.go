// validate.go: consistency rules checked before an interfaces file is written
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netif

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
)

func invalid(iface, format string, args ...any) error {
	return errors.New(ErrCodeValidation, fmt.Sprintf(format, args...)).
		WithContext("interface", iface)
}

// Validate checks cfg and normalizes its OVS membership in place: OVS
// members without a bridge are demoted or dropped, plain NICs listed on an
// OVS bridge become OVS ports. The returned warnings never block a write.
func Validate(cfg *Config) ([]string, error) {
	var warnings []string

	owners, err := claimPorts(cfg)
	if err != nil {
		return nil, err
	}
	cleanupOVS(cfg, owners)

	checks := []func(*Config) error{
		checkOVSBridges,
		checkOVSBonds,
		checkBonds,
		checkVXLANs,
		checkVLANs,
		checkUplinks,
		checkBridges,
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return nil, err
		}
	}

	for _, name := range cfg.Names() {
		d := cfg.Interfaces[name]
		if d.Type == TypeBridge && !fdAccepted(d) {
			warnings = append(warnings, fmt.Sprintf(
				"bridge '%s' - ignoring bridge_fd '%s': STP requires a forward delay of 2 to 30", name, d.BridgeFD))
		}
	}
	return warnings, nil
}

// claimPorts maps every port, slave and bond member to the interface that
// lists it. The first claim in name order wins.
func claimPorts(cfg *Config) (map[string]string, error) {
	owners := make(map[string]string)
	for _, name := range cfg.Names() {
		d := cfg.Interfaces[name]
		for _, list := range []string{d.BridgePorts, d.OVSPorts, d.Slaves, d.OVSBonds} {
			for _, p := range strings.Fields(list) {
				if owner, taken := owners[p]; taken && owner != name {
					return nil, errors.New(ErrCodeValidation,
						fmt.Sprintf("port '%s' is already used on interface '%s'", p, owner)).
						WithContext("interface", name).
						WithContext("port", p)
				}
				owners[p] = name
			}
		}
	}
	return owners, nil
}

// cleanupOVS demotes or drops OVS members whose bridge is gone.
func cleanupOVS(cfg *Config, owners map[string]string) {
	for _, name := range cfg.Names() {
		d := cfg.Interfaces[name]
		if !d.Type.IsOVSMember() {
			continue
		}

		brname := owners[name]
		br, ok := cfg.Interfaces[brname]
		if brname == "" || !ok {
			if IsPhysical(name) {
				cfg.Interfaces[name] = &Interface{
					Name:     name,
					Type:     TypeEthernet,
					Exists:   true,
					Priority: d.Priority,
					Families: []string{FamilyInet},
					Inet:     Family{Method: "manual"},
					Inet6:    Family{Method: "manual"},
				}
			} else {
				delete(cfg.Interfaces, name)
			}
			continue
		}
		if br.Type != TypeOVSBridge {
			delete(cfg.Interfaces, name)
			continue
		}
		d.OVSBridge = brname
	}
}

func checkOVSBridges(cfg *Config) error {
	for _, name := range cfg.Names() {
		d := cfg.Interfaces[name]
		if d.Type != TypeOVSBridge {
			continue
		}
		for _, p := range strings.Fields(d.OVSPorts) {
			n, ok := cfg.Interfaces[p]
			if !ok {
				return invalid(name, "OVS bridge '%s' - unable to find port '%s'", name, p)
			}
			n.Autostart = false
			switch {
			case n.Type == TypeEthernet:
				n.Type = TypeOVSPort
				n.OVSType = string(TypeOVSPort)
				n.OVSBridge = name
			case n.Type.IsOVSMember():
				n.OVSBridge = name
			default:
				return invalid(name, "interface '%s' is not defined as OVS port/bond", p)
			}
			if err := checkMTU(cfg, name, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkOVSBonds(cfg *Config) error {
	for _, name := range cfg.Names() {
		d := cfg.Interfaces[name]
		if d.Type != TypeOVSBond {
			continue
		}
		if d.BondMode != "" && !ovsBondModes[d.BondMode] {
			return invalid(name, "OVS bond '%s' - unsupported bond mode '%s'", name, d.BondMode)
		}
		for _, p := range strings.Fields(d.OVSBonds) {
			n, ok := cfg.Interfaces[p]
			if !ok {
				return invalid(name, "OVS bond '%s' - unable to find slave '%s'", name, p)
			}
			if n.Type != TypeEthernet {
				return invalid(name, "OVS bond '%s' - wrong interface type on slave '%s' ('%s' != 'eth')", name, p, n.Type)
			}
			if err := checkMTU(cfg, name, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkBonds(cfg *Config) error {
	for _, name := range cfg.Names() {
		d := cfg.Interfaces[name]
		if d.Type != TypeBond {
			continue
		}
		slaves := strings.Fields(d.Slaves)
		for _, p := range slaves {
			n, ok := cfg.Interfaces[p]
			if !ok {
				return invalid(name, "bond '%s' - unable to find slave '%s'", name, p)
			}
			if n.Type != TypeEthernet && n.Type != TypeBond {
				return invalid(name, "bond '%s' - wrong interface type on slave '%s' ('%s' != 'eth or bond')", name, p, n.Type)
			}
			n.Autostart = true
			if err := checkMTU(cfg, name, p); err != nil {
				return err
			}
		}
		if d.BondPrimary != "" && !contains(slaves, d.BondPrimary) {
			return invalid(name, "bond '%s' - bond-primary interface '%s' is not a slave", name, d.BondPrimary)
		}
	}
	return nil
}

func checkVXLANs(cfg *Config) error {
	ids := make(map[string]string)
	for _, name := range cfg.Names() {
		d := cfg.Interfaces[name]
		if d.Type != TypeVXLAN {
			continue
		}
		if owner, used := ids[d.VXLANID]; used {
			return invalid(name, "vxlan-id '%s' already used in interface '%s'", d.VXLANID, owner)
		}
		ids[d.VXLANID] = name

		set := 0
		for _, v := range []bool{d.VXLANSvcNodeIP != "", len(d.VXLANRemoteIPs) > 0, d.VXLANLocalTunnelIP != ""} {
			if v {
				set++
			}
		}
		if set > 1 {
			return invalid(name, "vxlan '%s' - vxlan-svcnodeip, vxlan-remoteip and vxlan-local-tunnelip are mutually exclusive", name)
		}
		if (d.VXLANSvcNodeIP != "") != (d.VXLANPhysDev != "") {
			return invalid(name, "vxlan '%s' - vxlan-svcnodeip and vxlan-physdev must be defined together", name)
		}
	}
	return nil
}

// vlanParent returns the parent and VLAN id of a VLAN interface.
func vlanParent(d *Interface) (parent, id string) {
	if m := reVLAN.FindStringSubmatch(d.Name); m != nil {
		return m[1], m[2]
	}
	parent = d.VLANRawDevice
	if m := reVlanN.FindStringSubmatch(d.Name); m != nil {
		id = m[1]
	}
	if d.VLANID != "" {
		id = d.VLANID
	}
	return parent, id
}

func checkVLANs(cfg *Config) error {
	for _, name := range cfg.Names() {
		d := cfg.Interfaces[name]
		if d.Type != TypeVLAN {
			continue
		}
		parent, id := vlanParent(d)
		if id == "" {
			return invalid(name, "vlan '%s' - unable to determine the vlan id", name)
		}
		tag, err := strconv.Atoi(id)
		if err != nil {
			return errors.New(ErrCodeInvalidValue, "vlan id is not a number").
				WithContext("interface", name).
				WithContext("vlan-id", id)
		}
		if tag < 1 || tag > 4094 {
			return invalid(name, "vlan '%s' - vlan id must be between 1 and 4094, got %d", name, tag)
		}

		p, ok := cfg.Interfaces[parent]
		if !ok {
			return invalid(name, "vlan '%s' - unable to find parent '%s'", name, parent)
		}
		switch p.Type {
		case TypeEthernet, TypeBridge, TypeBond, TypeVLAN:
		default:
			return invalid(name, "vlan '%s' - wrong interface type on parent '%s' ('%s' != 'eth|bond|bridge|vlan')", name, parent, p.Type)
		}

		if d.VLANProtocol != "" && d.VLANProtocol != "802.1ad" && d.VLANProtocol != "802.1q" {
			return invalid(name, "vlan '%s' - unknown vlan-protocol '%s'", name, d.VLANProtocol)
		}
		if err := checkMTU(cfg, parent, name); err != nil {
			return err
		}
	}
	return nil
}

func checkUplinks(cfg *Config) error {
	ids := make(map[string]string)
	for _, name := range cfg.Names() {
		d := cfg.Interfaces[name]
		if d.UplinkID == "" {
			continue
		}
		if d.Type != TypeEthernet && d.Type != TypeBond {
			return invalid(name, "uplink-id is only allowed on physical and bond interfaces, not on '%s'", d.Type)
		}
		if owner, used := ids[d.UplinkID]; used {
			return invalid(name, "uplink-id '%s' is already used on interface '%s'", d.UplinkID, owner)
		}
		ids[d.UplinkID] = name
	}
	return nil
}

// checkBridges validates Linux bridge ports and the options that are only
// legal on bridge members.
func checkBridges(cfg *Config) error {
	portOf := make(map[string]string)
	for _, name := range cfg.Names() {
		d := cfg.Interfaces[name]
		if d.Type != TypeBridge {
			continue
		}
		for _, p := range strings.Fields(d.BridgePorts) {
			portOf[p] = name
			n, ok := cfg.Interfaces[p]
			if !ok {
				m := reVLAN.FindStringSubmatch(p)
				if m == nil {
					return invalid(name, "bridge '%s' - unable to find bridge port '%s'", name, p)
				}
				if _, ok := cfg.Interfaces[m[1]]; !ok {
					return invalid(name, "bridge '%s' - unable to find bridge port '%s'", name, p)
				}
			} else if n.Inet.Address != "" || n.Inet6.Address != "" {
				return invalid(name, "bridge '%s' - bridge port '%s' cannot have an ip address", name, p)
			}
			if err := checkMTU(cfg, p, name); err != nil {
				return err
			}
		}
	}

	for _, name := range cfg.Names() {
		d := cfg.Interfaces[name]
		for _, opt := range bridgePortOnly {
			if _, set := d.PortOptions[opt]; !set {
				continue
			}
			br, member := portOf[name]
			if !member {
				return invalid(name, "interface '%s' - option '%s' is only allowed on bridge ports", name, opt)
			}
			if opt == "bridge-access" && !cfg.Interfaces[br].BridgeVLANAware {
				return invalid(name, "interface '%s' - bridge-access requires bridge '%s' to be vlan-aware", name, br)
			}
		}
	}
	return nil
}

// effectiveMTU returns the configured MTU of name. A VLAN port that is not
// declared inherits its parent's MTU.
func effectiveMTU(cfg *Config, name string) (string, *Interface) {
	if d, ok := cfg.Interfaces[name]; ok {
		return d.MTU, d
	}
	if m := reVLAN.FindStringSubmatch(name); m != nil {
		if p, ok := cfg.Interfaces[m[1]]; ok {
			return p.MTU, nil
		}
	}
	return "", nil
}

// checkMTU fails when child's MTU exceeds parent's. An unset parent MTU
// counts as 1500, except on bonds where it follows the child.
func checkMTU(cfg *Config, parent, child string) error {
	cmtu, _ := effectiveMTU(cfg, child)
	if cmtu == "" {
		return nil
	}
	pmtu, p := effectiveMTU(cfg, parent)
	if pmtu == "" && p != nil && p.Type == TypeBond {
		pmtu = cmtu
	}
	if pmtu == "" {
		pmtu = "1500"
	}

	cv, err := strconv.Atoi(cmtu)
	if err != nil {
		return errors.New(ErrCodeInvalidValue, "mtu is not a number").
			WithContext("interface", child).
			WithContext("mtu", cmtu)
	}
	pv, err := strconv.Atoi(pmtu)
	if err != nil {
		return errors.New(ErrCodeInvalidValue, "mtu is not a number").
			WithContext("interface", parent).
			WithContext("mtu", pmtu)
	}
	if pv < cv {
		return invalid(child, "interface '%s' - mtu %d is lower than '%s' - mtu %d", parent, pv, child, cv)
	}
	return nil
}

// fdAccepted reports whether bridge_fd is emitted: with STP on the forward
// delay must lie in 2..30.
func fdAccepted(d *Interface) bool {
	if d.BridgeSTP != "on" {
		return true
	}
	fd, err := strconv.Atoi(d.BridgeFD)
	return err == nil && fd >= 2 && fd <= 30
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
