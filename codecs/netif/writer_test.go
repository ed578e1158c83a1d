// writer_test.go: serializer output, ordering and round trips
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netif

import (
	"bytes"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, cfg *Config, opts WriteOptions) string {
	t.Helper()
	var buf bytes.Buffer
	_, _, err := Write(&buf, cfg, opts)
	require.NoError(t, err, spew.Sdump(cfg))
	return buf.String()
}

// canonical is already in serializer form: it must come back unchanged.
const canonical = `auto lo
iface lo inet loopback

source /etc/network/interfaces.d/*

iface eth0 inet manual
	mtu 9000
	post-up ethtool -K eth0 gro off
# uplink nic

auto eth1
iface eth1 inet manual

auto bond0
iface bond0 inet manual
	bond-slaves eth1
	bond-miimon 100
	bond-mode 802.3ad
	bond-xmit-hash-policy layer3+4

auto vmbr0
iface vmbr0 inet static
	address 192.168.1.2/24
	gateway 192.168.1.1
	bridge-ports eth0
	bridge-stp off
	bridge-fd 0
	bridge-vlan-aware yes
	bridge-vids 2-4094
	mtu 9000

iface vmbr0 inet6 static
	address fd00::2/64
	gateway fd00::1

iface vxlan1 inet manual
	vxlan-id 100
	vxlan-remoteip 192.0.2.1
	vxlan-remoteip 192.0.2.2

source-directory /etc/network/more.d
`

func TestWriteLoopback(t *testing.T) {
	cfg := parse(t, "auto lo\niface lo inet loopback\n", Snapshot{})
	assert.Equal(t, Header+"auto lo\niface lo inet loopback\n\n", render(t, cfg, WriteOptions{}))
}

func TestWriteCanonicalIsStable(t *testing.T) {
	cfg := parse(t, Header+canonical, Snapshot{})
	out := render(t, cfg, WriteOptions{})
	assert.Equal(t, Header+canonical, out)
}

func TestWriteIdempotent(t *testing.T) {
	messy := `# hand written
auto vmbr0
iface vmbr0 inet static
	address 10.0.0.2
	netmask 255.255.255.0
	bridge_ports eth1 eth0
	bridge_stp no
iface eth0 inet manual
iface eth1 inet manual
auto lo
iface lo inet loopback
source /etc/network/interfaces.d/*
iface bond0 inet manual
	slaves eth2
	bond_mode 1
	bond-primary eth2
iface eth2 inet manual
`
	first := render(t, parse(t, messy, Snapshot{}), WriteOptions{})
	second := render(t, parse(t, first, Snapshot{}), WriteOptions{})
	assert.Equal(t, first, second)
	assert.Contains(t, first, "\taddress 10.0.0.2/24\n")
	assert.Contains(t, first, "\tbridge-ports eth0 eth1\n")
	assert.Contains(t, first, "\tbond-mode active-backup\n\tbond-primary eth2\n")
}

func TestWriteRoundTripModel(t *testing.T) {
	before := parse(t, Header+canonical, Snapshot{})
	after := parse(t, render(t, before, WriteOptions{}), Snapshot{})

	require.Equal(t, before.Names(), after.Names())
	for _, name := range before.Names() {
		b, a := before.Interfaces[name], after.Interfaces[name]
		assert.Equal(t, b.Type, a.Type, name)
		assert.Equal(t, b.Families, a.Families, name)
		assert.Equal(t, b.Inet, a.Inet, name)
		assert.Equal(t, b.Inet6, a.Inet6, name)
		assert.Equal(t, b.Autostart, a.Autostart, name)
	}
	assert.Equal(t, before.Passthrough, after.Passthrough)
}

func TestWriteOrder(t *testing.T) {
	text := `iface vmbr0 inet manual
	bridge-ports bond0
iface vlan5 inet manual
	vlan-raw-device eth1
iface bond0 inet manual
	bond-slaves eth0
iface eth0 inet manual
iface eth1 inet manual
iface lo inet loopback
`
	out := render(t, parse(t, text, Snapshot{}), WriteOptions{})

	order := []string{"lo", "eth0", "eth1", "bond0", "vmbr0", "vlan5"}
	last := -1
	for _, name := range order {
		pos := strings.Index(out, "iface "+name+" ")
		require.GreaterOrEqual(t, pos, 0, name)
		assert.Greater(t, pos, last, "%s out of order in:\n%s", name, out)
		last = pos
	}
	assert.Contains(t, out, "\tvlan-raw-device eth1\n")
}

func TestWriteBridgeDefaultsAndForwardDelay(t *testing.T) {
	cfg := parse(t, "iface vmbr0 inet manual\n\tbridge-ports none\n", Snapshot{})
	out := render(t, cfg, WriteOptions{})
	assert.Contains(t, out, "iface vmbr0 inet manual\n\tbridge-ports none\n\tbridge-stp off\n\tbridge-fd 0\n\n")

	cfg = parse(t, "iface vmbr0 inet manual\n\tbridge-ports none\n\tbridge-stp on\n\tbridge-fd 40\n", Snapshot{})
	var buf bytes.Buffer
	_, warnings, err := Write(&buf, cfg, WriteOptions{})
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
	assert.NotContains(t, buf.String(), "bridge-fd")
	assert.Contains(t, buf.String(), "\tbridge-stp on\n")
}

func TestWriteBondDropsInapplicableOptions(t *testing.T) {
	text := `iface eth0 inet manual
iface bond0 inet manual
	bond-slaves eth0
	bond-xmit-hash-policy layer2
	bond-primary eth0
`
	out := render(t, parse(t, text, Snapshot{}), WriteOptions{})
	assert.Contains(t, out, "\tbond-slaves eth0\n\tbond-miimon 100\n\tbond-mode balance-rr\n\n")
	assert.NotContains(t, out, "xmit-hash-policy")
	assert.NotContains(t, out, "bond-primary")
}

const ovsConfig = `iface eth0 inet manual
iface eth1 inet manual
auto bond0
iface bond0 inet manual
	ovs_bonds eth0 eth1
	ovs_type OVSBond
	ovs_bridge vmbr0
	ovs_options bond_mode=balance-slb lacp=active
iface mgmt inet static
	address 10.10.0.2/24
	ovs_type OVSIntPort
	ovs_bridge vmbr0
	ovs_options tag=30
auto vmbr0
iface vmbr0 inet manual
	ovs_type OVSBridge
	ovs_ports bond0 mgmt
	ovs_mtu 9000
`

func TestWriteOVSLegacy(t *testing.T) {
	out := render(t, parse(t, ovsConfig, Snapshot{}), WriteOptions{})

	assert.Contains(t, out, "allow-vmbr0 bond0\niface bond0 inet manual\n"+
		"\tovs_type OVSBond\n\tovs_bonds eth0 eth1\n\tovs_bridge vmbr0\n"+
		"\tovs_options lacp=active bond_mode=balance-slb\n\n")
	assert.Contains(t, out, "allow-vmbr0 mgmt\niface mgmt inet static\n\taddress 10.10.0.2/24\n"+
		"\tovs_type OVSIntPort\n\tovs_bridge vmbr0\n\tovs_options tag=30\n\n")
	assert.Contains(t, out, "allow-ovs vmbr0\niface vmbr0 inet manual\n"+
		"\tovs_type OVSBridge\n\tovs_ports bond0 mgmt\n\tovs_mtu 9000\n\n")
	assert.NotContains(t, out, "auto bond0")

	again := render(t, parse(t, out, Snapshot{}), WriteOptions{})
	assert.Equal(t, out, again)

	cfg := parse(t, out, Snapshot{})
	assert.Equal(t, "lacp-balance-slb", iface(t, cfg, "bond0").BondMode)
	assert.Equal(t, "30", iface(t, cfg, "mgmt").OVSTag)
	assert.Empty(t, cfg.Passthrough, "allow-<bridge> lines of listed ports are folded into ovs_ports")
}

func TestWriteOVSIfupdown2(t *testing.T) {
	opts := WriteOptions{Ifupdown2: true}
	out := render(t, parse(t, ovsConfig, Snapshot{}), opts)

	assert.Contains(t, out, "auto bond0\niface bond0 inet manual\n")
	assert.Contains(t, out, "auto mgmt\niface mgmt inet static\n")
	assert.Contains(t, out, "auto vmbr0\niface vmbr0 inet manual\n")
	assert.NotContains(t, out, "allow-")

	again := render(t, parse(t, out, Snapshot{}), opts)
	assert.Equal(t, out, again)
}

func TestWriteKeepsPassthroughPosition(t *testing.T) {
	text := `iface eth0 inet manual
mapping hotplug
iface eth1 inet manual
`
	out := render(t, parse(t, text, Snapshot{}), WriteOptions{})
	assert.Contains(t, out, "iface eth0 inet manual\n\nmapping hotplug\n\niface eth1 inet manual\n")
}

func TestWriteRejectsInvalidConfig(t *testing.T) {
	cfg := parse(t, "iface vmbr0 inet manual\n\tbridge-ports eth4\n", Snapshot{})

	var buf bytes.Buffer
	_, _, err := Write(&buf, cfg, WriteOptions{})
	requireCode(t, err, ErrCodeValidation)
	assert.Zero(t, buf.Len(), "nothing is written when validation fails")

	_, _, err = Write(&buf, nil, WriteOptions{})
	requireCode(t, err, ErrCodeInvalidValue)
}

func TestWriteDoesNotMutateInput(t *testing.T) {
	cfg := parse(t, ovsConfig+"auto eth2\niface eth2 inet manual\niface vmbr1 inet manual\n\tovs_type OVSBridge\n\tovs_ports eth2\n", Snapshot{})

	var buf bytes.Buffer
	written, _, err := Write(&buf, cfg, WriteOptions{})
	require.NoError(t, err)

	assert.Equal(t, TypeEthernet, iface(t, cfg, "eth2").Type)
	assert.True(t, iface(t, cfg, "eth2").Autostart)
	assert.Equal(t, TypeOVSPort, written.Interfaces["eth2"].Type)
	assert.False(t, written.Interfaces["eth2"].Autostart)
}

func TestWriteOVSBalanceTCP(t *testing.T) {
	text := strings.Replace(ovsConfig, "bond_mode=balance-slb lacp=active", "bond_mode=balance-tcp", 1)
	out := render(t, parse(t, text, Snapshot{}), WriteOptions{})

	assert.Contains(t, out, "\tovs_options lacp=active bond_mode=balance-tcp\n")
	again := render(t, parse(t, out, Snapshot{}), WriteOptions{})
	assert.Equal(t, out, again)
}

func TestWriteKeepsUnparseableNetmask(t *testing.T) {
	text := "iface eth0 inet static\n\taddress 10.0.0.5\n\tnetmask 255.0.255.x\n"
	out := render(t, parse(t, text, Snapshot{}), WriteOptions{})

	assert.Contains(t, out, "iface eth0 inet static\n\taddress 10.0.0.5\n\tnetmask 255.0.255.x\n")
	again := render(t, parse(t, out, Snapshot{}), WriteOptions{})
	assert.Equal(t, out, again)

	folded := render(t, parse(t, "iface eth0 inet static\n\taddress 10.0.0.5\n\tnetmask 255.255.0.0\n", Snapshot{}), WriteOptions{})
	assert.Contains(t, folded, "\taddress 10.0.0.5/16\n")
	assert.NotContains(t, folded, "netmask")
}

func TestWriteKeepsStrayVXLANRemotes(t *testing.T) {
	text := "iface peers inet manual\n\tvxlan-remoteip 192.0.2.9\n\tvxlan-remoteip 192.0.2.10\n"
	out := render(t, parse(t, text, Snapshot{}), WriteOptions{})

	assert.Contains(t, out, "iface peers inet manual\n\tvxlan-remoteip 192.0.2.9\n\tvxlan-remoteip 192.0.2.10\n")
	again := render(t, parse(t, out, Snapshot{}), WriteOptions{})
	assert.Equal(t, out, again)
}
