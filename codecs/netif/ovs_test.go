// ovs_test.go
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netif

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOVSOptions(t *testing.T) {
	opts := ParseOVSOptions("  vlan_mode=native-untagged tag=20 bare =x other_config:a=b ")
	assert.Equal(t, []OVSOption{
		{Key: "vlan_mode", Value: "native-untagged"},
		{Key: "tag", Value: "20"},
		{Value: "bare"},
		{Value: "=x"},
		{Key: "other_config:a", Value: "b"},
	}, opts)
	assert.Equal(t, "vlan_mode=native-untagged tag=20 bare =x other_config:a=b", FormatOVSOptions(opts))

	assert.Empty(t, ParseOVSOptions(""))
	assert.Equal(t, "", FormatOVSOptions(nil))
}

func TestExtractOVSOption(t *testing.T) {
	i := &Interface{OVSOptions: "tag=10 vlan_mode=access tag=11"}

	value, ok := extractOVSOption(i, "tag")
	assert.True(t, ok)
	assert.Equal(t, "11", value, "the last occurrence wins")
	assert.Equal(t, "vlan_mode=access", i.OVSOptions)

	value, ok = extractOVSOption(i, "lacp")
	assert.False(t, ok)
	assert.Empty(t, value)
	assert.Equal(t, "vlan_mode=access", i.OVSOptions)
}

func TestSetOVSOption(t *testing.T) {
	tests := []struct {
		name       string
		options    string
		key, value string
		want       string
	}{
		{"append", "vlan_mode=native-untagged", "tag", "20", "vlan_mode=native-untagged tag=20"},
		{"replace in place", "tag=5 vlan_mode=access", "tag", "7", "tag=7 vlan_mode=access"},
		{"collapse duplicates", "tag=5 x=1 tag=6", "tag", "7", "tag=7 x=1"},
		{"remove", "lacp=active bond_mode=balance-tcp", "lacp", "", "bond_mode=balance-tcp"},
		{"remove missing", "a=b", "lacp", "", "a=b"},
		{"empty", "", "tag", "3", "tag=3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := &Interface{OVSOptions: tt.options}
			setOVSOption(i, tt.key, tt.value)
			assert.Equal(t, tt.want, i.OVSOptions)
		})
	}
}

func TestWriteOVSPortKeepsForeignOptions(t *testing.T) {
	text := `auto vmbr0
iface vmbr0 inet manual
	ovs_type OVSBridge
	ovs_ports eth0
iface eth0 inet manual
	ovs_type OVSPort
	ovs_bridge vmbr0
	ovs_options tag=20 vlan_mode=native-untagged
`
	cfg := parse(t, text, Snapshot{})
	assert.Equal(t, "20", iface(t, cfg, "eth0").OVSTag)
	assert.Equal(t, "vlan_mode=native-untagged", iface(t, cfg, "eth0").OVSOptions)

	out := render(t, cfg, WriteOptions{})
	assert.Contains(t, out, "allow-vmbr0 eth0\niface eth0 inet manual\n"+
		"\tovs_type OVSPort\n\tovs_bridge vmbr0\n\tovs_options vlan_mode=native-untagged tag=20\n\n")
}
