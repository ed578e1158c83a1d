// validate_test.go: tests for the consistency rules
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netif

import (
	"testing"

	"github.com/agilira/go-errors"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	errorCoder, ok := err.(errors.ErrorCoder)
	require.True(t, ok, "error without code: %v", err)
	assert.Equal(t, code, string(errorCoder.ErrorCode()), err.Error())
}

func validate(t *testing.T, text string) (*Config, []string, error) {
	t.Helper()
	cfg := parse(t, text, Snapshot{})
	warnings, err := Validate(cfg)
	return cfg, warnings, err
}

func TestValidateMTU(t *testing.T) {
	base := `iface eth0 inet manual
	mtu 1500
iface vmbr0 inet manual
	bridge-ports eth0.10
iface eth0.10 inet manual
`
	_, _, err := validate(t, base+"\tmtu 9000\n")
	requireCode(t, err, ErrCodeValidation)
	assert.Contains(t, err.Error(), "mtu 1500 is lower than 'eth0.10' - mtu 9000")

	_, _, err = validate(t, base+"\tmtu 1500\n")
	assert.NoError(t, err)
}

func TestValidateMTUOfUndeclaredVLANPort(t *testing.T) {
	base := `iface eth0 inet manual
	mtu 1500
iface vmbr0 inet manual
	bridge-ports eth0.20
`
	_, _, err := validate(t, base+"\tmtu 9000\n")
	requireCode(t, err, ErrCodeValidation)

	cfg, _, err := validate(t, base+"\tmtu 1400\n")
	require.NoError(t, err)
	assert.NotContains(t, cfg.Interfaces, "eth0.20", "validation must not add the implicit port")
}

func TestValidateMTUFollowsChildOnBond(t *testing.T) {
	text := `iface eth0 inet manual
	mtu 9000
iface bond0 inet manual
	bond-slaves eth0
`
	_, _, err := validate(t, text)
	assert.NoError(t, err)
}

func TestValidateInvalidMTU(t *testing.T) {
	text := `iface eth0 inet manual
iface eth0.5 inet manual
	mtu jumbo
`
	_, _, err := validate(t, text)
	requireCode(t, err, ErrCodeInvalidValue)
}

func TestValidatePortClaims(t *testing.T) {
	text := `iface eth0 inet manual
iface vmbr0 inet manual
	bridge-ports eth0
iface vmbr1 inet manual
	bridge-ports eth0
`
	_, _, err := validate(t, text)
	requireCode(t, err, ErrCodeValidation)
	assert.Contains(t, err.Error(), "port 'eth0' is already used on interface 'vmbr0'")
}

func TestValidateOVSCleanup(t *testing.T) {
	text := `iface eth3 inet manual
	ovs_type OVSPort
	ovs_bridge vmbr9
	mtu 9000
iface int0 inet static
	address 10.0.0.9/24
	ovs_type OVSIntPort
	ovs_bridge vmbr9
iface int1 inet manual
	ovs_type OVSIntPort
iface vmbr2 inet manual
	bridge-ports none
`
	cfg, _, err := validate(t, text)
	require.NoError(t, err)

	eth3 := iface(t, cfg, "eth3")
	assert.Equal(t, TypeEthernet, eth3.Type)
	assert.True(t, eth3.Exists)
	assert.Empty(t, eth3.MTU)
	assert.Equal(t, "manual", eth3.Inet.Method)

	assert.NotContains(t, cfg.Interfaces, "int0")
	assert.NotContains(t, cfg.Interfaces, "int1")
}

func TestValidateOVSMemberOfLinuxBridgeIsDropped(t *testing.T) {
	text := `iface int1 inet manual
	ovs_type OVSIntPort
iface vmbr2 inet manual
	bridge-ports int1
`
	cfg := parse(t, text, Snapshot{})
	owners, err := claimPorts(cfg)
	require.NoError(t, err)
	cleanupOVS(cfg, owners)
	assert.NotContains(t, cfg.Interfaces, "int1")
}

func TestValidateOVSBridgePromotesPorts(t *testing.T) {
	text := `auto eth2
iface eth2 inet manual
iface int0 inet manual
	ovs_type OVSIntPort
iface vmbr1 inet manual
	ovs_type OVSBridge
	ovs_ports eth2 int0
`
	cfg, _, err := validate(t, text)
	require.NoError(t, err, spew.Sdump(cfg))

	eth2 := iface(t, cfg, "eth2")
	assert.Equal(t, TypeOVSPort, eth2.Type)
	assert.Equal(t, "vmbr1", eth2.OVSBridge)
	assert.False(t, eth2.Autostart)
	assert.Equal(t, "vmbr1", iface(t, cfg, "int0").OVSBridge)
}

func TestValidateOVSBridgeRejectsIncompatiblePort(t *testing.T) {
	text := `iface eth0 inet manual
iface vmbr0 inet manual
	bridge-ports eth0
iface vmbr1 inet manual
	ovs_type OVSBridge
	ovs_ports vmbr0
`
	_, _, err := validate(t, text)
	requireCode(t, err, ErrCodeValidation)
	assert.Contains(t, err.Error(), "not defined as OVS port/bond")

	_, _, err = validate(t, "iface vmbr1 inet manual\n\tovs_type OVSBridge\n\tovs_ports eth7\n")
	requireCode(t, err, ErrCodeValidation)
	assert.Contains(t, err.Error(), "unable to find port 'eth7'")
}

func TestValidateOVSBondSlaves(t *testing.T) {
	text := `iface eth0 inet manual
iface vmbr3 inet manual
	bridge-ports none
iface bond1 inet manual
	ovs_type OVSBond
	ovs_bonds eth0 vmbr3
iface vmbr0 inet manual
	ovs_type OVSBridge
	ovs_ports bond1
`
	_, _, err := validate(t, text)
	requireCode(t, err, ErrCodeValidation)
	assert.Contains(t, err.Error(), "wrong interface type on slave 'vmbr3'")
}

func TestValidateBondSlaves(t *testing.T) {
	text := `iface eth0 inet manual
iface eth1 inet manual
iface bond0 inet manual
	bond-slaves eth0 eth1
	bond-mode active-backup
`
	cfg, _, err := validate(t, text+"\tbond-primary eth0\n")
	require.NoError(t, err)
	assert.True(t, iface(t, cfg, "eth0").Autostart, "bond slaves are started with the bond")

	_, _, err = validate(t, text+"\tbond-primary eth2\n")
	requireCode(t, err, ErrCodeValidation)
	assert.Contains(t, err.Error(), "bond-primary")

	_, _, err = validate(t, "iface vmbr5 inet manual\niface bond0 inet manual\n\tbond-slaves vmbr5\n")
	requireCode(t, err, ErrCodeValidation)
	assert.Contains(t, err.Error(), "wrong interface type on slave 'vmbr5'")

	_, _, err = validate(t, "iface bond0 inet manual\n\tbond-slaves eth9\n")
	requireCode(t, err, ErrCodeValidation)
	assert.Contains(t, err.Error(), "unable to find slave 'eth9'")
}

func TestValidateVXLAN(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr string
	}{
		{
			name: "remote peers",
			text: "iface vxlan1 inet manual\n\tvxlan-id 100\n\tvxlan-remoteip 192.0.2.1\n\tvxlan-remoteip 192.0.2.2\n",
		},
		{
			name: "multicast",
			text: "iface eth0 inet manual\niface vxlan1 inet manual\n\tvxlan-id 100\n\tvxlan-svcnodeip 239.0.0.1\n\tvxlan-physdev eth0\n",
		},
		{
			name:    "svcnode with remote",
			text:    "iface vxlan1 inet manual\n\tvxlan-id 100\n\tvxlan-svcnodeip 239.0.0.1\n\tvxlan-physdev eth0\n\tvxlan-remoteip 192.0.2.1\n",
			wantErr: "mutually exclusive",
		},
		{
			name:    "remote with local tunnel ip",
			text:    "iface vxlan1 inet manual\n\tvxlan-id 100\n\tvxlan-local-tunnelip 192.0.2.9\n\tvxlan-remoteip 192.0.2.1\n",
			wantErr: "mutually exclusive",
		},
		{
			name:    "svcnode without physdev",
			text:    "iface vxlan1 inet manual\n\tvxlan-id 100\n\tvxlan-svcnodeip 239.0.0.1\n",
			wantErr: "defined together",
		},
		{
			name:    "duplicate id",
			text:    "iface vxlan1 inet manual\n\tvxlan-id 100\niface vxlan2 inet manual\n\tvxlan-id 100\n",
			wantErr: "vxlan-id '100' already used in interface 'vxlan1'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := validate(t, tt.text)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			requireCode(t, err, ErrCodeValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateVLAN(t *testing.T) {
	_, _, err := validate(t, "iface eth0 inet manual\niface eth0.4094 inet manual\n")
	assert.NoError(t, err)

	_, _, err = validate(t, "iface eth0 inet manual\niface eth0.4095 inet manual\n")
	requireCode(t, err, ErrCodeValidation)

	_, _, err = validate(t, "iface eth0 inet manual\niface vlan7 inet manual\n\tvlan-raw-device eth0\n")
	assert.NoError(t, err)

	_, _, err = validate(t, "iface vxlan1 inet manual\n\tvxlan-id 1\niface vxlan1.5 inet manual\n")
	requireCode(t, err, ErrCodeValidation)
	assert.Contains(t, err.Error(), "wrong interface type on parent")

	_, _, err = validate(t, "iface eth0.5 inet manual\n")
	requireCode(t, err, ErrCodeValidation)
	assert.Contains(t, err.Error(), "unable to find parent 'eth0'")

	_, _, err = validate(t, "iface eth0 inet manual\niface eth0.5 inet manual\n\tvlan-protocol 802.1x\n")
	requireCode(t, err, ErrCodeValidation)
}

func TestValidateUplinkID(t *testing.T) {
	_, _, err := validate(t, "iface eth0 inet manual\n\tuplink-id 1\niface eth1 inet manual\n\tuplink-id 2\n")
	assert.NoError(t, err)

	_, _, err = validate(t, "iface eth0 inet manual\n\tuplink-id 1\niface eth1 inet manual\n\tuplink-id 1\n")
	requireCode(t, err, ErrCodeValidation)

	_, _, err = validate(t, "iface vmbr0 inet manual\n\tbridge-ports none\n\tuplink-id 1\n")
	requireCode(t, err, ErrCodeValidation)
}

func TestValidateBridgePorts(t *testing.T) {
	_, _, err := validate(t, "iface vmbr0 inet manual\n\tbridge-ports eth4\n")
	requireCode(t, err, ErrCodeValidation)
	assert.Contains(t, err.Error(), "unable to find bridge port 'eth4'")

	_, _, err = validate(t, "iface eth0 inet static\n\taddress 10.0.0.1/24\niface vmbr0 inet manual\n\tbridge-ports eth0\n")
	requireCode(t, err, ErrCodeValidation)
	assert.Contains(t, err.Error(), "cannot have an ip address")
}

func TestValidateBridgePortOnlyOptions(t *testing.T) {
	_, _, err := validate(t, "iface eth5 inet manual\n\tbridge-learning off\n")
	requireCode(t, err, ErrCodeValidation)
	assert.Contains(t, err.Error(), "only allowed on bridge ports")

	member := "iface eth0 inet manual\n\tbridge-access 10\niface vmbr0 inet manual\n\tbridge-ports eth0\n"
	_, _, err = validate(t, member)
	requireCode(t, err, ErrCodeValidation)
	assert.Contains(t, err.Error(), "vlan-aware")

	_, _, err = validate(t, member+"\tbridge-vlan-aware yes\n")
	assert.NoError(t, err)
}

func TestValidateForwardDelayWarning(t *testing.T) {
	_, warnings, err := validate(t, "iface vmbr0 inet manual\n\tbridge-ports none\n\tbridge-stp on\n")
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "vmbr0")

	_, warnings, err = validate(t, "iface vmbr0 inet manual\n\tbridge-ports none\n\tbridge-stp on\n\tbridge-fd 15\n")
	require.NoError(t, err)
	assert.Empty(t, warnings)

	_, warnings, err = validate(t, "iface vmbr0 inet manual\n\tbridge-ports none\n")
	require.NoError(t, err)
	assert.Empty(t, warnings, "no warning when STP is off")
}
