// Package hostfiles implements hestia codecs for the small single-purpose
// files of a hypervisor node: hostname, hosts, resolv.conf, timezone, the
// iSCSI initiator name, the active task log and the apt credentials file.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package hostfiles

import (
	"fmt"
	"io"

	"github.com/agilira/go-errors"
	"github.com/agilira/hestia"
)

// Error codes for host file codecs
const (
	ErrCodeParse        = "HOSTFILES_PARSE_ERROR"
	ErrCodeInvalidValue = "HOSTFILES_INVALID_VALUE"
	ErrCodeIO           = "HOSTFILES_IO_ERROR"
)

// Registration identifiers.
const (
	IDHostname      = "hostname"
	IDHosts         = "hosts"
	IDResolv        = "resolvconf"
	IDTimezone      = "timezone"
	IDInitiatorName = "initiatorname"
	IDActiveTasks   = "active"
	IDAptAuth       = "apt-auth"
)

// Paths locates the files. Localtime and Zoneinfo are only used by the
// timezone writer.
type Paths struct {
	Hostname      string
	Hosts         string
	Resolv        string
	Timezone      string
	Localtime     string
	Zoneinfo      string
	InitiatorName string
	ActiveTasks   string
	AptAuth       string
}

// DefaultPaths returns the standard Debian locations.
func DefaultPaths() Paths {
	return Paths{
		Hostname:      "/etc/hostname",
		Hosts:         "/etc/hosts",
		Resolv:        "/etc/resolv.conf",
		Timezone:      "/etc/timezone",
		Localtime:     "/etc/localtime",
		Zoneinfo:      "/usr/share/zoneinfo",
		InitiatorName: "/etc/iscsi/initiatorname.iscsi",
		ActiveTasks:   "/var/log/pve/tasks/active",
		AptAuth:       "/etc/apt/auth.conf",
	}
}

// HostPaths returns DefaultPaths below the root configured on c.
func HostPaths(c *hestia.Cache) Paths {
	p := DefaultPaths()
	for _, field := range []*string{
		&p.Hostname, &p.Hosts, &p.Resolv, &p.Timezone, &p.Localtime,
		&p.Zoneinfo, &p.InitiatorName, &p.ActiveTasks, &p.AptAuth,
	} {
		*field = c.HostPath(*field)
	}
	return p
}

// RegisterAll registers every codec of this package under its identifier.
func RegisterAll(c *hestia.Cache, p Paths) error {
	regs := []struct {
		id    string
		path  string
		codec hestia.Codec
		opts  []hestia.Option
	}{
		{IDHostname, p.Hostname, HostnameCodec(), nil},
		{IDHosts, p.Hosts, HostsCodec(), nil},
		{IDResolv, p.Resolv, ResolvCodec(), []hestia.Option{hestia.AlwaysCallParser()}},
		{IDTimezone, p.Timezone, TimezoneCodec(p.Zoneinfo, p.Localtime), nil},
		{IDInitiatorName, p.InitiatorName, InitiatorNameCodec(), nil},
		{IDActiveTasks, p.ActiveTasks, ActiveTasksCodec(), []hestia.Option{hestia.AlwaysCallParser()}},
		{IDAptAuth, p.AptAuth, AptAuthCodec(), []hestia.Option{hestia.AlwaysCallParser(), hestia.Perm(0o600)}},
	}
	for _, r := range regs {
		if err := c.Register(r.id, r.path, r.codec, r.opts...); err != nil {
			return err
		}
	}
	return nil
}

// expect asserts the value handed to a writer.
func expect[T any](path string, data any) (T, error) {
	v, ok := data.(T)
	if !ok {
		var zero T
		return zero, errors.New(ErrCodeInvalidValue, fmt.Sprintf("expected %T, got %T", zero, data)).
			WithContext("path", path)
	}
	return v, nil
}

func writeString(path string, w io.Writer, s string) error {
	if _, err := io.WriteString(w, s); err != nil {
		return errors.Wrap(err, ErrCodeIO, "write failed").
			WithContext("path", path)
	}
	return nil
}

func readAll(path string, r io.Reader) (string, error) {
	if r == nil {
		return "", nil
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(err, ErrCodeIO, "read failed").
			WithContext("path", path)
	}
	return string(raw), nil
}
