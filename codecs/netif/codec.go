// codec.go: cache registration of the interfaces file
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netif

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/agilira/go-errors"
	"github.com/agilira/hestia"
)

// Registration defaults.
const (
	ID          = "interfaces"
	DefaultPath = "/etc/network/interfaces"
	ShadowPath  = "/etc/network/interfaces.new"
)

// Codec returns the cache codec of an interfaces file. probe supplies the
// live interface state on parse and the activation syntax on write; nil
// means no live state and legacy syntax. Warnings go to logger, or to
// slog.Default() when logger is nil.
func Codec(probe *Probe, logger *slog.Logger) hestia.Codec {
	if logger == nil {
		logger = slog.Default()
	}
	return hestia.Codec{
		Parse: func(_ string, r io.Reader) (any, error) {
			return Parse(r, probe.Snapshot())
		},
		Write: func(path string, w io.Writer, data any) (any, error) {
			cfg, ok := data.(*Config)
			if !ok {
				return nil, errors.New(ErrCodeInvalidValue, fmt.Sprintf("expected *netif.Config, got %T", data)).
					WithContext("path", path)
			}
			written, warnings, err := Write(w, cfg, WriteOptions{Ifupdown2: probe.Ifupdown2()})
			if err != nil {
				return nil, err
			}
			for _, warning := range warnings {
				logger.Warn("netif: "+warning, "path", path)
			}
			return written, nil
		},
	}
}

// Register adds /etc/network/interfaces with its working copy
// /etc/network/interfaces.new, both below the cache's root.
func Register(c *hestia.Cache, probe *Probe) error {
	return RegisterAt(c, c.HostPath(DefaultPath), c.HostPath(ShadowPath), probe)
}

// RegisterAt registers an interfaces file at a custom location.
func RegisterAt(c *hestia.Cache, path, shadow string, probe *Probe) error {
	return c.Register(ID, path, Codec(probe, c.Logger()),
		hestia.Shadow(shadow),
		hestia.AlwaysCallParser(),
	)
}
