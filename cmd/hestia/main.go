// hestia: inspect and maintain cached host configuration files
//
// Usage:
//
//	hestia [--root DIR] [--config-file FILE] [--lock-timeout D] [--audit-file FILE] [--no-audit] <command> [args]
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/agilira/hestia"
	"github.com/agilira/hestia/cmd/cli"
	"github.com/agilira/hestia/codecs/hostfiles"
	"github.com/agilira/hestia/codecs/netif"
	"github.com/spf13/afero"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, rest, err := hestia.ParseFlags(args)
	if err != nil {
		return err
	}
	config, err := opts.Config()
	if err != nil {
		return err
	}
	config.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cache := hestia.New(*config)
	defer cache.Close()

	// a sandbox root also supplies its own kernel snapshot
	fs := afero.NewOsFs()
	if config.Root != "" {
		fs = afero.NewBasePathFs(fs, config.Root)
	}
	probe := netif.NewProbe(fs)

	if err := netif.Register(cache, probe); err != nil {
		return err
	}
	if err := hostfiles.RegisterAll(cache, hostfiles.HostPaths(cache)); err != nil {
		return err
	}

	return cli.NewManager(cache, probe).Run(rest)
}
