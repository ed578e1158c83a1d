// flags.go: Global command-line flags and environment variables
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"strings"
	"time"

	flashflags "github.com/agilira/flash-flags"
	"github.com/agilira/go-errors"
)

// EnvPrefix is the prefix of environment variables mirroring the global
// flags: --lock-timeout is also read from HESTIA_LOCK_TIMEOUT.
const EnvPrefix = "HESTIA"

// Options holds the global flags shared by every hestia command.
type Options struct {
	ConfigFile  string
	Root        string
	LockTimeout time.Duration
	AuditFile   string
	NoAudit     bool
}

// booleanFlags never consume the following argument as their value.
var booleanFlags = map[string]bool{
	"no-audit": true,
}

func newFlagSet() *flashflags.FlagSet {
	fs := flashflags.New("hestia")
	fs.SetDescription("Cached, change-aware host configuration files")
	fs.SetEnvPrefix(EnvPrefix)
	fs.String("config-file", "", "YAML configuration file")
	fs.String("root", "", "Alternate filesystem root for the host files")
	fs.Duration("lock-timeout", 0, "Advisory lock timeout for updates")
	fs.String("audit-file", "", "Audit trail file (.db for SQLite, .jsonl for JSON lines)")
	fs.Bool("no-audit", false, "Disable the audit trail")
	return fs
}

// ParseFlags consumes the leading global flags of args and returns them with
// the remaining arguments (the command line of the subcommand).
func ParseFlags(args []string) (*Options, []string, error) {
	global, rest := splitGlobalArgs(args)

	fs := newFlagSet()
	if err := fs.Parse(global); err != nil {
		return nil, nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to parse global flags")
	}

	return &Options{
		ConfigFile:  fs.GetString("config-file"),
		Root:        fs.GetString("root"),
		LockTimeout: fs.GetDuration("lock-timeout"),
		AuditFile:   fs.GetString("audit-file"),
		NoAudit:     fs.GetBool("no-audit"),
	}, rest, nil
}

// splitGlobalArgs stops at the first positional argument or help flag.
func splitGlobalArgs(args []string) (global, rest []string) {
	i := 0
	for i < len(args) {
		arg := args[i]
		if arg == "--" {
			return args[:i], args[i+1:]
		}
		if !strings.HasPrefix(arg, "-") || arg == "-h" || arg == "--help" {
			break
		}
		i++
		name := strings.TrimLeft(arg, "-")
		if strings.Contains(name, "=") || booleanFlags[name] {
			continue
		}
		if i < len(args) {
			i++
		}
	}
	return args[:i], args[i:]
}

// Config resolves the effective configuration: the YAML file named by
// --config-file first, then the HESTIA_* environment, then explicit flags
// on top. The result is validated before it is returned.
func (o *Options) Config() (*Config, error) {
	config := &Config{}
	if o.ConfigFile != "" {
		loaded, err := LoadConfigFile(o.ConfigFile)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	if o.Root != "" {
		config.Root = o.Root
	}
	if o.LockTimeout > 0 {
		config.LockTimeout = o.LockTimeout
	}
	if o.AuditFile != "" {
		config.Audit.Enabled = true
		config.Audit.OutputFile = o.AuditFile
	}
	if o.NoAudit {
		config.Audit.Enabled = false
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
