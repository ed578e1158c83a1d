// hostname.go: /etc/hostname and /etc/hosts
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hostfiles

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/agilira/go-errors"
	"github.com/agilira/hestia"
	"github.com/cespare/xxhash/v2"
)

// reHostname accepts a single DNS label.
var reHostname = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// ValidHostname reports whether name is usable as a node name.
func ValidHostname(name string) bool {
	return reHostname.MatchString(name)
}

// HostnameCodec handles a file holding one host name. Reads yield a string.
func HostnameCodec() hestia.Codec {
	return hestia.Codec{
		Parse: func(path string, r io.Reader) (any, error) {
			raw, err := readAll(path, r)
			if err != nil {
				return nil, err
			}
			for _, line := range strings.Split(raw, "\n") {
				name := strings.TrimSpace(line)
				if name == "" {
					continue
				}
				if !ValidHostname(name) {
					return nil, errors.New(ErrCodeParse, "unable to read hostname").
						WithContext("path", path).
						WithContext("hostname", name)
				}
				return name, nil
			}
			return nil, errors.New(ErrCodeParse, "hostname file is empty").
				WithContext("path", path)
		},
		Write: func(path string, w io.Writer, data any) (any, error) {
			name, err := expect[string](path, data)
			if err != nil {
				return nil, err
			}
			if !ValidHostname(name) {
				return nil, errors.New(ErrCodeInvalidValue, "invalid hostname").
					WithContext("hostname", name)
			}
			return name, writeString(path, w, name+"\n")
		},
	}
}

// Hosts is the verbatim content of a hosts file and its digest, which
// callers compare to detect concurrent edits.
type Hosts struct {
	Data   string
	Digest string
}

// HostsDigest returns the digest of hosts file content.
func HostsDigest(data string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(data))
}

// HostsCodec keeps /etc/hosts as raw text.
func HostsCodec() hestia.Codec {
	return hestia.Codec{
		Parse: func(path string, r io.Reader) (any, error) {
			raw, err := readAll(path, r)
			if err != nil {
				return nil, err
			}
			return Hosts{Data: raw, Digest: HostsDigest(raw)}, nil
		},
		Write: func(path string, w io.Writer, data any) (any, error) {
			h, err := expect[Hosts](path, data)
			if err != nil {
				return nil, err
			}
			if err := writeString(path, w, h.Data); err != nil {
				return nil, err
			}
			return Hosts{Data: h.Data, Digest: HostsDigest(h.Data)}, nil
		},
	}
}
