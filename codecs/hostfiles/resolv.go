// resolv.go: /etc/resolv.conf
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hostfiles

import (
	"io"
	"net"
	"regexp"
	"strings"

	"github.com/agilira/go-errors"
	"github.com/agilira/hestia"
)

// MaxNameservers is the resolver's limit.
const MaxNameservers = 3

var (
	reSearch     = regexp.MustCompile(`^\s*(?:search|domain)\s+(\S+)`)
	reNameserver = regexp.MustCompile(`^\s*nameserver\s+(\S+)`)
)

// Resolv is the managed part of resolv.conf.
type Resolv struct {
	Search      string
	Nameservers []string
}

func parseResolv(raw string) Resolv {
	var res Resolv
	for _, line := range strings.Split(raw, "\n") {
		if m := reSearch.FindStringSubmatch(line); m != nil {
			res.Search = m[1]
			continue
		}
		if m := reNameserver.FindStringSubmatch(line); m != nil && len(res.Nameservers) < MaxNameservers {
			res.Nameservers = append(res.Nameservers, m[1])
		}
	}
	return res
}

func (r Resolv) validate() error {
	if len(r.Nameservers) > MaxNameservers {
		return errors.New(ErrCodeInvalidValue, "too many nameservers").
			WithContext("count", len(r.Nameservers))
	}
	for _, ns := range r.Nameservers {
		if net.ParseIP(ns) == nil {
			return errors.New(ErrCodeInvalidValue, "nameserver is not an IP address").
				WithContext("nameserver", ns)
		}
	}
	if strings.ContainsAny(r.Search, " \t\n") {
		return errors.New(ErrCodeInvalidValue, "search domain must be a single word").
			WithContext("search", r.Search)
	}
	return nil
}

// ResolvCodec parses the search domain and up to three nameservers. It has
// no writer: updates merge into the existing file and keep every line they
// do not manage, such as options and comments.
func ResolvCodec() hestia.Codec {
	return hestia.Codec{
		Parse: func(path string, r io.Reader) (any, error) {
			raw, err := readAll(path, r)
			if err != nil {
				return nil, err
			}
			return parseResolv(raw), nil
		},
		Update: func(path string, r io.Reader, data any, _ ...any) ([]byte, error) {
			want, err := expect[Resolv](path, data)
			if err != nil {
				return nil, err
			}
			if err := want.validate(); err != nil {
				return nil, err
			}
			raw, err := readAll(path, r)
			if err != nil {
				return nil, err
			}

			var b strings.Builder
			if want.Search != "" {
				b.WriteString("search " + want.Search + "\n")
			}
			for _, ns := range want.Nameservers {
				b.WriteString("nameserver " + ns + "\n")
			}
			for _, line := range strings.Split(strings.TrimSuffix(raw, "\n"), "\n") {
				if line == "" || reSearch.MatchString(line) || reNameserver.MatchString(line) {
					continue
				}
				b.WriteString(line + "\n")
			}
			return []byte(b.String()), nil
		},
	}
}
