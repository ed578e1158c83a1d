// timezone.go: /etc/timezone and the /etc/localtime link
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hostfiles

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
	"github.com/agilira/hestia"
)

// TimezoneCodec reads the zone name and, on write, repoints localtime to
// the zone's file below zoneinfo. Unknown zones are rejected before
// anything is written.
func TimezoneCodec(zoneinfo, localtime string) hestia.Codec {
	return hestia.Codec{
		Parse: func(path string, r io.Reader) (any, error) {
			raw, err := readAll(path, r)
			if err != nil {
				return nil, err
			}
			line, _, _ := strings.Cut(raw, "\n")
			return strings.TrimSpace(line), nil
		},
		Write: func(path string, w io.Writer, data any) (any, error) {
			tz, err := expect[string](path, data)
			if err != nil {
				return nil, err
			}
			zone, err := zoneFile(zoneinfo, tz)
			if err != nil {
				return nil, err
			}
			if err := writeString(path, w, tz+"\n"); err != nil {
				return nil, err
			}
			if err := relink(zone, localtime); err != nil {
				return nil, err
			}
			return tz, nil
		},
	}
}

func zoneFile(zoneinfo, tz string) (string, error) {
	if tz == "" || filepath.IsAbs(tz) || strings.Contains(tz, "..") {
		return "", errors.New(ErrCodeInvalidValue, "invalid time zone").
			WithContext("timezone", tz)
	}
	zone := filepath.Join(zoneinfo, tz)
	info, err := os.Stat(zone)
	if err != nil || !info.Mode().IsRegular() {
		return "", errors.New(ErrCodeInvalidValue, "unknown time zone").
			WithContext("timezone", tz).
			WithContext("zoneinfo", zoneinfo)
	}
	return zone, nil
}

// relink replaces link with a symlink to target in one rename.
func relink(target, link string) error {
	tmp := link + ".tmp." + strconv.Itoa(os.Getpid())
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return errors.Wrap(err, ErrCodeIO, "unable to create localtime link").
			WithContext("path", link)
	}
	if err := os.Rename(tmp, link); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, ErrCodeIO, "unable to replace localtime link").
			WithContext("path", link)
	}
	return nil
}
