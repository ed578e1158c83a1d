// inotify_other.go: change notification on platforms without inotify
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package hestia

import "github.com/agilira/go-errors"

func newPlatformNotifier() (notifier, error) {
	return nil, errors.New(ErrCodeWatchUnsupported, "change notification is only available on linux")
}
