// lock_other.go: Advisory update locks on platforms without flock
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package hestia

import (
	"time"

	"github.com/agilira/go-errors"
)

type fileLock struct{}

func acquireLock(path string, _ time.Duration) (*fileLock, error) {
	return nil, errors.New(ErrCodeUnsupportedOperation, "advisory file locks are not supported on this platform").
		WithContext("path", path)
}

func (l *fileLock) release() error { return nil }
