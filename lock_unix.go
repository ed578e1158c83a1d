// lock_unix.go: Advisory update locks
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

//go:build unix

package hestia

import (
	goerrors "errors"
	"os"
	"time"

	"github.com/agilira/go-errors"
	"golang.org/x/sys/unix"
)

// lockPollInterval is the retry period while another holder owns the lock.
const lockPollInterval = 20 * time.Millisecond

// fileLock is an exclusive flock held on <target>.lock.
type fileLock struct {
	f *os.File
}

// acquireLock takes an exclusive advisory lock on path, giving up after
// timeout. The lock file is created when missing and never removed.
func acquireLock(path string, timeout time.Duration) (*fileLock, error) {
	// #nosec G304 -- lock path derives from a registered path
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeIOError, "unable to open lock file").
			WithContext("path", path)
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &fileLock{f: f}, nil
		}
		if !goerrors.Is(err, unix.EWOULDBLOCK) && !goerrors.Is(err, unix.EINTR) {
			_ = f.Close()
			return nil, errors.Wrap(err, ErrCodeIOError, "unable to lock file").
				WithContext("path", path)
		}
		if !time.Now().Before(deadline) {
			_ = f.Close()
			return nil, errors.New(ErrCodeLockTimeout, "can't acquire lock - got timeout").
				WithContext("path", path).
				WithContext("timeout", timeout.String())
		}
		time.Sleep(lockPollInterval)
	}
}

// release drops the lock by closing the descriptor.
func (l *fileLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
