// inotify_linux.go: inotify backed change notification
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

//go:build linux

package hestia

import (
	goerrors "errors"
	"strings"
	"unsafe"

	"github.com/agilira/go-errors"
	"golang.org/x/sys/unix"
)

// watchMask is the set of events that can change a tracked file.
const watchMask = unix.IN_MODIFY | unix.IN_ATTRIB | unix.IN_MOVED_FROM |
	unix.IN_MOVED_TO | unix.IN_DELETE | unix.IN_CREATE

type inotifyNotifier struct {
	fd  int
	buf [unix.SizeofInotifyEvent * 4096]byte
}

func newPlatformNotifier() (notifier, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeWatchError, "unable to create inotify instance")
	}
	return &inotifyNotifier{fd: fd}, nil
}

func (n *inotifyNotifier) addWatch(dir string) (int, error) {
	wd, err := unix.InotifyAddWatch(n.fd, dir, watchMask)
	if err != nil {
		return -1, err
	}
	return wd, nil
}

func (n *inotifyNotifier) drain(fn func(notifyEvent) bool) error {
	for {
		nr, err := unix.Read(n.fd, n.buf[:])
		if err != nil {
			if goerrors.Is(err, unix.EAGAIN) {
				return nil
			}
			if goerrors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		if nr < unix.SizeofInotifyEvent {
			return nil
		}

		offset := 0
		for offset+unix.SizeofInotifyEvent <= nr {
			raw := (*unix.InotifyEvent)(unsafe.Pointer(&n.buf[offset]))
			nameLen := int(raw.Len)
			start := offset + unix.SizeofInotifyEvent

			var name string
			if nameLen > 0 && start+nameLen <= nr {
				name = strings.TrimRight(string(n.buf[start:start+nameLen]), "\x00")
			}

			if !fn(notifyEvent{wd: int(raw.Wd), mask: translateMask(raw.Mask), name: name}) {
				return nil
			}
			offset = start + nameLen
		}
	}
}

func translateMask(mask uint32) eventMask {
	var m eventMask
	if mask&watchMask != 0 {
		m |= evChange
	}
	if mask&unix.IN_ISDIR != 0 {
		m |= evIsDir
	}
	if mask&unix.IN_Q_OVERFLOW != 0 {
		m |= evOverflow
	}
	if mask&unix.IN_UNMOUNT != 0 {
		m |= evUnmount
	}
	if mask&unix.IN_IGNORED != 0 {
		m |= evIgnored
	}
	return m
}

func (n *inotifyNotifier) close() error {
	return unix.Close(n.fd)
}
