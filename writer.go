// writer.go: Atomic file persistence
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	goerrors "errors"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/agilira/go-errors"
)

// tempPath names the temporary sibling of target: <target>.tmp.<pid>.
// Being in the same directory keeps the final rename on one filesystem.
func tempPath(target string) string {
	return target + ".tmp." + strconv.Itoa(processID())
}

// atomicWrite runs fill against a temporary file and renames it onto
// target. target holds either its previous or its new complete content at
// every point in time; the temporary file never survives a failure.
func atomicWrite(target string, perm os.FileMode, fill func(w io.Writer) error) error {
	tmp := tempPath(target)

	// #nosec G304 -- target comes from the registry, not from user input
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return errors.Wrap(err, ErrCodeIOError, "unable to open temporary file").
			WithContext("path", tmp)
	}

	if err := fill(f); err != nil {
		_ = f.Close()
		removeQuietly(tmp)
		return err
	}

	// O_CREATE honours the umask; the registered mode is applied explicitly.
	if err := f.Chmod(perm); err != nil {
		_ = f.Close()
		removeQuietly(tmp)
		return errors.Wrap(err, ErrCodeIOError, "unable to set file mode").
			WithContext("path", tmp)
	}

	if err := f.Close(); err != nil {
		removeQuietly(tmp)
		return errors.Wrap(err, ErrCodeIOError, "closing temporary file failed").
			WithContext("path", tmp)
	}

	if err := os.Rename(tmp, target); err != nil {
		removeQuietly(tmp)
		return errors.Wrap(err, ErrCodeIOError, "atomic rename failed").
			WithContext("path", target)
	}

	return nil
}

// writeContent persists raw bytes atomically.
func writeContent(target string, perm os.FileMode, content []byte) error {
	return atomicWrite(target, perm, func(w io.Writer) error {
		if _, err := w.Write(content); err != nil {
			return errors.Wrap(err, ErrCodeIOError, "write failed").
				WithContext("path", target)
		}
		return nil
	})
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}

// removeIfExists deletes path; a missing file is not an error.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !goerrors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, ErrCodeIOError, "unable to remove file").
			WithContext("path", path)
	}
	return nil
}
