// Package hestia provides a cache and change-detection engine for host
// configuration files, with atomic persistence and codecs for the files a
// hypervisor node manages: /etc/network/interfaces, /etc/hostname,
// /etc/hosts, /etc/resolv.conf, /etc/timezone and friends.
//
// # Philosophy: Parse Once, Write Safely
//
// Host configuration files are small, read often and written rarely. Hestia
// keeps the parsed form of every registered file in memory and rereads a
// file only when the kernel reports that it changed. Writes go through a
// temporary file in the same directory followed by a rename, so readers
// never observe a half-written file.
//
// # Registration
//
// Every file is bound to a Codec, a set of up to three capabilities:
//
//   - Parse turns bytes into a value
//   - Write serializes a value and may return a normalized form of it
//   - Update merges a value into the current content under a file lock
//
// Registrations are made once at startup, before change notification is
// enabled:
//
//	cache := hestia.New(hestia.Config{LockTimeout: 5 * time.Second})
//	defer cache.Close()
//
//	err := cache.Register("hostname", "/etc/hostname", hestia.Codec{
//		Parse: parseHostname,
//		Write: writeHostname,
//	}, hestia.Perm(0o644))
//
//	// every file in /etc/pve/nodes/node1/ named like a guest config
//	err = cache.RegisterPattern("/etc/pve/nodes/node1", `\d+\.conf`, guestCodec)
//
// Options tune a registration:
//   - ReadOnce: the cached value is served forever once populated
//   - NoCache: every read reparses
//   - NoClone: readers receive the cached value itself and must not mutate it
//   - AlwaysCallParser: the parser runs with a nil reader when the file is absent
//   - Shadow(path): reads and writes go through a working copy at path
//   - Perm(mode): the mode of written files
//
// # Change Detection
//
// StartWatching opens one inotify session for the process and watches the
// parent directory of every registered path. Each change event bumps a
// per-path version counter; a cached value is only served while its version
// matches. When the session cannot be created, or the kernel queue
// overflows, hestia degrades to reparsing on every read:
//
//	if err := cache.StartWatching(); err != nil {
//		logger.Warn("running without change notification", "error", err)
//	}
//
// Events caused by the process itself are not filtered: a write bumps the
// version of its own file, and the next read reparses it.
//
// # Working Copies
//
// A file registered with Shadow is never written directly. Writes land in
// the working copy, reads prefer the working copy, and ReadFull reports the
// unified diff between the canonical file and the working copy:
//
//	res, err := cache.ReadFull("interfaces")
//	if res.Changes != "" {
//		fmt.Println("pending network changes:\n" + res.Changes)
//	}
//	_, err = cache.DiscardChanges("interfaces")
//
// # Locked Updates
//
// Update takes an exclusive advisory lock on <path>.lock, hands the current
// content to the codec's updater and persists the merged result atomically.
// An updater returning no content deletes the file. The wait for the lock is
// bounded by Config.LockTimeout.
//
// # Codecs
//
// The codecs/netif package implements the Debian network interfaces format,
// including Linux bridges, bonds, VLANs, VXLANs and Open vSwitch objects. The
// codecs/hostfiles package implements the small single-purpose files. Both
// register through helpers that honor Config.Root, which lets the whole
// engine run against a sandbox directory.
//
// # Error Handling and Observability
//
// All returned errors carry a code from the ErrCode* constants through
// github.com/agilira/go-errors. Faults that never reach a caller, such as a
// disabled notification session, go to Config.ErrorHandler. The optional
// audit trail records every write, update and discarded working copy in
// SQLite or JSONL form.
//
// Repository: https://github.com/agilira/hestia
package hestia
