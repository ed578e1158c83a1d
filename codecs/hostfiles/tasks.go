// tasks.go: the active task log
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hostfiles

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
	"github.com/agilira/hestia"
)

var (
	reTaskLine = regexp.MustCompile(`^(\S+)(?:\s([0-9A-Fa-f]{8})(?:\s(\S.*))?)?$`)
	reUPID     = regexp.MustCompile(`^UPID:([a-zA-Z0-9](?:[a-zA-Z0-9-]*[a-zA-Z0-9])?):([0-9A-Fa-f]{8}):([0-9A-Fa-f]{8,9}):([0-9A-Fa-f]{8}):([^:\s]+):([^:\s]*):([^:\s]+):$`)
)

// UPID identifies one task: the node it ran on, the worker process, its
// start time, and what it did on whose behalf.
type UPID struct {
	Node      string
	PID       uint64
	PStart    uint64
	StartTime int64
	Type      string
	ID        string
	User      string
}

// DecodeUPID splits a task identifier of the form
// UPID:node:PID:PSTART:STARTTIME:type:id:user:
func DecodeUPID(s string) (UPID, error) {
	m := reUPID.FindStringSubmatch(s)
	if m == nil {
		return UPID{}, errors.New(ErrCodeParse, "unable to parse worker upid").
			WithContext("upid", s)
	}
	pid, _ := strconv.ParseUint(m[2], 16, 64)
	pstart, _ := strconv.ParseUint(m[3], 16, 64)
	start, _ := strconv.ParseInt(m[4], 16, 64)
	return UPID{
		Node:      m[1],
		PID:       pid,
		PStart:    pstart,
		StartTime: start,
		Type:      m[5],
		ID:        m[6],
		User:      m[7],
	}, nil
}

// Task is one line of the active task log. A finished task carries its end
// time and exit status.
type Task struct {
	UPID    string
	Info    UPID
	EndTime int64
	Status  string
}

// Finished reports whether the task has an exit status.
func (t Task) Finished() bool {
	return t.Status != ""
}

// ActiveTasksCodec reads and writes the task log, one "UPID [ENDTIME
// [STATUS]]" line per task with the end time in eight hex digits. Lines
// with an undecodable UPID are dropped.
func ActiveTasksCodec() hestia.Codec {
	return hestia.Codec{
		Parse: func(path string, r io.Reader) (any, error) {
			raw, err := readAll(path, r)
			if err != nil {
				return nil, err
			}
			tasks := []Task{}
			for _, line := range strings.Split(raw, "\n") {
				m := reTaskLine.FindStringSubmatch(line)
				if m == nil {
					continue
				}
				info, err := DecodeUPID(m[1])
				if err != nil {
					continue
				}
				t := Task{UPID: m[1], Info: info}
				if m[2] != "" && m[3] != "" {
					t.EndTime, _ = strconv.ParseInt(m[2], 16, 64)
					t.Status = m[3]
				}
				tasks = append(tasks, t)
			}
			return tasks, nil
		},
		Write: func(path string, w io.Writer, data any) (any, error) {
			tasks, err := expect[[]Task](path, data)
			if err != nil {
				return nil, err
			}
			var b strings.Builder
			for _, t := range tasks {
				if _, err := DecodeUPID(t.UPID); err != nil {
					return nil, err
				}
				if t.Finished() {
					fmt.Fprintf(&b, "%s %08X %s\n", t.UPID, t.EndTime, t.Status)
				} else {
					b.WriteString(t.UPID + "\n")
				}
			}
			if err := writeString(path, w, b.String()); err != nil {
				return nil, err
			}
			return tasks, nil
		},
	}
}
