// initiator.go: /etc/iscsi/initiatorname.iscsi
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hostfiles

import (
	"io"
	"regexp"
	"strings"

	"github.com/agilira/hestia"
)

var reInitiator = regexp.MustCompile(`^\s*InitiatorName\s*=\s*(\S+)`)

// InitiatorNameCodec reads the node's iSCSI initiator name. The file is
// owned by open-iscsi, so the codec has no writer. An empty string means
// no InitiatorName line was found.
func InitiatorNameCodec() hestia.Codec {
	return hestia.Codec{
		Parse: func(path string, r io.Reader) (any, error) {
			raw, err := readAll(path, r)
			if err != nil {
				return nil, err
			}
			name := ""
			for _, line := range strings.Split(raw, "\n") {
				if strings.HasPrefix(strings.TrimSpace(line), "#") {
					continue
				}
				if m := reInitiator.FindStringSubmatch(line); m != nil {
					name = m[1]
				}
			}
			return name, nil
		},
	}
}
