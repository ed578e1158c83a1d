// aptauth.go: /etc/apt/auth.conf
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hostfiles

import (
	"io"
	"sort"
	"strings"

	"github.com/agilira/go-errors"
	"github.com/agilira/hestia"
)

// AptCredential is the login of one repository host.
type AptCredential struct {
	Login    string
	Password string
}

// AptAuth maps a machine (host, optionally with a path) to its login.
type AptAuth map[string]AptCredential

// parseAptAuth reads netrc-style tokens; stanzas may span lines.
func parseAptAuth(raw string) AptAuth {
	auth := make(AptAuth)
	var machine string
	tokens := strings.Fields(stripComments(raw))
	for i := 0; i+1 < len(tokens); i += 2 {
		key, value := tokens[i], tokens[i+1]
		switch key {
		case "machine":
			machine = value
			if _, ok := auth[machine]; !ok {
				auth[machine] = AptCredential{}
			}
		case "login", "password":
			if machine == "" {
				continue
			}
			cred := auth[machine]
			if key == "login" {
				cred.Login = value
			} else {
				cred.Password = value
			}
			auth[machine] = cred
		}
	}
	return auth
}

func stripComments(raw string) string {
	var b strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// formatAptAuth writes the most specific machine first, since apt uses the
// first stanza that matches.
func formatAptAuth(auth AptAuth) (string, error) {
	machines := make([]string, 0, len(auth))
	for m := range auth {
		machines = append(machines, m)
	}
	sort.Slice(machines, func(i, j int) bool {
		if len(machines[i]) != len(machines[j]) {
			return len(machines[i]) > len(machines[j])
		}
		return machines[i] < machines[j]
	})

	var b strings.Builder
	for _, m := range machines {
		cred := auth[m]
		for _, v := range []string{m, cred.Login, cred.Password} {
			if v == "" || strings.ContainsAny(v, " \t\n") {
				return "", errors.New(ErrCodeInvalidValue, "apt credentials must be single non-empty words").
					WithContext("machine", m)
			}
		}
		b.WriteString("machine " + m + "\n login " + cred.Login + "\n password " + cred.Password + "\n\n")
	}
	return b.String(), nil
}

// AptAuthCodec reads and replaces the apt credentials file. Update merges
// the given machines into the file; a machine with an empty Login is
// removed.
func AptAuthCodec() hestia.Codec {
	return hestia.Codec{
		Parse: func(path string, r io.Reader) (any, error) {
			raw, err := readAll(path, r)
			if err != nil {
				return nil, err
			}
			return parseAptAuth(raw), nil
		},
		Write: func(path string, w io.Writer, data any) (any, error) {
			auth, err := expect[AptAuth](path, data)
			if err != nil {
				return nil, err
			}
			text, err := formatAptAuth(auth)
			if err != nil {
				return nil, err
			}
			if err := writeString(path, w, text); err != nil {
				return nil, err
			}
			return auth, nil
		},
		Update: func(path string, r io.Reader, data any, _ ...any) ([]byte, error) {
			changes, err := expect[AptAuth](path, data)
			if err != nil {
				return nil, err
			}
			raw, err := readAll(path, r)
			if err != nil {
				return nil, err
			}
			auth := parseAptAuth(raw)
			for m, cred := range changes {
				if cred.Login == "" {
					delete(auth, m)
					continue
				}
				auth[m] = cred
			}
			text, err := formatAptAuth(auth)
			if err != nil {
				return nil, err
			}
			return []byte(text), nil
		},
	}
}
