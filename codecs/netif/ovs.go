// ovs.go: the key=value micro-syntax of ovs_options
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netif

import "strings"

// OVSOption is one token of an ovs_options value. Tokens without '=' keep
// an empty Key and their text in Value.
type OVSOption struct {
	Key   string
	Value string
}

func (o OVSOption) String() string {
	if o.Key == "" {
		return o.Value
	}
	return o.Key + "=" + o.Value
}

// ParseOVSOptions splits an ovs_options value into its tokens, in order.
func ParseOVSOptions(s string) []OVSOption {
	fields := strings.Fields(s)
	opts := make([]OVSOption, 0, len(fields))
	for _, tok := range fields {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			opts = append(opts, OVSOption{Value: tok})
			continue
		}
		opts = append(opts, OVSOption{Key: k, Value: v})
	}
	return opts
}

// FormatOVSOptions joins tokens with single spaces.
func FormatOVSOptions(opts []OVSOption) string {
	parts := make([]string, len(opts))
	for i, o := range opts {
		parts[i] = o.String()
	}
	return strings.Join(parts, " ")
}

// extractOVSOption removes key from the interface's ovs_options and
// returns its value.
func extractOVSOption(i *Interface, key string) (string, bool) {
	opts := ParseOVSOptions(i.OVSOptions)
	kept := opts[:0]
	var value string
	var found bool
	for _, o := range opts {
		if o.Key == key {
			value, found = o.Value, true
			continue
		}
		kept = append(kept, o)
	}
	i.OVSOptions = FormatOVSOptions(kept)
	return value, found
}

// setOVSOption replaces key in place, appends it when missing, or removes
// it when value is empty.
func setOVSOption(i *Interface, key, value string) {
	opts := ParseOVSOptions(i.OVSOptions)
	out := make([]OVSOption, 0, len(opts)+1)
	replaced := false
	for _, o := range opts {
		if o.Key != key {
			out = append(out, o)
			continue
		}
		if value != "" && !replaced {
			out = append(out, OVSOption{Key: key, Value: value})
			replaced = true
		}
	}
	if value != "" && !replaced {
		out = append(out, OVSOption{Key: key, Value: value})
	}
	i.OVSOptions = FormatOVSOptions(out)
}
