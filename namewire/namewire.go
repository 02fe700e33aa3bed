// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package namewire composes and parses the slash-separated request/response
// names spec.md §4.8 lays out: a byte payload (an IBLT or a Bloom filter)
// carried as two components, a decimal length and the payload itself.
//
// The original protocol carries these as raw binary name components with a
// varint length prefix; this module has no package that reproduces that
// binary convention. This module's transport.Capability addresses
// everything by a Go string, so a byte payload is carried as two string
// segments instead — a decimal length (self-describing, same role as the
// varint) and the payload base64-encoded (so arbitrary bytes survive as a
// "/"-free string segment). Bit-exactness (spec.md §6) applies to the
// payload bytes themselves, which this encoding carries losslessly; it does
// not apply to how a string-addressed transport happens to spell its name
// components.
package namewire

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Split breaks a name into its "/"-separated components, ignoring a leading
// or trailing slash.
func Split(name string) []string {
	trimmed := strings.Trim(name, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Join concatenates components into a "/"-separated name.
func Join(parts ...string) string {
	return strings.Join(parts, "/")
}

// AppendBytes appends b to name as a <length>/<base64> component pair.
func AppendBytes(name string, b []byte) string {
	return Join(name, strconv.Itoa(len(b)), base64.RawURLEncoding.EncodeToString(b))
}

// TakeBytes consumes the leading <length>/<base64> pair from segments and
// returns the decoded payload along with the remaining segments.
func TakeBytes(segments []string) (payload []byte, rest []string, err error) {
	if len(segments) < 2 {
		return nil, nil, fmt.Errorf("namewire: need 2 segments for a length-prefixed byte component, got %d", len(segments))
	}
	n, err := strconv.Atoi(segments[0])
	if err != nil || n < 0 {
		return nil, nil, fmt.Errorf("namewire: non-numeric length field %q", segments[0])
	}
	raw, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return nil, nil, fmt.Errorf("namewire: malformed payload component: %w", err)
	}
	if len(raw) != n {
		return nil, nil, fmt.Errorf("namewire: declared length %d does not match decoded length %d", n, len(raw))
	}
	return raw, segments[2:], nil
}
