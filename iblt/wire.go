// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package iblt

import (
	"encoding/binary"
	"fmt"
)

const cellWireSize = 12 // 4B count, 4B keySum, 4B keyCheck, little-endian

// MarshalBinary encodes the table as cellWireSize bytes per cell,
// little-endian, with no length prefix of its own — callers that need a
// name-component-style length-prefixed encoding should wrap the result with
// namewire.AppendBytes.
func (t *Table) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(t.cells)*cellWireSize)
	for i, c := range t.cells {
		off := i * cellWireSize
		binary.LittleEndian.PutUint32(out[off:], uint32(c.count))
		binary.LittleEndian.PutUint32(out[off+4:], c.keySum)
		binary.LittleEndian.PutUint32(out[off+8:], c.keyCheck)
	}
	return out, nil
}

// Unmarshal decodes a table of the given expected entry count from raw
// cellWireSize-per-cell bytes (the inverse of MarshalBinary).
func Unmarshal(expectedEntries int, b []byte) (*Table, error) {
	n := sizeFor(expectedEntries)
	if len(b) != n*cellWireSize {
		return nil, fmt.Errorf("iblt: expected %d bytes for %d cells, got %d", n*cellWireSize, n, len(b))
	}
	t := &Table{cells: make([]cell, n)}
	for i := range t.cells {
		off := i * cellWireSize
		t.cells[i] = cell{
			count:    int32(binary.LittleEndian.Uint32(b[off:])),
			keySum:   binary.LittleEndian.Uint32(b[off+4:]),
			keyCheck: binary.LittleEndian.Uint32(b[off+8:]),
		}
	}
	return t, nil
}
