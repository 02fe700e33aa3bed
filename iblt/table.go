// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package iblt implements the Invertible Bloom Lookup Table: a fixed-size
// sketch that supports insert/erase of 32-bit tokens and, given two sketches
// of equal size, recovery of their symmetric difference by peeling.
//
// Grounded on original_source/src/iblt.{hpp,cpp} (the NLSR PSync IBLT), kept
// bit-for-bit compatible with its cell layout and hash-index assignment so
// that wire-encoded tables interoperate with any other implementation of the
// same protocol.
package iblt

import (
	"fmt"

	"github.com/luxfi/psync"
	"github.com/luxfi/psync/hashfn"
)

// hashCount is the number of cells touched by every insert/erase (N_HASH in
// the original). The cell array is partitioned into this many equal regions.
const hashCount = 3

// cell is one slot of the table. count is signed because erase can drive it
// negative when the peer has an entry we don't.
type cell struct {
	count    int32
	keySum   uint32
	keyCheck uint32
}

func (c cell) empty() bool {
	return c.count == 0 && c.keySum == 0 && c.keyCheck == 0
}

func (c cell) pure() bool {
	if c.count != 1 && c.count != -1 {
		return false
	}
	return hashfn.Check(uint32Bytes(c.keySum)) == c.keyCheck
}

// Table is the sketch itself. The zero value is not usable; construct with
// New or NewFromValues.
type Table struct {
	cells []cell
}

// sizeFor computes the number of cells for an expected entry count: 1.5x
// over-provisioned and rounded up to a multiple of hashCount. This is the
// Eppstein-Goodrich low-failure-probability regime spec.md's design notes
// call out.
func sizeFor(expectedEntries int) int {
	n := expectedEntries + expectedEntries/2
	if rem := n % hashCount; rem != 0 {
		n += hashCount - rem
	}
	return n
}

// New creates an empty table sized for expectedEntries.
func New(expectedEntries int) *Table {
	return &Table{cells: make([]cell, sizeFor(expectedEntries))}
}

// NewFromValues reconstructs a table from a flat (count, keySum, keyCheck)
// triple-per-cell slice, as produced by decoding the wire format with a known
// expected entry count. len(values) must equal 3*sizeFor(expectedEntries).
//
// The original constructor only assigns count when the decoded value is
// nonzero ("if (values[i*3] != 0) entry.count = values[i*3];"), leaving a
// zero-count cell's count field at its zero-initialized default either way.
// We reproduce that literally: it is observationally identical to an
// unconditional assignment (both leave count at 0), so there is no
// behavioral difference to resolve, but the guard is kept to document that
// this was a deliberate read of the original rather than an oversight.
func NewFromValues(expectedEntries int, values []uint32) (*Table, error) {
	n := sizeFor(expectedEntries)
	if len(values) != 3*n {
		return nil, fmt.Errorf("iblt: expected %d values for %d cells, got %d", 3*n, n, len(values))
	}
	t := &Table{cells: make([]cell, n)}
	for i := range t.cells {
		c := cell{keySum: values[i*3+1], keyCheck: values[i*3+2]}
		if values[i*3] != 0 {
			c.count = int32(values[i*3])
		}
		t.cells[i] = c
	}
	return t, nil
}

// Copy returns an independent copy of t.
func (t *Table) Copy() *Table {
	cp := &Table{cells: make([]cell, len(t.cells))}
	copy(cp.cells, t.cells)
	return cp
}

// Len returns the number of cells in the table.
func (t *Table) Len() int {
	return len(t.cells)
}

func (t *Table) insert(delta int32, token uint32) {
	kbytes := uint32Bytes(token)
	checkHash := hashfn.Check(kbytes)
	bucketsPerHash := len(t.cells) / hashCount
	for i := 0; i < hashCount; i++ {
		start := i * bucketsPerHash
		h := hashfn.Index(i, kbytes)
		idx := start + int(h%uint32(bucketsPerHash))
		c := &t.cells[idx]
		c.count += delta
		c.keySum ^= token
		c.keyCheck ^= checkHash
	}
}

// Insert adds token to the table.
func (t *Table) Insert(token uint32) {
	t.insert(1, token)
}

// Erase removes token from the table.
func (t *Table) Erase(token uint32) {
	t.insert(-1, token)
}

// Subtract returns a new table holding the cell-wise difference t - other.
// Both tables must have the same cell count.
func (t *Table) Subtract(other *Table) (*Table, error) {
	if len(t.cells) != len(other.cells) {
		return nil, fmt.Errorf("iblt: %w: %d != %d", psync.ErrCellCountMismatch, len(t.cells), len(other.cells))
	}
	result := t.Copy()
	for i := range result.cells {
		result.cells[i].count -= other.cells[i].count
		result.cells[i].keySum ^= other.cells[i].keySum
		result.cells[i].keyCheck ^= other.cells[i].keyCheck
	}
	return result, nil
}

// Peel recovers the set of tokens present in this table with positive count
// (present in t but not in whatever was subtracted, by convention t - peer)
// and negative count (present in peer but not in t). It destructively mutates
// a working copy, never t itself. ok is false when the difference could not
// be fully decoded — the symmetric difference exceeded this table's capacity.
func (t *Table) Peel() (positive, negative []uint32, ok bool) {
	working := t.Copy()
	for {
		erased := 0
		for i := range working.cells {
			c := working.cells[i]
			if !c.pure() {
				continue
			}
			if c.count == 1 {
				positive = append(positive, c.keySum)
			} else {
				negative = append(negative, c.keySum)
			}
			working.insert(-c.count, c.keySum)
			erased++
		}
		if erased == 0 {
			break
		}
	}
	for _, c := range working.cells {
		if !c.empty() {
			return positive, negative, false
		}
	}
	return positive, negative, true
}

// Equal reports whether t and other hold identical cell contents.
func (t *Table) Equal(other *Table) bool {
	if len(t.cells) != len(other.cells) {
		return false
	}
	for i := range t.cells {
		if t.cells[i] != other.cells[i] {
			return false
		}
	}
	return true
}

func uint32Bytes(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
