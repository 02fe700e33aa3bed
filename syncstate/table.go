// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package syncstate holds the three coupled mappings (seqOf, tokenOf,
// prefixOf) and the live IBLT they keep in sync, per spec.md §3/§4.4.
// Grounded on original_source/src/logic-base.cpp's updateSeq/addSyncNode/
// removeSyncNode, translated from std::map<std::string,...> bookkeeping into
// Go maps with the same invariants.
package syncstate

import (
	"strconv"

	"github.com/luxfi/psync/hashfn"
	"github.com/luxfi/psync/iblt"
)

// Table is the local participant's view: every known prefix's latest
// sequence number, and the IBLT sketch of (prefix, seq) tokens that mirrors
// it. Not safe for concurrent use — per spec.md §5, all mutation happens on
// a single event loop.
type Table struct {
	expectedEntries int
	sketch          *iblt.Table

	seqOf    map[string]uint32
	tokenOf  map[string]uint32 // key: "prefix/seq"
	prefixOf map[uint32]string
}

// New creates an empty state table sized for expectedEntries tokens.
func New(expectedEntries int) *Table {
	return &Table{
		expectedEntries: expectedEntries,
		sketch:          iblt.New(expectedEntries),
		seqOf:           make(map[string]uint32),
		tokenOf:         make(map[string]uint32),
		prefixOf:        make(map[uint32]string),
	}
}

// ExpectedEntries returns the capacity this table (and its IBLT) was
// constructed with.
func (t *Table) ExpectedEntries() int {
	return t.expectedEntries
}

// Sketch returns the live IBLT. Callers that need to diff against "the
// sketch at this instant" should call Snapshot instead, since this pointer
// is mutated in place by subsequent updates.
func (t *Table) Sketch() *iblt.Table {
	return t.sketch
}

// Snapshot returns a defensive copy of the current IBLT, suitable for
// parking in a pending-request record that must not see later mutations.
func (t *Table) Snapshot() *iblt.Table {
	return t.sketch.Copy()
}

// SeqOf returns the current sequence number of prefix, and whether prefix is
// a known participant at all (addSyncNode'd or implicitly via ingest).
func (t *Table) SeqOf(prefix string) (uint32, bool) {
	seq, ok := t.seqOf[prefix]
	return seq, ok
}

// Prefixes returns every known prefix, in no particular order.
func (t *Table) Prefixes() []string {
	out := make([]string, 0, len(t.seqOf))
	for p := range t.seqOf {
		out = append(out, p)
	}
	return out
}

// PrefixForToken returns the prefix whose latest published token is tok, if
// any. Used by engines translating IBLT peel output back into prefixes.
func (t *Table) PrefixForToken(tok uint32) (string, bool) {
	p, ok := t.prefixOf[tok]
	return p, ok
}

// AddNode registers prefix as a known participant with seq 0, if not already
// known. A no-op for an already-known prefix.
func (t *Table) AddNode(prefix string) {
	if _, ok := t.seqOf[prefix]; !ok {
		t.seqOf[prefix] = 0
	}
}

// RemoveNode forgets prefix entirely: erases its current token from the
// IBLT (if it has published at least once) and deletes all three mappings.
func (t *Table) RemoveNode(prefix string) {
	seq, ok := t.seqOf[prefix]
	if !ok {
		return
	}
	if seq != 0 {
		key := tokenKey(prefix, seq)
		if tok, ok := t.tokenOf[key]; ok {
			t.sketch.Erase(tok)
			delete(t.tokenOf, key)
			delete(t.prefixOf, tok)
		}
	}
	delete(t.seqOf, prefix)
}

// UpdateSeq advances prefix to seq. It is a no-op if seq <= the prefix's
// current sequence number (idempotent in the weak sense spec.md §4.4
// requires). Otherwise it erases the old token (if seq was previously
// nonzero), inserts the new one, and updates all three mappings atomically
// with respect to other handlers (there are none running concurrently; see
// spec.md §5).
func (t *Table) UpdateSeq(prefix string, seq uint32) {
	current, known := t.seqOf[prefix]
	if known && current >= seq {
		return
	}

	if known && current != 0 {
		oldKey := tokenKey(prefix, current)
		if tok, ok := t.tokenOf[oldKey]; ok {
			t.sketch.Erase(tok)
			delete(t.tokenOf, oldKey)
			delete(t.prefixOf, tok)
		}
	}

	t.seqOf[prefix] = seq
	newTok := hashfn.Token(prefix, seq)
	t.tokenOf[tokenKey(prefix, seq)] = newTok
	t.prefixOf[newTok] = prefix
	t.sketch.Insert(newTok)
}

func tokenKey(prefix string, seq uint32) string {
	return prefix + "/" + strconv.FormatUint(uint64(seq), 10)
}
