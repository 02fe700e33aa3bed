// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pending holds the parked-request table the full-sync and
// partial-sync engines use to answer a request once it can be satisfied,
// rather than immediately: a requester's IBLT (or hello) sketch was already
// up to date, so the responder defers replying until its own state changes
// enough to produce new information, or the request expires.
//
// Grounded on the teacher's poll.Set (poll/poll.go): a map keyed by a request
// identifier to a stateful per-request record, added once and removed on
// either satisfaction or expiry. The request identifier here is the full
// request name (string) rather than a uint32 requestID, and "satisfied" is
// decided by the engine, not by vote counting — so Table holds records and
// lets the engine delete/walk them, rather than owning the satisfaction
// policy itself as earlyTermPoll does.
package pending

import (
	"github.com/luxfi/psync/iblt"
	"github.com/luxfi/psync/transport"
)

// Entry is one parked request: the snapshot of the requester's sketch taken
// at park time (for full-sync, the IBLT they sent us; diffed again against
// our live sketch whenever we'd otherwise answer), the expiry timer so the
// engine can cancel it on satisfaction, and enough of the original request
// to answer it when it's time.
type Entry struct {
	// Name is the full request name this entry answers.
	Name string

	// Snapshot is the requester's sketch as of when the request arrived.
	Snapshot *iblt.Table

	// MustBeFresh mirrors the requester's freshness requirement, carried so
	// a late response can still honor it.
	MustBeFresh bool

	// Aux carries an engine-specific companion payload alongside the
	// snapshot — the partial-sync producer uses it to hold the subscriber's
	// Bloom filter next to the peer IBLT snapshot, so both engines can share
	// this table rather than each rolling its own.
	Aux any

	// Expiry cancels the parked request's timeout callback. Nil if the
	// entry was constructed without a scheduler (e.g. in tests that drive
	// expiry manually).
	Expiry transport.TimerHandle
}

// Table is the set of currently parked requests, keyed by request name. Not
// safe for concurrent use; per spec.md §5 all access happens on one event
// loop.
type Table struct {
	entries map[string]*Entry
}

// New returns an empty pending table.
func New() *Table {
	return &Table{entries: make(map[string]*Entry)}
}

// Add parks entry under its Name, replacing (and cancelling the expiry of)
// any entry already parked under that name. Returns false if a prior entry
// was replaced, true if this is the first time Name was parked.
func (t *Table) Add(entry *Entry) bool {
	prior, existed := t.entries[entry.Name]
	if existed && prior.Expiry != nil {
		prior.Expiry.Cancel()
	}
	t.entries[entry.Name] = entry
	return !existed
}

// Get returns the entry parked under name, if any.
func (t *Table) Get(name string) (*Entry, bool) {
	e, ok := t.entries[name]
	return e, ok
}

// Remove cancels (if present) and forgets the entry parked under name. Safe
// to call whether or not name is currently parked.
func (t *Table) Remove(name string) {
	if e, ok := t.entries[name]; ok {
		if e.Expiry != nil {
			e.Expiry.Cancel()
		}
		delete(t.entries, name)
	}
}

// Len returns the number of currently parked requests.
func (t *Table) Len() int {
	return len(t.entries)
}

// Walk calls fn once per parked entry. fn must not mutate the table; callers
// that need to remove entries while walking should collect names first and
// call Remove afterward.
func (t *Table) Walk(fn func(*Entry)) {
	for _, e := range t.entries {
		fn(e)
	}
}

// Names returns every currently parked request name, in no particular order.
func (t *Table) Names() []string {
	out := make([]string, 0, len(t.entries))
	for name := range t.entries {
		out = append(out, name)
	}
	return out
}
