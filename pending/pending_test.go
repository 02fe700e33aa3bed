// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pending

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/psync/iblt"
)

type fakeTimer struct {
	cancelled bool
}

func (f *fakeTimer) Cancel() { f.cancelled = true }

func TestAddGetRemove(t *testing.T) {
	require := require.New(t)

	tbl := New()
	require.Equal(0, tbl.Len())

	timer := &fakeTimer{}
	entry := &Entry{Name: "/sync/req1", Snapshot: iblt.New(10), Expiry: timer}

	isNew := tbl.Add(entry)
	require.True(isNew)
	require.Equal(1, tbl.Len())

	got, ok := tbl.Get("/sync/req1")
	require.True(ok)
	require.Same(entry, got)

	tbl.Remove("/sync/req1")
	require.Equal(0, tbl.Len())
	require.True(timer.cancelled)

	_, ok = tbl.Get("/sync/req1")
	require.False(ok)
}

func TestAddReplacesAndCancelsPrior(t *testing.T) {
	require := require.New(t)

	tbl := New()
	first := &fakeTimer{}
	second := &fakeTimer{}

	isNew := tbl.Add(&Entry{Name: "/sync/req1", Snapshot: iblt.New(10), Expiry: first})
	require.True(isNew)

	isNew = tbl.Add(&Entry{Name: "/sync/req1", Snapshot: iblt.New(10), Expiry: second})
	require.False(isNew)
	require.True(first.cancelled)
	require.False(second.cancelled)
	require.Equal(1, tbl.Len())
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	tbl := New()
	tbl.Remove("/never/parked")
	require.Equal(t, 0, tbl.Len())
}

func TestWalkAndNames(t *testing.T) {
	require := require.New(t)

	tbl := New()
	tbl.Add(&Entry{Name: "/a", Snapshot: iblt.New(10)})
	tbl.Add(&Entry{Name: "/b", Snapshot: iblt.New(10)})

	seen := make(map[string]bool)
	tbl.Walk(func(e *Entry) { seen[e.Name] = true })
	require.Len(seen, 2)
	require.True(seen["/a"])
	require.True(seen["/b"])

	names := tbl.Names()
	require.ElementsMatch([]string{"/a", "/b"}, names)
}
