// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package syncstate

import (
	"testing"

	"github.com/luxfi/psync/hashfn"
	"github.com/stretchr/testify/require"
)

func TestAddNodeThenUpdateSeq(t *testing.T) {
	require := require.New(t)

	table := New(80)
	table.AddNode("/a")

	seq, ok := table.SeqOf("/a")
	require.True(ok)
	require.Zero(seq)

	table.UpdateSeq("/a", 1)
	seq, ok = table.SeqOf("/a")
	require.True(ok)
	require.EqualValues(1, seq)

	tok := hashfn.Token("/a", 1)
	prefix, ok := table.PrefixForToken(tok)
	require.True(ok)
	require.Equal("/a", prefix)
}

func TestUpdateSeqIsIdempotentGoingBackwards(t *testing.T) {
	require := require.New(t)

	table := New(80)
	table.AddNode("/a")
	table.UpdateSeq("/a", 5)
	table.UpdateSeq("/a", 3) // no-op: 3 <= 5
	table.UpdateSeq("/a", 5) // no-op: 5 <= 5

	seq, _ := table.SeqOf("/a")
	require.EqualValues(5, seq)
}

func TestUpdateSeqRemovesOldTokenFromSketch(t *testing.T) {
	require := require.New(t)

	table := New(80)
	table.AddNode("/a")
	table.UpdateSeq("/a", 1)
	table.UpdateSeq("/a", 2)

	_, found := table.PrefixForToken(hashfn.Token("/a", 1))
	require.False(found, "stale token for seq 1 should no longer resolve to a prefix")

	p, found := table.PrefixForToken(hashfn.Token("/a", 2))
	require.True(found)
	require.Equal("/a", p)

	// The live sketch should contain exactly one unbalanced insert of
	// token(/a, 2): diffing against an empty table and peeling recovers it.
	empty := New(80)
	diff, err := table.Sketch().Subtract(empty.Sketch())
	require.NoError(err)
	positive, negative, ok := diff.Peel()
	require.True(ok)
	require.Equal([]uint32{hashfn.Token("/a", 2)}, positive)
	require.Empty(negative)
}

func TestRemoveNode(t *testing.T) {
	require := require.New(t)

	table := New(80)
	table.AddNode("/a")
	table.UpdateSeq("/a", 1)
	table.RemoveNode("/a")

	_, ok := table.SeqOf("/a")
	require.False(ok)
	_, ok = table.PrefixForToken(hashfn.Token("/a", 1))
	require.False(ok)
}

func TestSnapshotIsIndependentOfLiveSketch(t *testing.T) {
	require := require.New(t)

	table := New(80)
	table.AddNode("/a")
	table.UpdateSeq("/a", 1)

	snap := table.Snapshot()
	table.UpdateSeq("/a", 2)

	require.False(snap.Equal(table.Sketch()))
}
