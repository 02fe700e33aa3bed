// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package iblt

import (
	"testing"

	"github.com/luxfi/psync/hashfn"
	"github.com/stretchr/testify/require"
)

func TestInsertIdenticalYieldsEqualTables(t *testing.T) {
	require := require.New(t)

	token := hashfn.Token("/test/memphis", 1)

	a := New(10)
	a.Insert(token)

	b := New(10)
	b.Insert(token)

	require.True(a.Equal(b))

	wa, err := a.MarshalBinary()
	require.NoError(err)
	wb, err := b.MarshalBinary()
	require.NoError(err)
	require.Equal(wa, wb)
}

func TestPeelOneSidedDifference(t *testing.T) {
	require := require.New(t)

	token := hashfn.Token("/test/memphis", 1)

	a := New(10)
	a.Insert(token)
	b := New(10)

	diff, err := a.Subtract(b)
	require.NoError(err)

	positive, negative, ok := diff.Peel()
	require.True(ok)
	require.Equal([]uint32{token}, positive)
	require.Empty(negative)
}

func TestPeelTwoSidedDifference(t *testing.T) {
	require := require.New(t)

	tokenA := hashfn.Token("/test/memphis", 1)
	tokenB := hashfn.Token("/test/csu", 1)

	a := New(10)
	a.Insert(tokenA)
	b := New(10)
	b.Insert(tokenB)

	diff, err := a.Subtract(b)
	require.NoError(err)

	positive, negative, ok := diff.Peel()
	require.True(ok)
	require.Len(positive, 1)
	require.Len(negative, 1)
	require.Equal(tokenA, positive[0])
	require.Equal(tokenB, negative[0])
}

func TestCopyThenDivergeThenReconverge(t *testing.T) {
	require := require.New(t)

	x := hashfn.Token("/x", 1)
	y := hashfn.Token("/y", 1)
	z := hashfn.Token("/z", 1)

	a := New(10)
	a.Insert(x)

	b := a.Copy()

	a.Erase(x)
	a.Insert(y)

	b.Erase(x)
	b.Insert(z)
	b.Erase(z)
	b.Insert(y)

	require.True(a.Equal(b))
}

func TestInsertOrderIndependence(t *testing.T) {
	require := require.New(t)

	t1 := hashfn.Token("/a", 1)
	t2 := hashfn.Token("/b", 1)

	a := New(10)
	a.Insert(t1)
	a.Insert(t2)

	b := New(10)
	b.Insert(t2)
	b.Insert(t1)

	require.True(a.Equal(b))
}

func TestPeelFailsAboveCapacity(t *testing.T) {
	require := require.New(t)

	a := New(3)
	b := New(3)
	for i := uint32(0); i < 20; i++ {
		a.Insert(hashfn.Token("/many", i))
	}

	diff, err := a.Subtract(b)
	require.NoError(err)

	_, _, ok := diff.Peel()
	require.False(ok)
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	require := require.New(t)

	a := New(10)
	a.Insert(hashfn.Token("/test/memphis", 1))
	a.Insert(hashfn.Token("/test/csu", 4))

	raw, err := a.MarshalBinary()
	require.NoError(err)

	decoded, err := Unmarshal(10, raw)
	require.NoError(err)
	require.True(a.Equal(decoded))
}

func TestNewFromValuesZeroCountGuard(t *testing.T) {
	require := require.New(t)

	n := sizeFor(1)
	values := make([]uint32, 3*n)
	// Cell 0 carries a nonzero keySum/keyCheck but a zero count, as would
	// happen for a cell where inserts and erases cancel out exactly. The
	// guarded assignment leaves count at its zero default either way.
	values[1] = 0xdeadbeef
	values[2] = 0xfeedface

	table, err := NewFromValues(1, values)
	require.NoError(err)
	require.Zero(table.cells[0].count)
	require.Equal(uint32(0xdeadbeef), table.cells[0].keySum)
}

func TestSubtractRequiresEqualSize(t *testing.T) {
	require := require.New(t)

	a := New(10)
	b := New(20)
	_, err := a.Subtract(b)
	require.Error(err)
}
