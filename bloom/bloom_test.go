// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bloom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptimizeFeasible(t *testing.T) {
	require := require.New(t)

	params, err := Optimize(1000, 0.01, Bounds{})
	require.NoError(err)
	require.Greater(params.M, uint32(0))
	require.Greater(params.K, uint32(0))
}

func TestOptimizeRejectsBadInputs(t *testing.T) {
	require := require.New(t)

	_, err := Optimize(0, 0.01, Bounds{})
	require.Error(err)

	_, err = Optimize(10, 0, Bounds{})
	require.Error(err)

	_, err = Optimize(10, 1.5, Bounds{})
	require.Error(err)
}

func TestIdenticalConfigProducesIdenticalFilters(t *testing.T) {
	require := require.New(t)

	params := Parameters{M: 256, K: 4}
	a := New(params, 42)
	b := New(params, 42)

	a.Insert([]byte("/x"))
	b.Insert([]byte("/x"))

	ra, err := a.MarshalBinary()
	require.NoError(err)
	rb, err := b.MarshalBinary()
	require.NoError(err)
	require.Equal(ra, rb)
}

func TestContainsAfterInsert(t *testing.T) {
	require := require.New(t)

	params, err := Optimize(2, 0.01, Bounds{})
	require.NoError(err)
	f := New(params, 7)

	f.Insert([]byte("/x"))
	require.True(f.Contains([]byte("/x")))
}

func TestFalsePositiveRateWithinBound(t *testing.T) {
	require := require.New(t)

	const n = 200
	const target = 0.01

	params, err := Optimize(n, target, Bounds{})
	require.NoError(err)

	f := New(params, 123)
	for i := 0; i < n; i++ {
		f.Insert([]byte(fmt.Sprintf("/member/%d", i)))
	}

	falsePositives := 0
	const trials = 5000
	for i := 0; i < trials; i++ {
		key := []byte(fmt.Sprintf("/absent/%d", i))
		if f.Contains(key) {
			falsePositives++
		}
	}

	rate := float64(falsePositives) / float64(trials)
	require.LessOrEqual(rate, target*1.05, "false positive rate %v exceeded target %v by more than 5%%", rate, target)
}

func TestOptimizeReSolvesMWhenKIsClamped(t *testing.T) {
	require := require.New(t)

	const n = 200
	const target = 0.01

	unbounded, err := Optimize(n, target, Bounds{})
	require.NoError(err)
	require.Greater(unbounded.K, uint32(4), "test requires the closed-form k to exceed the bound below")

	// MaxK forces k away from its closed-form optimum. Optimize must
	// re-solve m for the clamped k rather than pairing the old m (optimal
	// for the old k) with the new one, or the resulting filter silently
	// misses the target false-positive rate.
	params, err := Optimize(n, target, Bounds{MaxK: 4})
	require.NoError(err)
	require.Equal(uint32(4), params.K)
	require.Greater(params.M, uint32(0))

	f := New(params, 123)
	for i := 0; i < n; i++ {
		f.Insert([]byte(fmt.Sprintf("/member/%d", i)))
	}

	falsePositives := 0
	const trials = 20000
	for i := 0; i < trials; i++ {
		key := []byte(fmt.Sprintf("/absent/%d", i))
		if f.Contains(key) {
			falsePositives++
		}
	}

	rate := float64(falsePositives) / float64(trials)
	require.LessOrEqual(rate, target*1.5, "false positive rate %v exceeded target %v by more than 50%% even after re-solving m for the clamped k", rate, target)
}

func TestWireRoundTrip(t *testing.T) {
	require := require.New(t)

	params := Parameters{M: 64, K: 3}
	f := New(params, 9)
	f.Insert([]byte("/a"))
	f.Insert([]byte("/b"))

	raw, err := f.MarshalBinary()
	require.NoError(err)

	decoded, err := Decode(params, 9, raw)
	require.NoError(err)
	require.True(decoded.Contains([]byte("/a")))
	require.True(decoded.Contains([]byte("/b")))
}
