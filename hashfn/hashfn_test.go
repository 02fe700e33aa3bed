// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hashfn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenDeterministic(t *testing.T) {
	require := require.New(t)

	t1 := Token("/test/memphis", 1)
	t2 := Token("/test/memphis", 1)
	require.Equal(t1, t2)

	t3 := Token("/test/memphis", 2)
	require.NotEqual(t1, t3)

	t4 := Token("/test/csu", 1)
	require.NotEqual(t1, t4)
}

func TestIndexVariesBySeed(t *testing.T) {
	require := require.New(t)

	b := []byte("some-bytes-to-hash")
	seen := map[uint32]struct{}{}
	for i := 0; i < 3; i++ {
		seen[Index(i, b)] = struct{}{}
	}
	require.Len(seen, 3, "expected distinct hashes across the 3 index seeds")
}

func TestCheckMatchesSeed11(t *testing.T) {
	require := require.New(t)

	b := []byte("check-me")
	require.Equal(Seeded(CheckSeed, b), Check(b))
}
