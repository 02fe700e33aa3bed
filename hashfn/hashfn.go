// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hashfn is the protocol's hash primitive: a 32-bit keyed hash over a
// byte string, used to place items in IBLT cells and Bloom filter bits and to
// compute IBLT cell checksums and publication tokens.
//
// The concrete function is MurmurHash3 x86_32. This is a wire-compatibility
// requirement, not an implementation choice: every peer must compute the same
// hash under the same seed for the sketches to reconcile, so the seeds below
// are protocol constants rather than ambient configuration.
package hashfn

import (
	"strconv"

	"github.com/spaolacci/murmur3"
)

// CheckSeed is the fixed seed used for IBLT cell checksums and, doubling as
// the canonical identity seed, for deriving publication tokens from
// "prefix/seq" strings. Peers that disagree on this value cannot interoperate.
const CheckSeed uint32 = 11

// Index computes the i'th placement hash (i in [0,k)) of b. i doubles as the
// seed, matching the original's per-hash-function seed convention.
func Index(i int, b []byte) uint32 {
	return murmur3.Sum32WithSeed(b, uint32(i))
}

// Check computes the IBLT cell checksum of b under the reserved check seed.
func Check(b []byte) uint32 {
	return murmur3.Sum32WithSeed(b, CheckSeed)
}

// Seeded computes the hash of b under an arbitrary seed, used by the Bloom
// filter's salt-driven index computation.
func Seeded(seed uint32, b []byte) uint32 {
	return murmur3.Sum32WithSeed(b, seed)
}

// Token derives the 32-bit identity of a published (prefix, seq) pair from
// its canonical "prefix/seq" byte encoding. Tokens are the only identity
// carried in the IBLT.
func Token(prefix string, seq uint32) uint32 {
	canonical := prefix + "/" + strconv.FormatUint(uint64(seq), 10)
	return Check([]byte(canonical))
}
