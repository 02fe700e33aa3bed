// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bloom implements the classical m-bit/k-hash Bloom filter used by
// partial-sync subscribers to announce interest in a subset of producer
// prefixes. Grounded on original_source/src/bloom-filter.hpp (only the header
// survived distillation; the closed-form optimizer and salt generator below
// follow spec.md §4.3's formulas directly) and on the bit-vector shape of
// github.com/bits-and-blooms/bitset, a dependency the teacher repo already
// pulls in transitively.
package bloom

import (
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/luxfi/psync/hashfn"
)

// Seed is the protocol-wide salt-derivation seed. Because the wire format
// carries only the filter's raw bits (spec.md §4.3) and not its salts, every
// participant must derive salts the same way from the same seed for a
// producer's Contains test against a consumer-built filter to mean anything
// — this is a protocol constant in the spirit of hashfn.CheckSeed, not a
// per-instance configuration choice.
const Seed uint32 = 0x50535946 // "PSYF"

// Parameters are the (m, k) a filter was built with: m bits, k salts.
type Parameters struct {
	M uint32
	K uint32
}

// Bounds constrains the search space Optimize is allowed to pick from. A
// zero value in any field means "no bound in that direction".
type Bounds struct {
	MinM, MaxM uint32
	MinK, MaxK uint32
}

// Optimize computes the (m, k) that minimize table size subject to bounds
// while targeting false-positive rate p for a projected n-element set,
// starting from the closed-form optimum m = -n*ln(p)/(ln2)^2,
// k = round((m/n)*ln2). When a bound forces either value away from that
// optimum, the other value is re-solved for the bound-feasible one rather
// than clamped independently, so the pair stays as close to the target rate
// as the bounds allow instead of drifting away from it silently.
func Optimize(n uint64, p float64, bounds Bounds) (Parameters, error) {
	if n == 0 {
		return Parameters{}, fmt.Errorf("bloom: projected element count must be positive")
	}
	if p <= 0 || p >= 1 {
		return Parameters{}, fmt.Errorf("bloom: false positive rate must be in (0,1), got %v", p)
	}

	nf := float64(n)
	ln2 := math.Ln2
	m := math.Ceil(-nf * math.Log(p) / (ln2 * ln2))
	k := math.Round((m / nf) * ln2)
	if k < 1 {
		k = 1
	}

	// If a k bound forces k away from its closed-form value, re-minimize m
	// for the clamped k so the filter still targets p for that k, instead of
	// keeping the old m (which was only optimal for the old k).
	kClamped := clampFloat(k, bounds.MinK, bounds.MaxK)
	if kClamped < 1 {
		kClamped = 1
	}
	if kClamped != k {
		if reM, ok := mForK(nf, p, kClamped); ok {
			m = reM
		}
		k = kClamped
	}

	// If m is still out of bounds — either an m bound applies directly, or
	// the re-solved m above still doesn't fit — clamp m and re-derive k for
	// the clamped m, rather than pinning a k that no longer matches it.
	mClamped := clampFloat(m, bounds.MinM, bounds.MaxM)
	if mClamped != m {
		m = mClamped
		k = math.Round((m / nf) * ln2)
		if k < 1 {
			k = 1
		}
		k = clampFloat(k, bounds.MinK, bounds.MaxK)
		if k < 1 {
			k = 1
		}
	}

	mInt := uint32(m)
	kInt := uint32(k)
	if kInt == 0 {
		kInt = 1
	}
	if mInt == 0 {
		return Parameters{}, fmt.Errorf("bloom: no feasible table size for n=%d p=%v within bounds", n, p)
	}

	return Parameters{M: mInt, K: kInt}, nil
}

// mForK solves the Bloom filter false-positive formula p = (1-e^{-kn/m})^k
// for m given a fixed k: m = -kn/ln(1-p^{1/k}). Returns ok=false if that k is
// too small for p to be achievable at all (1-p^(1/k) <= 0).
func mForK(n, p, k float64) (float64, bool) {
	root := math.Pow(p, 1/k)
	denom := math.Log(1 - root)
	if denom >= 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
		return 0, false
	}
	return math.Ceil(-k * n / denom), true
}

func clampFloat(v float64, min, max uint32) float64 {
	if min != 0 && v < float64(min) {
		v = float64(min)
	}
	if max != 0 && v > float64(max) {
		v = float64(max)
	}
	return v
}

// Filter is a configured, mutable Bloom filter.
type Filter struct {
	params Parameters
	salts  []uint32
	bits   *bitset.BitSet
}

// New builds a filter from params, deriving k deterministic salts from seed
// via a 32-bit xorshift iterator. Two peers constructing a Filter with the
// same params and seed produce bit-identical filters before any insert.
func New(params Parameters, seed uint32) *Filter {
	return &Filter{
		params: params,
		salts:  deriveSalts(params.K, seed),
		bits:   bitset.New(uint(params.M)),
	}
}

// deriveSalts produces k 32-bit salts from a seed using a xorshift32
// iterator: simple, deterministic, and identical across platforms, which
// spec.md's design notes require of the salt generator.
func deriveSalts(k uint32, seed uint32) []uint32 {
	if seed == 0 {
		seed = 0x9e3779b9 // xorshift cannot start at zero
	}
	salts := make([]uint32, k)
	x := seed
	for i := range salts {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		salts[i] = x
	}
	return salts
}

func (f *Filter) indices(key []byte) []uint {
	idx := make([]uint, len(f.salts))
	for i, salt := range f.salts {
		idx[i] = uint(hashfn.Seeded(salt, key)) % uint(f.params.M)
	}
	return idx
}

// Insert adds key to the filter.
func (f *Filter) Insert(key []byte) {
	for _, i := range f.indices(key) {
		f.bits.Set(i)
	}
}

// Contains reports whether key may have been inserted (false positives
// possible, false negatives impossible).
func (f *Filter) Contains(key []byte) bool {
	for _, i := range f.indices(key) {
		if !f.bits.Test(i) {
			return false
		}
	}
	return true
}

// Parameters returns the (m, k) this filter was built with.
func (f *Filter) Parameters() Parameters {
	return f.params
}
