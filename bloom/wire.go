// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bloom

import "fmt"

// MarshalBinary packs the filter's m bits into ceil(m/8) bytes, bit i living
// at byte i/8, mask 1<<(i%8) — the same little-endian-within-byte convention
// as original_source's bit_mask table. Parameters are not part of this
// encoding: the sync request carries n and p as separate name components,
// and the receiver re-derives (m, k) from them with Optimize.
func (f *Filter) MarshalBinary() ([]byte, error) {
	nBytes := (f.params.M + 7) / 8
	out := make([]byte, nBytes)
	for i := uint32(0); i < f.params.M; i++ {
		if f.bits.Test(uint(i)) {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out, nil
}

// Decode reconstructs a filter's bit table from raw bytes produced by
// MarshalBinary, given the parameters and seed the caller already
// reconstructed from the sync request's other components.
func Decode(params Parameters, seed uint32, raw []byte) (*Filter, error) {
	want := (params.M + 7) / 8
	if uint32(len(raw)) != want {
		return nil, fmt.Errorf("bloom: expected %d bytes for m=%d bits, got %d", want, params.M, len(raw))
	}
	f := New(params, seed)
	for i := uint32(0); i < params.M; i++ {
		if raw[i/8]&(1<<(i%8)) != 0 {
			f.bits.Set(uint(i))
		}
	}
	return f, nil
}
