// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package jitter provides the uniform random draws the engines use for
// resend/backoff timing. Spec.md §9's design notes call out scheduling
// jitter as a source that "must be explicit ... so tests can inject
// determinism"; callers own a *rand.Rand (seed it however they like, or
// share one across an engine for reproducible simulation) instead of the
// package reaching for the global math/rand source.
package jitter

import "math/rand"

// Symmetric draws a uniform integer in [-bound, +bound], used for the
// full-sync resend tick (±200ms around half the interest lifetime).
func Symmetric(r *rand.Rand, bound int) int {
	if bound <= 0 {
		return 0
	}
	return r.Intn(2*bound+1) - bound
}

// Range draws a uniform integer in [lo, hi], used for the partial-sync
// consumer's resync and nack backoff (spec.md's [100, 500] ms window).
func Range(r *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.Intn(hi-lo+1)
}
