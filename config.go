// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package psync is the naming-based publish/subscribe synchronization core:
// config, callbacks, and the MissingData record shared by the full-sync and
// partial-sync engines (packages fullsync and partialsync). See SPEC_FULL.md
// for the expanded requirements this module implements.
package psync

import (
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/psync/bloom"
)

// Config holds every option spec.md §6 recognizes. Fields with no sensible
// zero-value default are validated by Validate; the rest are used as set,
// with no fallback, so callers start from DefaultConfig for the documented
// defaults.
type Config struct {
	// ExpectedEntries sizes the IBLT (capacity for full-sync; also used by
	// partial-sync producers, whose IBLT mirrors the same prefix/seq set).
	ExpectedEntries int

	// SyncInterestLifetime is the outgoing request lifetime for full-sync.
	// The partial-sync consumer does not read it: its hello and sync
	// requests use a fixed 4s lifetime.
	SyncInterestLifetime time.Duration

	// SyncReplyFreshness is the freshness period engines set on sync
	// responses.
	SyncReplyFreshness time.Duration

	// HelloReplyFreshness is the freshness period the partial-sync producer
	// sets on hello responses.
	HelloReplyFreshness time.Duration

	// ProjectedCount and FalsePositiveRate configure the consumer's
	// subscription Bloom filter.
	ProjectedCount    uint64
	FalsePositiveRate float64

	// BloomBounds constrains the Bloom optimizer's search space; the zero
	// value means unbounded.
	BloomBounds bloom.Bounds

	// SyncPrefix is the name prefix the engines register with the
	// transport and carry sync/hello requests under.
	SyncPrefix string

	// UserPrefix is this participant's own producer prefix, added as a
	// sync node at construction.
	UserPrefix string
}

// DefaultConfig returns the values the original NLSR PSync implementation
// uses: a 4s sync interest lifetime, 1s reply freshness, and a Bloom target
// of 0.001 false-positive rate.
func DefaultConfig() Config {
	return Config{
		ExpectedEntries:       80,
		SyncInterestLifetime:  4 * time.Second,
		SyncReplyFreshness:    time.Second,
		HelloReplyFreshness:   time.Second,
		ProjectedCount:        10,
		FalsePositiveRate:     0.001,
		SyncPrefix:            "",
		UserPrefix:            "",
	}
}

// Validate checks the configuration for values the engines cannot operate
// with.
func (c Config) Validate() error {
	if c.ExpectedEntries <= 0 {
		return fmt.Errorf("psync: ExpectedEntries must be positive, got %d", c.ExpectedEntries)
	}
	if c.SyncInterestLifetime <= 0 {
		return fmt.Errorf("psync: SyncInterestLifetime must be positive")
	}
	if c.SyncPrefix == "" {
		return errors.New("psync: SyncPrefix must be set")
	}
	return nil
}

// SubscribeToAll reports whether this configuration matches the sentinel
// "subscribe to everything" mode spec.md §4.7 defines: projected count 1 and
// false positive rate exactly 0.001. It is deliberately a narrow, literal
// equality check — the original treats it as a magic combination rather than
// an explicit flag, and we keep that rather than inventing a cleaner API the
// wire format doesn't actually carry.
func (c Config) SubscribeToAll() bool {
	return c.ProjectedCount == 1 && c.FalsePositiveRate == 0.001
}
