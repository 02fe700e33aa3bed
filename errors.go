// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package psync

import "errors"

// Sentinel errors surfaced by the engines, per spec.md §7's error taxonomy.
var (
	// ErrUnknownPrefix is returned (or silently absorbed, per call site) when
	// publishing a prefix that was never added with AddNode.
	ErrUnknownPrefix = errors.New("psync: unknown prefix")

	// ErrUndecodable names a peel that failed to reach the all-empty fixed
	// point: the symmetric difference exceeded the sketch's capacity. No
	// function returns it: iblt.Table.Peel reports the failure as ok=false,
	// and the engines count it and leave the request unanswered.
	ErrUndecodable = errors.New("psync: undecodable difference")

	// ErrMalformedRequestName names a request name with the wrong arity or a
	// non-numeric length field. No function returns it: the engines' request
	// handlers log such a name and leave it unanswered.
	ErrMalformedRequestName = errors.New("psync: malformed request name")

	// ErrCellCountMismatch is returned (wrapped) by iblt.Table.Subtract when
	// two IBLTs of different capacity are diffed.
	ErrCellCountMismatch = errors.New("psync: IBLT cell count mismatch")

	// ErrRegisterFailed is returned when the transport could not register a
	// prefix handler; per spec.md §7 this is fatal and the engine that hits
	// it is not usable.
	ErrRegisterFailed = errors.New("psync: prefix registration failed")
)
