// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package psync

// MissingData describes a contiguous range of sequence numbers an engine
// just learned the application doesn't have yet. lowSeq = priorSeq+1;
// highSeq = the newly learned sequence number; lowSeq > highSeq is
// impossible (spec.md §6/§8).
type MissingData struct {
	Prefix  string
	LowSeq  uint32
	HighSeq uint32
}

// UpdateCallback is delivered whenever ingesting a response (full-sync) or a
// sync response (partial-sync) advances one or more prefixes.
type UpdateCallback func(updates []MissingData)

// RecieveHelloCallback is delivered once per successful partial-sync hello
// exchange. Spelling matches the protocol this core implements
// (original_source/src/logic-consumer.hpp's RecieveHelloCallback) rather
// than "correcting" a name peers and callers already depend on.
type RecieveHelloCallback func(payload string)

// FetchDataCallback is delivered by Consumer.Fetch when a specific named
// data item arrives.
type FetchDataCallback func(resp []byte)
