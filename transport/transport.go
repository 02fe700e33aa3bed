// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transport declares the boundary spec.md §1 and §6 place outside
// the core: the named-request/response carrier, and the scheduler the
// engines use to defer and cancel timers. Concrete transports (the
// content-centric networking face, its signing keychain, its content store)
// are explicitly out of scope; this package only types the contract the core
// consumes.
//
// Grounded on the teacher's networking/sender.Sender and
// networking/timeout.Manager shape — a request/response RPC layer keyed by
// an identifier with response/nack/timeout callbacks — generalized here from
// validator-ID-keyed consensus messages to name-keyed content requests.
package transport

import (
	"context"
	"time"
)

// NackReason is an opaque carrier-supplied reason code for a negative
// acknowledgement.
type NackReason int

// Response is what an engine publishes in answer to a satisfied request.
type Response struct {
	Name       string
	Freshness  time.Duration
	Payload    []byte
	FinalBlock bool // set on the last segment of a fragmented reply
}

// RequestCallbacks are invoked by the carrier as the three possible outcomes
// of an outstanding request. Exactly one fires per request.
type RequestCallbacks struct {
	OnResponse func(resp Response)
	OnNack     func(reason NackReason)
	OnTimeout  func()
}

// RequestHandle lets the issuer cancel an outstanding request from the local
// side before it resolves.
type RequestHandle interface {
	Cancel()
}

// Requester issues named requests and is given the carrier's outcome via
// RequestCallbacks.
type Requester interface {
	ExpressRequest(ctx context.Context, name string, lifetime time.Duration, mustBeFresh bool, cb RequestCallbacks) RequestHandle
}

// RequestHandler answers an incoming request addressed to a registered
// prefix, either immediately (returning a Response) or by choosing not to
// answer yet (returning ok=false, in which case the engine is responsible
// for parking it). lifetime is the requester's carrier lifetime for this
// specific request, passed through so a handler that parks the request can
// size its own expiry to match (spec.md §4.5/§4.6).
type RequestHandler func(requestName string, lifetime time.Duration) (resp Response, ok bool)

// PrefixRegistrar lets an engine claim responsibility for all requests under
// a name prefix.
type PrefixRegistrar interface {
	RegisterPrefix(prefix string, handler RequestHandler, onRegisterFailed func(prefix string, reason string))
}

// Publisher puts a response onto the carrier. The carrier signs it before
// transmission; the core never sees key material.
type Publisher interface {
	Put(resp Response)
}

// TimerHandle cancels a scheduled task. Cancelling an already-fired or
// already-cancelled handle is a no-op.
type TimerHandle interface {
	Cancel()
}

// Scheduler defers a task by a duration. Implementations must support
// cancellation and must not invoke task after Cancel has returned, per
// spec.md §5.
type Scheduler interface {
	After(d time.Duration, task func()) TimerHandle
}

// Capability bundles everything an engine needs from the outside world. A
// single value normally implements all four roles (one face, one scheduler)
// but they're kept as separate interfaces so tests can compose fakes freely,
// and so production code can swap the scheduler alone (e.g. for a
// deterministic one in simulation) without reimplementing the carrier.
type Capability interface {
	Requester
	PrefixRegistrar
	Publisher
	Scheduler
}

// Op names a logical request/response kind purely for logging and metrics
// labels. Dispatch on the wire is entirely name-prefix based; Op is never
// used to route a message.
type Op int

const (
	OpFullSyncRequest Op = iota
	OpFullSyncResponse
	OpHelloRequest
	OpHelloResponse
	OpSyncRequest
	OpSyncResponse
	OpFetchRequest
)

func (o Op) String() string {
	switch o {
	case OpFullSyncRequest:
		return "full-sync-request"
	case OpFullSyncResponse:
		return "full-sync-response"
	case OpHelloRequest:
		return "hello-request"
	case OpHelloResponse:
		return "hello-response"
	case OpSyncRequest:
		return "sync-request"
	case OpSyncResponse:
		return "sync-response"
	case OpFetchRequest:
		return "fetch-request"
	default:
		return "unknown-op"
	}
}
