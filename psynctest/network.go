// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package psynctest provides an in-memory transport.Capability so engine
// tests can wire two or more participants directly together without a real
// content-centric carrier.
//
// Grounded on the teacher's networking/sender/sendertest.TestSender (a
// recording fake the caller inspects after the fact) and
// networking/tracker/trackermock.MockTracker (a map-backed fake with no
// concurrency control, matching this module's single-event-loop model).
// Timer scheduling is driven off timer/mockable.Clock so tests can advance
// virtual time deterministically instead of sleeping.
package psynctest

import (
	"context"
	"sort"
	"time"

	"github.com/luxfi/psync/timer/mockable"
	"github.com/luxfi/psync/transport"
)

// NoRoute is the NackReason ExpressRequest reports when no participant has
// registered a prefix covering the requested name.
const NoRoute transport.NackReason = -1

// Network is a shared in-memory carrier. Every Node registered on it can
// reach every other node's registered prefixes directly, synchronously,
// as if delivery were instantaneous — the participants' own scheduling
// (resend timers, half-lifetime waits) is what the engines rely on.
type Network struct {
	clock *mockable.Clock

	registrations []registration
	waiting       map[string][]waiter
	timers        []*virtualTimer
	nextTimerID   int
	nextWaiterID  int
	nextNodeID    int
}

type registration struct {
	owner   int
	prefix  string
	handler transport.RequestHandler
}

type waiter struct {
	id int
	cb transport.RequestCallbacks
}

// NewNetwork returns an empty network backed by a fresh mockable clock set
// to the given time (use time.Time{} if the absolute value doesn't matter).
func NewNetwork(start time.Time) *Network {
	clock := mockable.NewClock()
	clock.Set(start)
	return &Network{
		clock:   clock,
		waiting: make(map[string][]waiter),
	}
}

// Clock returns the network's shared virtual clock, for tests that want to
// read the current time rather than just advancing it.
func (n *Network) Clock() *mockable.Clock {
	return n.clock
}

// Node returns a transport.Capability view of the network for one
// participant. Every Node sharing a Network sees the same virtual clock and
// can reach every other Node's registered prefixes, but never its own — a
// participant is never its own peer, matching a real carrier where Interests
// leave the local node.
func (n *Network) Node() transport.Capability {
	n.nextNodeID++
	return &nodeView{net: n, owner: n.nextNodeID}
}

// Advance moves the virtual clock forward by d and fires (in nondecreasing
// deadline order) every timer whose deadline has now passed.
func (n *Network) Advance(d time.Duration) {
	n.clock.Advance(d)
	now := n.clock.Now()

	due := make([]*virtualTimer, 0)
	remaining := n.timers[:0]
	for _, t := range n.timers {
		if t.cancelled {
			continue
		}
		if !t.deadline.After(now) {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	n.timers = remaining

	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		if !t.cancelled {
			t.task()
		}
	}
}

// nodeView adapts the shared Network into a per-participant
// transport.Capability.
type nodeView struct {
	net   *Network
	owner int
}

func (v *nodeView) RegisterPrefix(prefix string, handler transport.RequestHandler, onRegisterFailed func(prefix string, reason string)) {
	v.net.registrations = append(v.net.registrations, registration{owner: v.owner, prefix: prefix, handler: handler})
}

func (v *nodeView) ExpressRequest(ctx context.Context, name string, lifetime time.Duration, mustBeFresh bool, cb transport.RequestCallbacks) transport.RequestHandle {
	h := lookupHandler(v.net.registrations, v.owner, name)
	if h == nil {
		if cb.OnNack != nil {
			cb.OnNack(NoRoute)
		}
		return noopHandle{}
	}

	if resp, ok := h(name, lifetime); ok {
		if cb.OnResponse != nil {
			cb.OnResponse(resp)
		}
		return noopHandle{}
	}

	v.net.nextWaiterID++
	id := v.net.nextWaiterID
	v.net.waiting[name] = append(v.net.waiting[name], waiter{id: id, cb: cb})
	return &requestHandle{net: v.net, name: name, id: id}
}

// Put delivers resp to whichever still-parked request it answers. A Data
// name in this protocol extends the Interest name it satisfies (the engines
// append their own trailing sketch), so the matching waiter is found by
// longest-prefix match against resp.Name rather than by exact equality.
func (v *nodeView) Put(resp transport.Response) {
	bestName := ""
	bestLen := -1
	for name := range v.net.waiting {
		if hasPrefix(resp.Name, name) && len(name) > bestLen {
			bestName = name
			bestLen = len(name)
		}
	}
	if bestLen < 0 {
		return
	}

	waiters := v.net.waiting[bestName]
	delete(v.net.waiting, bestName)
	for _, w := range waiters {
		if w.cb.OnResponse != nil {
			w.cb.OnResponse(resp)
		}
	}
}

func (v *nodeView) After(d time.Duration, task func()) transport.TimerHandle {
	v.net.nextTimerID++
	t := &virtualTimer{deadline: v.net.clock.Now().Add(d), task: task}
	v.net.timers = append(v.net.timers, t)
	return t
}

func lookupHandler(regs []registration, requester int, name string) transport.RequestHandler {
	var best transport.RequestHandler
	bestLen := -1
	for _, r := range regs {
		if r.owner == requester {
			continue
		}
		if hasPrefix(name, r.prefix) && len(r.prefix) > bestLen {
			best = r.handler
			bestLen = len(r.prefix)
		}
	}
	return best
}

func hasPrefix(name, prefix string) bool {
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}

type virtualTimer struct {
	deadline  time.Time
	task      func()
	cancelled bool
}

func (t *virtualTimer) Cancel() { t.cancelled = true }

type requestHandle struct {
	net  *Network
	name string
	id   int
}

func (h *requestHandle) Cancel() {
	ws := h.net.waiting[h.name]
	for i, w := range ws {
		if w.id == h.id {
			h.net.waiting[h.name] = append(ws[:i], ws[i+1:]...)
			return
		}
	}
}

type noopHandle struct{}

func (noopHandle) Cancel() {}
