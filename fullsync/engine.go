// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fullsync implements the full-sync engine: every participant holds
// an IBLT over the entire (prefix, seq) set and reconciles its full
// difference with whichever peer it talks to, with no subscription
// filtering. Grounded on original_source/src/logic-full.cpp, restructured
// per spec.md §9 as composition (a syncstate.Table plus a transport.Capability)
// rather than the original's inheritance from a shared base engine.
package fullsync

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/log"

	"github.com/luxfi/psync"
	"github.com/luxfi/psync/iblt"
	"github.com/luxfi/psync/internal/jitter"
	"github.com/luxfi/psync/namewire"
	"github.com/luxfi/psync/pending"
	"github.com/luxfi/psync/syncstate"
	"github.com/luxfi/psync/transport"
)

const resendJitterBound = 200 * time.Millisecond

// Engine is one full-sync participant. Not safe for concurrent use — per
// spec.md §5 every method here is expected to run on the transport's single
// event loop.
type Engine struct {
	log     log.Logger
	cfg     psync.Config
	cap     transport.Capability
	state   *syncstate.Table
	parked  *pending.Table
	metrics *engineMetrics
	rng     *rand.Rand
	onUpdate psync.UpdateCallback

	outstandingReq transport.RequestHandle
	resendTimer    transport.TimerHandle
}

// NewEngine constructs a full-sync engine, registers the sync prefix,
// installs the local user prefix as a sync node, and issues the first
// outgoing request. Returns ErrRegisterFailed if the transport rejects the
// prefix registration (spec.md §7: fatal, the engine is not usable).
func NewEngine(
	logger log.Logger,
	cfg psync.Config,
	capability transport.Capability,
	onUpdate psync.UpdateCallback,
	registerer prometheus.Registerer,
	rng *rand.Rand,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics, err := newMetrics(registerer)
	if err != nil {
		return nil, fmt.Errorf("fullsync: registering metrics: %w", err)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	e := &Engine{
		log:      logger,
		cfg:      cfg,
		cap:      capability,
		state:    syncstate.New(cfg.ExpectedEntries),
		parked:   pending.New(),
		metrics:  metrics,
		rng:      rng,
		onUpdate: onUpdate,
	}

	if cfg.UserPrefix != "" {
		e.state.AddNode(cfg.UserPrefix)
	}

	registerFailed := false
	capability.RegisterPrefix(cfg.SyncPrefix, e.handleRequest, func(prefix string, reason string) {
		registerFailed = true
		e.log.Error("failed to register full-sync prefix",
			zap.String("prefix", prefix),
			zap.String("reason", reason),
		)
	})
	if registerFailed {
		return nil, psync.ErrRegisterFailed
	}

	e.issueRequest()
	e.scheduleResend()
	return e, nil
}

// PublishName advances prefix's sequence number by one and satisfies any
// parked request that can now be answered. Returns ErrUnknownPrefix if
// prefix was never added as a sync node.
func (e *Engine) PublishName(prefix string) error {
	seq, ok := e.state.SeqOf(prefix)
	if !ok {
		return psync.ErrUnknownPrefix
	}
	e.state.UpdateSeq(prefix, seq+1)

	var satisfied []string
	e.parked.Walk(func(entry *pending.Entry) {
		diff, err := e.state.Sketch().Subtract(entry.Snapshot)
		if err != nil {
			e.log.Warn("cell count mismatch against parked snapshot", zap.String("name", entry.Name))
			satisfied = append(satisfied, entry.Name)
			return
		}
		positive, _, ok := diff.Peel()
		if !ok {
			e.metrics.peelFailures.Inc()
			satisfied = append(satisfied, entry.Name)
			return
		}
		body := e.buildBody(positive)
		if body == "" {
			return
		}
		e.cap.Put(e.buildResponse(entry.Name, body))
		e.metrics.requestsAnswered.Inc()
		satisfied = append(satisfied, entry.Name)
	})
	for _, name := range satisfied {
		e.parked.Remove(name)
	}
	return nil
}

// issueRequest cancels any outstanding request and issues a fresh one
// carrying the current local IBLT.
func (e *Engine) issueRequest() {
	if e.outstandingReq != nil {
		e.outstandingReq.Cancel()
	}

	sketchBytes, err := e.state.Sketch().MarshalBinary()
	if err != nil {
		e.log.Error("failed to marshal local sketch", zap.Error(err))
		return
	}
	name := namewire.AppendBytes(e.cfg.SyncPrefix, sketchBytes)

	e.outstandingReq = e.cap.ExpressRequest(context.Background(), name, e.cfg.SyncInterestLifetime, true, transport.RequestCallbacks{
		OnResponse: e.handleResponse,
		OnNack:     e.handleNack,
		OnTimeout:  e.handleTimeout,
	})
	e.metrics.requestsIssued.Inc()
}

// scheduleResend (re)arms the half-lifetime-plus-jitter tick that drives the
// outgoing-request loop independent of any particular request's outcome.
func (e *Engine) scheduleResend() {
	if e.resendTimer != nil {
		e.resendTimer.Cancel()
	}
	delay := e.cfg.SyncInterestLifetime/2 + jitterDuration(e.rng)
	e.resendTimer = e.cap.After(delay, func() {
		e.issueRequest()
		e.scheduleResend()
	})
}

func jitterDuration(rng *rand.Rand) time.Duration {
	return time.Duration(jitter.Symmetric(rng, int(resendJitterBound)))
}

func (e *Engine) handleNack(reason transport.NackReason) {
	e.log.Debug("full-sync request nacked", zap.Int("reason", int(reason)))
	e.scheduleResend()
}

func (e *Engine) handleTimeout() {
	e.log.Debug("full-sync request timed out, waiting for scheduled resend")
}

// handleResponse ingests a full-sync response payload, advances local state,
// and reports progress to the application.
func (e *Engine) handleResponse(resp transport.Response) {
	updates := e.ingest(resp.Payload)
	e.parked.Remove(resp.Name)

	if len(updates) > 0 {
		if e.onUpdate != nil {
			e.onUpdate(updates)
		}
		e.issueRequest()
		e.scheduleResend()
	}
	// No new information: let the existing resend timer fire on its normal
	// cadence rather than retrying immediately against a stale response.
}

func (e *Engine) ingest(payload []byte) []psync.MissingData {
	var updates []psync.MissingData
	for _, line := range strings.Split(string(payload), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		prefix, seq, err := parseLine(line)
		if err != nil {
			e.log.Warn("skipping malformed response line", zap.String("line", line))
			continue
		}
		prior, _ := e.state.SeqOf(prefix)
		if seq <= prior {
			continue
		}
		e.state.UpdateSeq(prefix, seq)
		updates = append(updates, psync.MissingData{Prefix: prefix, LowSeq: prior + 1, HighSeq: seq})
	}
	return updates
}

// handleRequest answers or parks an incoming full-sync request.
func (e *Engine) handleRequest(name string, lifetime time.Duration) (transport.Response, bool) {
	segments := namewire.Split(name)
	prefixSegments := namewire.Split(e.cfg.SyncPrefix)
	if len(segments) < len(prefixSegments) {
		e.log.Warn("malformed full-sync request name", zap.String("name", name))
		return transport.Response{}, false
	}
	rest := segments[len(prefixSegments):]

	peerBytes, _, err := namewire.TakeBytes(rest)
	if err != nil {
		e.log.Warn("malformed full-sync request name", zap.String("name", name), zap.Error(err))
		return transport.Response{}, false
	}
	peerSketch, err := iblt.Unmarshal(e.cfg.ExpectedEntries, peerBytes)
	if err != nil {
		e.log.Warn("undecodable peer sketch in request", zap.String("name", name), zap.Error(err))
		return transport.Response{}, false
	}

	diff, err := e.state.Sketch().Subtract(peerSketch)
	if err != nil {
		e.log.Error("cell count mismatch against incoming sketch", zap.Error(err))
		return transport.Response{}, false
	}
	positive, negative, ok := diff.Peel()
	if !ok {
		e.metrics.peelFailures.Inc()
		return transport.Response{}, false
	}

	body := e.buildBody(positive)
	threshold := e.cfg.ExpectedEntries / 2
	if body != "" || len(positive)+len(negative) >= threshold {
		e.metrics.requestsAnswered.Inc()
		return e.buildResponse(name, body), true
	}

	e.parked.Add(&pending.Entry{
		Name:     name,
		Snapshot: peerSketch,
		Expiry: e.cap.After(lifetime, func() {
			e.parked.Remove(name)
			e.metrics.requestsExpired.Inc()
		}),
	})
	e.metrics.requestsParked.Inc()
	return transport.Response{}, false
}

// buildBody renders the positive-side peel result (tokens this engine has
// that the peer/requester doesn't) as newline-joined "prefix seq" lines,
// skipping any prefix this engine doesn't recognize (seq == 0, i.e. never
// published) or cannot map back from its token.
func (e *Engine) buildBody(positive []uint32) string {
	var lines []string
	for _, tok := range positive {
		prefix, ok := e.state.PrefixForToken(tok)
		if !ok {
			continue
		}
		seq, ok := e.state.SeqOf(prefix)
		if !ok || seq == 0 {
			continue
		}
		lines = append(lines, prefix+" "+strconv.FormatUint(uint64(seq), 10))
	}
	return strings.Join(lines, "\n")
}

func (e *Engine) buildResponse(requestName string, body string) transport.Response {
	sketchBytes, err := e.state.Sketch().MarshalBinary()
	if err != nil {
		e.log.Error("failed to marshal response sketch", zap.Error(err))
	}
	return transport.Response{
		Name:      namewire.AppendBytes(requestName, sketchBytes),
		Freshness: e.cfg.SyncReplyFreshness,
		Payload:   []byte(body),
	}
}

func parseLine(line string) (prefix string, seq uint32, err error) {
	idx := strings.LastIndexByte(line, ' ')
	if idx < 0 {
		return "", 0, fmt.Errorf("fullsync: malformed line %q", line)
	}
	n, err := strconv.ParseUint(line[idx+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("fullsync: malformed sequence in line %q: %w", line, err)
	}
	return line[:idx], uint32(n), nil
}
