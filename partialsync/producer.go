// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package partialsync implements the partial-sync engine: a Producer that
// answers hello/sync requests filtered through each subscriber's own Bloom
// filter, and a Consumer that drives the hello-then-sync state machine and a
// retrying fetch() helper. Grounded on original_source/src/logic-producer.cpp
// and logic-consumer.cpp; kept in one package the way the teacher keeps
// tightly coupled roles (poll.Set/poll.Poll, bootstrap's getter/putter pairs)
// together rather than splitting into sibling modules prematurely.
package partialsync

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/log"

	"github.com/luxfi/psync"
	"github.com/luxfi/psync/bloom"
	"github.com/luxfi/psync/iblt"
	"github.com/luxfi/psync/namewire"
	"github.com/luxfi/psync/pending"
	"github.com/luxfi/psync/syncstate"
	"github.com/luxfi/psync/transport"
)

const helloLiteral = "hello"
const syncLiteral = "sync"

// subscription is the pending-table companion payload a parked sync request
// carries alongside its peer IBLT snapshot: the subscriber's Bloom filter,
// and whether that subscriber is in subscribe-to-all mode (decoded from the
// request's own (projectedCount, fpr) components, not from this producer's
// local configuration).
type subscription struct {
	filter       *bloom.Filter
	subscribeAll bool
}

func (s subscription) matches(prefix string) bool {
	if s.subscribeAll {
		return true
	}
	return s.filter.Contains([]byte(prefix))
}

// Producer is one partial-sync publisher. Not safe for concurrent use.
type Producer struct {
	log     log.Logger
	cfg     psync.Config
	cap     transport.Capability
	state   *syncstate.Table
	parked  *pending.Table
	metrics *producerMetrics
}

// NewProducer constructs a partial-sync producer, registers its hello and
// sync endpoints, and installs the local user prefix as a sync node.
func NewProducer(logger log.Logger, cfg psync.Config, capability transport.Capability, registerer prometheus.Registerer) (*Producer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics, err := newProducerMetrics(registerer)
	if err != nil {
		return nil, fmt.Errorf("partialsync: registering metrics: %w", err)
	}

	p := &Producer{
		log:     logger,
		cfg:     cfg,
		cap:     capability,
		state:   syncstate.New(cfg.ExpectedEntries),
		parked:  pending.New(),
		metrics: metrics,
	}
	if cfg.UserPrefix != "" {
		p.state.AddNode(cfg.UserPrefix)
	}

	registerFailed := false
	onFail := func(prefix string, reason string) {
		registerFailed = true
		p.log.Error("failed to register partial-sync prefix", zap.String("prefix", prefix), zap.String("reason", reason))
	}
	capability.RegisterPrefix(namewire.Join(cfg.SyncPrefix, helloLiteral), p.handleHello, onFail)
	capability.RegisterPrefix(namewire.Join(cfg.SyncPrefix, syncLiteral), p.handleSync, onFail)
	if registerFailed {
		return nil, psync.ErrRegisterFailed
	}
	return p, nil
}

// handleHello always answers immediately with the newline-joined list of
// known prefixes plus the producer's current IBLT.
func (p *Producer) handleHello(name string, _ time.Duration) (transport.Response, bool) {
	sketchBytes, err := p.state.Sketch().MarshalBinary()
	if err != nil {
		p.log.Error("failed to marshal hello sketch", zap.Error(err))
		return transport.Response{}, false
	}
	body := strings.Join(p.state.Prefixes(), "\n")
	p.metrics.helloRequests.Inc()
	return transport.Response{
		Name:       namewire.AppendBytes(name, sketchBytes),
		Freshness:  p.cfg.HelloReplyFreshness,
		Payload:    []byte(body),
		FinalBlock: true,
	}, true
}

// handleSync decodes a subscriber's Bloom filter and peer IBLT, peels the
// difference against the local sketch, and either answers immediately or
// parks the request pending new data.
func (p *Producer) handleSync(name string, lifetime time.Duration) (transport.Response, bool) {
	segments := namewire.Split(name)
	prefixSegs := namewire.Split(p.cfg.SyncPrefix)
	if len(segments) < len(prefixSegs)+1 || segments[len(prefixSegs)] != syncLiteral {
		p.log.Warn("malformed sync request name", zap.String("name", name))
		return transport.Response{}, false
	}
	rest := segments[len(prefixSegs)+1:]
	if len(rest) < 2 {
		p.log.Warn("malformed sync request name", zap.String("name", name))
		return transport.Response{}, false
	}
	n, err := strconv.ParseUint(rest[0], 10, 64)
	if err != nil {
		p.log.Warn("non-numeric projected count", zap.String("name", name))
		return transport.Response{}, false
	}
	fprMillis, err := strconv.Atoi(rest[1])
	if err != nil {
		p.log.Warn("non-numeric false positive rate", zap.String("name", name))
		return transport.Response{}, false
	}

	bfBytes, rest2, err := namewire.TakeBytes(rest[2:])
	if err != nil {
		p.log.Warn("malformed bloom filter component", zap.String("name", name), zap.Error(err))
		return transport.Response{}, false
	}
	ibltBytes, _, err := namewire.TakeBytes(rest2)
	if err != nil {
		p.log.Warn("malformed sketch component", zap.String("name", name), zap.Error(err))
		return transport.Response{}, false
	}

	requesterCfg := psync.Config{ProjectedCount: n, FalsePositiveRate: float64(fprMillis) / 1000}
	sub := subscription{subscribeAll: requesterCfg.SubscribeToAll()}
	if !sub.subscribeAll {
		params, err := bloom.Optimize(n, float64(fprMillis)/1000, p.cfg.BloomBounds)
		if err != nil {
			p.log.Warn("cannot reconstruct bloom parameters", zap.String("name", name), zap.Error(err))
			return transport.Response{}, false
		}
		filter, err := bloom.Decode(params, bloom.Seed, bfBytes)
		if err != nil {
			p.log.Warn("undecodable bloom filter", zap.String("name", name), zap.Error(err))
			return transport.Response{}, false
		}
		sub.filter = filter
	}

	peerSketch, err := iblt.Unmarshal(p.cfg.ExpectedEntries, ibltBytes)
	if err != nil {
		p.log.Warn("undecodable peer sketch in sync request", zap.String("name", name), zap.Error(err))
		return transport.Response{}, false
	}

	diff, err := p.state.Sketch().Subtract(peerSketch)
	if err != nil {
		p.log.Error("cell count mismatch against incoming sync sketch", zap.Error(err))
		return transport.Response{}, false
	}
	positive, negative, ok := diff.Peel()
	if !ok {
		p.metrics.peelFailures.Inc()
		return transport.Response{}, false
	}

	body := p.buildBody(positive, sub)
	threshold := p.cfg.ExpectedEntries / 2
	if body != "" || len(positive)+len(negative) >= threshold {
		p.metrics.syncAnswered.Inc()
		return p.buildResponse(name, body), true
	}

	p.parked.Add(&pending.Entry{
		Name:     name,
		Snapshot: peerSketch,
		Aux:      sub,
		Expiry: p.cap.After(lifetime, func() {
			p.parked.Remove(name)
			p.metrics.syncExpired.Inc()
		}),
	})
	p.metrics.syncParked.Inc()
	return transport.Response{}, false
}

func (p *Producer) buildBody(positive []uint32, sub subscription) string {
	var lines []string
	for _, tok := range positive {
		prefix, ok := p.state.PrefixForToken(tok)
		if !ok {
			continue
		}
		seq, ok := p.state.SeqOf(prefix)
		if !ok || seq == 0 {
			continue
		}
		if !sub.matches(prefix) {
			continue
		}
		lines = append(lines, prefix+" "+strconv.FormatUint(uint64(seq), 10))
	}
	return strings.Join(lines, "\n")
}

func (p *Producer) buildResponse(requestName string, body string) transport.Response {
	sketchBytes, err := p.state.Sketch().MarshalBinary()
	if err != nil {
		p.log.Error("failed to marshal sync response sketch", zap.Error(err))
	}
	return transport.Response{
		Name:      namewire.AppendBytes(requestName, sketchBytes),
		Freshness: p.cfg.SyncReplyFreshness,
		Payload:   []byte(body),
	}
}

// PublishName advances prefix's sequence number and satisfies every parked
// sync request it now can, either with the published content (if the
// subscriber's filter matches) or with an empty body that still carries the
// new sketch (if the difference has grown large enough to cross threshold
// regardless of filter match).
func (p *Producer) PublishName(prefix string) error {
	seq, ok := p.state.SeqOf(prefix)
	if !ok {
		return psync.ErrUnknownPrefix
	}
	p.state.UpdateSeq(prefix, seq+1)
	newSeq, _ := p.state.SeqOf(prefix)

	threshold := p.cfg.ExpectedEntries / 2
	var satisfied []string
	p.parked.Walk(func(entry *pending.Entry) {
		diff, err := p.state.Sketch().Subtract(entry.Snapshot)
		if err != nil {
			satisfied = append(satisfied, entry.Name)
			return
		}
		positive, negative, ok := diff.Peel()
		if !ok {
			p.metrics.peelFailures.Inc()
			satisfied = append(satisfied, entry.Name)
			return
		}

		sub, _ := entry.Aux.(subscription)
		if sub.matches(prefix) {
			p.metrics.subscriptionHits.Inc()
			body := prefix + " " + strconv.FormatUint(uint64(newSeq), 10)
			p.cap.Put(p.buildResponse(entry.Name, body))
			p.metrics.syncAnswered.Inc()
			satisfied = append(satisfied, entry.Name)
			return
		}
		p.metrics.subscriptionMiss.Inc()
		if len(positive)+len(negative) >= threshold {
			p.cap.Put(p.buildResponse(entry.Name, ""))
			p.metrics.syncAnswered.Inc()
			satisfied = append(satisfied, entry.Name)
		}
	})
	for _, name := range satisfied {
		p.parked.Remove(name)
	}
	return nil
}
