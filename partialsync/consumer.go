// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package partialsync

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
	"github.com/luxfi/psync/bloom"
	"github.com/luxfi/psync/iblt"
	"github.com/luxfi/psync/internal/jitter"
	"github.com/luxfi/psync/namewire"
	"github.com/luxfi/psync/set"
	"github.com/luxfi/psync/syncstate"
	"github.com/luxfi/psync/transport"
)

const helloLifetime = 4 * time.Second
const syncLifetime = 4 * time.Second

// resyncJitterLo/Hi bound the uniform [100,500]ms delay spec.md §4.7 uses
// both for the consumer's steady-state resync cadence and for nack/timeout
// backoff.
const resyncJitterLo = 100 * time.Millisecond
const resyncJitterHi = 500 * time.Millisecond

// fetchRetryDelay and fetchMaxRetries are carried from
// original_source/src/logic-consumer.cpp's onDataNack/onDataTimeout, dropped
// by the distillation but present in the original: fetch() waits exactly
// 50ms before retrying after a nack (a timeout is retried immediately) and
// refreshes its request nonce each attempt.
const fetchRetryDelay = 50 * time.Millisecond
const fetchMaxRetries = 3

// Consumer drives the hello-then-sync state machine against one producer and
// offers a retrying single-item fetch(). Not safe for concurrent use.
type Consumer struct {
	log     log.Logger
	cfg     psync.Config
	cap     transport.Capability
	state   *syncstate.Table
	metrics *consumerMetrics
	rng     *rand.Rand

	bloomParams  bloom.Parameters
	subscription *bloom.Filter
	subscribeAll bool
	// subscriptionList is the exact record of what's been added to
	// subscription — the Bloom filter itself can't be queried or printed back,
	// only tested against a candidate, so this mirrors original_source's
	// m_sl for introspection.
	subscriptionList set.Set[string]

	peerIBLT *iblt.Table

	onHello  psync.RecieveHelloCallback
	onUpdate psync.UpdateCallback

	helloReq transport.RequestHandle
	syncReq  transport.RequestHandle
}

// NewConsumer constructs a partial-sync consumer and issues its first hello
// request.
func NewConsumer(
	logger log.Logger,
	cfg psync.Config,
	capability transport.Capability,
	onHello psync.RecieveHelloCallback,
	onUpdate psync.UpdateCallback,
	registerer prometheus.Registerer,
	rng *rand.Rand,
) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics, err := newConsumerMetrics(registerer)
	if err != nil {
		return nil, fmt.Errorf("partialsync: registering metrics: %w", err)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	params, err := bloom.Optimize(cfg.ProjectedCount, cfg.FalsePositiveRate, cfg.BloomBounds)
	if err != nil {
		return nil, fmt.Errorf("partialsync: %w", err)
	}

	c := &Consumer{
		log:          logger,
		cfg:          cfg,
		cap:          capability,
		state:        syncstate.New(cfg.ExpectedEntries),
		metrics:      metrics,
		rng:          rng,
		bloomParams:      params,
		subscription:     bloom.New(params, bloom.Seed),
		subscribeAll:     cfg.SubscribeToAll(),
		subscriptionList: make(set.Set[string]),
		onHello:          onHello,
		onUpdate:         onUpdate,
	}
	c.issueHello()
	return c, nil
}

// AddSubscription adds prefix to the consumer's Bloom filter so the
// producer's sync handler reports updates for it. If a sync request is
// already outstanding (or already parked on the producer), it reissues sync
// immediately so the producer learns the new filter rather than continuing
// to filter against the stale one from the request it already has.
func (c *Consumer) AddSubscription(prefix string) {
	c.subscription.Insert([]byte(prefix))
	c.subscriptionList.Add(prefix)
	if c.peerIBLT != nil {
		c.issueSync()
	}
}

// Subscriptions returns the exact set of prefixes AddSubscription has been
// called with, in no particular order. Unlike the Bloom filter itself this
// can be read back and enumerated, which is useful for logging and tests.
func (c *Consumer) Subscriptions() []string {
	return c.subscriptionList.List()
}

func (c *Consumer) issueHello() {
	if c.helloReq != nil {
		c.helloReq.Cancel()
	}
	name := namewire.Join(c.cfg.SyncPrefix, helloLiteral)
	c.helloReq = c.cap.ExpressRequest(context.Background(), name, helloLifetime, true, transport.RequestCallbacks{
		OnResponse: c.handleHelloResponse,
		OnNack:     c.handleHelloNack,
		OnTimeout:  c.handleHelloTimeout,
	})
	c.metrics.hellosSent.Inc()
}

func (c *Consumer) handleHelloNack(transport.NackReason) {
	c.log.Debug("hello nacked, rescheduling")
	c.scheduleAfterJitter(c.issueHello)
}

func (c *Consumer) handleHelloTimeout() {
	c.log.Debug("hello timed out, reissuing immediately")
	c.issueHello()
}

func (c *Consumer) handleHelloResponse(resp transport.Response) {
	peer, err := extractTrailingSketch(resp.Name, c.cfg.ExpectedEntries)
	if err != nil {
		c.log.Warn("malformed hello response", zap.Error(err))
		return
	}
	c.peerIBLT = peer
	if c.onHello != nil {
		c.onHello(string(resp.Payload))
	}
	c.issueSync()
}

func (c *Consumer) issueSync() {
	if c.peerIBLT == nil {
		return
	}
	if c.syncReq != nil {
		c.syncReq.Cancel()
	}

	bfBytes, err := c.subscription.MarshalBinary()
	if err != nil {
		c.log.Error("failed to marshal subscription filter", zap.Error(err))
		return
	}
	ibltBytes, err := c.peerIBLT.MarshalBinary()
	if err != nil {
		c.log.Error("failed to marshal peer sketch", zap.Error(err))
		return
	}

	fprMillis := int(c.cfg.FalsePositiveRate * 1000)
	name := namewire.Join(c.cfg.SyncPrefix, syncLiteral,
		strconv.FormatUint(c.cfg.ProjectedCount, 10), strconv.Itoa(fprMillis))
	name = namewire.AppendBytes(name, bfBytes)
	name = namewire.AppendBytes(name, ibltBytes)

	c.syncReq = c.cap.ExpressRequest(context.Background(), name, syncLifetime, true, transport.RequestCallbacks{
		OnResponse: c.handleSyncResponse,
		OnNack:     c.handleSyncNack,
		OnTimeout:  c.handleSyncTimeout,
	})
	c.metrics.syncsSent.Inc()
}

func (c *Consumer) handleSyncNack(transport.NackReason) {
	c.log.Debug("sync nacked, reverting to hello")
	c.scheduleAfterJitter(c.issueHello)
}

func (c *Consumer) handleSyncTimeout() {
	c.log.Debug("sync timed out, rescheduling")
	c.scheduleAfterJitter(c.issueSync)
}

func (c *Consumer) handleSyncResponse(resp transport.Response) {
	peer, err := extractTrailingSketch(resp.Name, c.cfg.ExpectedEntries)
	if err != nil {
		c.log.Warn("malformed sync response", zap.Error(err))
	} else {
		c.peerIBLT = peer
	}

	updates := c.ingest(resp.Payload)
	if len(updates) > 0 {
		for _, u := range updates {
			c.metrics.updatesSeen.Add(float64(u.HighSeq - u.LowSeq + 1))
		}
		if c.onUpdate != nil {
			c.onUpdate(updates)
		}
	}
	c.scheduleAfterJitter(c.issueSync)
}

func (c *Consumer) ingest(payload []byte) []psync.MissingData {
	var updates []psync.MissingData
	for _, line := range strings.Split(string(payload), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		prefix, seq, err := parseLine(line)
		if err != nil {
			c.log.Warn("skipping malformed sync response line", zap.String("line", line))
			continue
		}
		c.state.AddNode(prefix)
		prior, _ := c.state.SeqOf(prefix)
		if seq <= prior {
			continue
		}
		c.state.UpdateSeq(prefix, seq)
		updates = append(updates, psync.MissingData{Prefix: prefix, LowSeq: prior + 1, HighSeq: seq})
	}
	return updates
}

func (c *Consumer) scheduleAfterJitter(task func()) {
	delay := resyncJitterLo + time.Duration(jitter.Range(c.rng, 0, int(resyncJitterHi-resyncJitterLo)))
	c.cap.After(delay, task)
}

// Fetch retrieves a specific (prefix, seq) data item, retrying on nack or
// timeout up to fetchMaxRetries times with a fresh request nonce each attempt.
func (c *Consumer) Fetch(prefix string, seq uint32, cb psync.FetchDataCallback) {
	c.metrics.fetches.Inc()
	name := namewire.Join(prefix, strconv.FormatUint(uint64(seq), 10))
	c.fetchAttempt(name, cb, fetchMaxRetries)
}

func (c *Consumer) fetchAttempt(name string, cb psync.FetchDataCallback, retriesLeft int) {
	c.cap.ExpressRequest(context.Background(), name, syncLifetime, false, transport.RequestCallbacks{
		OnResponse: func(resp transport.Response) {
			if cb != nil {
				cb(resp.Payload)
			}
		},
		OnNack: func(transport.NackReason) {
			if retriesLeft <= 0 {
				c.log.Warn("fetch exhausted retries", zap.String("name", name))
				return
			}
			c.metrics.fetchRetries.Inc()
			c.cap.After(fetchRetryDelay, func() {
				c.fetchAttempt(name, cb, retriesLeft-1)
			})
		},
		OnTimeout: func() {
			if retriesLeft <= 0 {
				c.log.Warn("fetch exhausted retries", zap.String("name", name))
				return
			}
			c.fetchAttempt(name, cb, retriesLeft-1)
		},
	})
}

func extractTrailingSketch(name string, expectedEntries int) (*iblt.Table, error) {
	segments := namewire.Split(name)
	if len(segments) < 2 {
		return nil, fmt.Errorf("partialsync: response name %q too short for a trailing sketch", name)
	}
	ibltBytes, _, err := namewire.TakeBytes(segments[len(segments)-2:])
	if err != nil {
		return nil, err
	}
	return iblt.Unmarshal(expectedEntries, ibltBytes)
}

func parseLine(line string) (prefix string, seq uint32, err error) {
	idx := strings.LastIndexByte(line, ' ')
	if idx < 0 {
		return "", 0, fmt.Errorf("partialsync: malformed line %q", line)
	}
	n, err := strconv.ParseUint(line[idx+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("partialsync: malformed sequence in line %q: %w", line, err)
	}
	return line[:idx], uint32(n), nil
}
