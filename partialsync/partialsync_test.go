// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package partialsync

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/psync"
	nolog "github.com/luxfi/psync/log"
	"github.com/luxfi/psync/psynctest"
)

func newTestProducer(t *testing.T, net *psynctest.Network, nodes ...string) *Producer {
	t.Helper()
	cfg := psync.DefaultConfig()
	cfg.ExpectedEntries = 80
	cfg.SyncPrefix = "/test/psync"

	p, err := NewProducer(nolog.NewNoOpLogger(), cfg, net.Node(), nil)
	require.NoError(t, err)
	for _, n := range nodes {
		p.state.AddNode(n)
	}
	return p
}

func newTestConsumer(t *testing.T, net *psynctest.Network, projectedCount uint64, fpr float64, onUpdate psync.UpdateCallback) *Consumer {
	t.Helper()
	cfg := psync.DefaultConfig()
	cfg.ExpectedEntries = 80
	cfg.SyncPrefix = "/test/psync"
	cfg.ProjectedCount = projectedCount
	cfg.FalsePositiveRate = fpr

	c, err := NewConsumer(nolog.NewNoOpLogger(), cfg, net.Node(), nil, onUpdate, nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	return c
}

func TestSubscriptionFilterSelectsOnlySubscribedPrefix(t *testing.T) {
	require := require.New(t)

	net := psynctest.NewNetwork(time.Unix(0, 0))
	producer := newTestProducer(t, net, "/x", "/y")

	var updates []psync.MissingData
	// A large projected count keeps the filter's bit vector large enough that
	// an unsubscribed prefix has a negligible chance of testing positive —
	// (100, 0.001) also stays well clear of the (1, 0.001) subscribe-to-all
	// sentinel pair.
	consumer := newTestConsumer(t, net, 100, 0.001, func(u []psync.MissingData) {
		updates = append(updates, u...)
	})
	consumer.AddSubscription("/x")
	require.False(consumer.subscribeAll)
	require.ElementsMatch([]string{"/x"}, consumer.Subscriptions())

	require.NoError(producer.PublishName("/x"))
	// The consumer reissues sync only after its jittered resync delay.
	net.Advance(resyncJitterHi)
	require.NoError(producer.PublishName("/y"))

	seenX, seenY := false, false
	for _, u := range updates {
		switch u.Prefix {
		case "/x":
			seenX = true
			require.Equal(uint32(1), u.LowSeq)
			require.Equal(uint32(1), u.HighSeq)
		case "/y":
			seenY = true
		}
	}
	require.True(seenX)
	require.False(seenY)
}

func TestSubscribeToAllSentinelReceivesEverything(t *testing.T) {
	require := require.New(t)

	net := psynctest.NewNetwork(time.Unix(0, 0))
	producer := newTestProducer(t, net, "/x", "/y")

	var updates []psync.MissingData
	consumer := newTestConsumer(t, net, 1, 0.001, func(u []psync.MissingData) {
		updates = append(updates, u...)
	})
	require.True(consumer.subscribeAll)

	require.NoError(producer.PublishName("/x"))
	// The consumer reissues sync only after its jittered resync delay.
	net.Advance(resyncJitterHi)
	require.NoError(producer.PublishName("/y"))

	seenX, seenY := false, false
	for _, u := range updates {
		switch u.Prefix {
		case "/x":
			seenX = true
		case "/y":
			seenY = true
		}
	}
	require.True(seenX)
	require.True(seenY)
}

func TestProducerPublishUnknownPrefixErrors(t *testing.T) {
	net := psynctest.NewNetwork(time.Unix(0, 0))
	p := newTestProducer(t, net)

	err := p.PublishName("/never-added")
	require.ErrorIs(t, err, psync.ErrUnknownPrefix)
}
