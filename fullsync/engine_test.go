// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fullsync

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/psync"
	nolog "github.com/luxfi/psync/log"
	"github.com/luxfi/psync/psynctest"
)

func newTestEngine(t *testing.T, net *psynctest.Network, userPrefix string, onUpdate psync.UpdateCallback) *Engine {
	t.Helper()
	cfg := psync.DefaultConfig()
	cfg.ExpectedEntries = 80
	cfg.SyncPrefix = "/test/sync"
	cfg.UserPrefix = userPrefix

	e, err := NewEngine(nolog.NewNoOpLogger(), cfg, net.Node(), onUpdate, nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	return e
}

func TestPublishRoundTrip(t *testing.T) {
	require := require.New(t)

	net := psynctest.NewNetwork(time.Unix(0, 0))

	var updates []psync.MissingData
	p1 := newTestEngine(t, net, "/a", nil)
	p2 := newTestEngine(t, net, "/b", func(u []psync.MissingData) {
		updates = append(updates, u...)
	})

	require.NoError(p1.PublishName("/a"))
	net.Advance(0)
	require.NoError(p1.PublishName("/a"))
	net.Advance(0)
	require.NoError(p1.PublishName("/a"))
	net.Advance(0)

	require.NotEmpty(updates)
	var total uint32
	for _, u := range updates {
		total += u.HighSeq - u.LowSeq + 1
	}
	require.Equal(uint32(3), total)

	seq, ok := p2.state.SeqOf("/a")
	require.True(ok)
	require.Equal(uint32(3), seq)
}

func TestPublishUnknownPrefixErrors(t *testing.T) {
	net := psynctest.NewNetwork(time.Unix(0, 0))
	p1 := newTestEngine(t, net, "/a", nil)

	err := p1.PublishName("/never-added")
	require.ErrorIs(t, err, psync.ErrUnknownPrefix)
}
