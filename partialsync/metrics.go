// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package partialsync

import "github.com/prometheus/client_golang/prometheus"

type producerMetrics struct {
	helloRequests    prometheus.Counter
	syncAnswered     prometheus.Counter
	syncParked       prometheus.Counter
	syncExpired      prometheus.Counter
	peelFailures     prometheus.Counter
	subscriptionHits prometheus.Counter
	subscriptionMiss prometheus.Counter
}

func newProducerMetrics(registerer prometheus.Registerer) (*producerMetrics, error) {
	m := &producerMetrics{
		helloRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_partialsync_hello_requests",
			Help: "Number of hello requests answered",
		}),
		syncAnswered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_partialsync_sync_answered",
			Help: "Number of sync requests answered immediately",
		}),
		syncParked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_partialsync_sync_parked",
			Help: "Number of sync requests parked pending new data",
		}),
		syncExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_partialsync_sync_expired",
			Help: "Number of parked sync requests that expired unanswered",
		}),
		peelFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_partialsync_peel_failures",
			Help: "Number of IBLT peels that failed to reach the empty fixed point",
		}),
		subscriptionHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_partialsync_subscription_hits",
			Help: "Number of published prefixes that matched a subscriber's filter",
		}),
		subscriptionMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_partialsync_subscription_misses",
			Help: "Number of published prefixes that missed a subscriber's filter",
		}),
	}
	if registerer == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.helloRequests, m.syncAnswered, m.syncParked, m.syncExpired,
		m.peelFailures, m.subscriptionHits, m.subscriptionMiss,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

type consumerMetrics struct {
	hellosSent  prometheus.Counter
	syncsSent   prometheus.Counter
	updatesSeen prometheus.Counter
	fetches     prometheus.Counter
	fetchRetries prometheus.Counter
}

func newConsumerMetrics(registerer prometheus.Registerer) (*consumerMetrics, error) {
	m := &consumerMetrics{
		hellosSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_partialsync_consumer_hellos_sent",
			Help: "Number of hello requests issued",
		}),
		syncsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_partialsync_consumer_syncs_sent",
			Help: "Number of sync requests issued",
		}),
		updatesSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_partialsync_consumer_updates_seen",
			Help: "Number of sequence advances observed across all prefixes",
		}),
		fetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_partialsync_consumer_fetches",
			Help: "Number of fetch() calls issued",
		}),
		fetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_partialsync_consumer_fetch_retries",
			Help: "Number of fetch() retries after a nack",
		}),
	}
	if registerer == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.hellosSent, m.syncsSent, m.updatesSeen, m.fetches, m.fetchRetries,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
