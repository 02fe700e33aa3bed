// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fullsync

import "github.com/prometheus/client_golang/prometheus"

// engineMetrics mirrors the counters the teacher's novaMetrics registers:
// one Prometheus object per thing worth counting, registered at
// construction and nil-safe when no registerer is supplied.
type engineMetrics struct {
	requestsIssued  prometheus.Counter
	requestsAnswered prometheus.Counter
	requestsParked  prometheus.Counter
	requestsExpired prometheus.Counter
	peelFailures    prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer) (*engineMetrics, error) {
	m := &engineMetrics{
		requestsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_fullsync_requests_issued",
			Help: "Number of outgoing full-sync requests issued",
		}),
		requestsAnswered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_fullsync_requests_answered",
			Help: "Number of incoming full-sync requests answered immediately",
		}),
		requestsParked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_fullsync_requests_parked",
			Help: "Number of incoming full-sync requests parked pending new data",
		}),
		requestsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_fullsync_requests_expired",
			Help: "Number of parked full-sync requests that expired unanswered",
		}),
		peelFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psync_fullsync_peel_failures",
			Help: "Number of IBLT peels that failed to reach the empty fixed point",
		}),
	}
	if registerer == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.requestsIssued, m.requestsAnswered, m.requestsParked,
		m.requestsExpired, m.peelFailures,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
