// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sync

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/vmsync/utils/wrappers"
)

type metrics struct {
	requestsMade       prometheus.Counter
	requestsFailed     prometheus.Counter
	requestsSucceeded  prometheus.Counter
	invalidProofs      prometheus.Counter
	retries            prometheus.Counter
	rangesCompleted    prometheus.Counter
	targetUpdates      prometheus.Counter
	processingRequests prometheus.Gauge
}

// newMetrics returns the metrics of a Manager. They are only registered if
// [reg] is non-nil.
func newMetrics(namespace string, reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requestsMade: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_made",
			Help:      "cumulative number of proof requests made",
		}),
		requestsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_failed",
			Help:      "cumulative number of proof requests that failed or timed out",
		}),
		requestsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_succeeded",
			Help:      "cumulative number of proof requests that were answered",
		}),
		invalidProofs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_proofs",
			Help:      "cumulative number of proofs that failed verification",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries",
			Help:      "cumulative number of ranges queued for another attempt",
		}),
		rangesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranges_completed",
			Help:      "cumulative number of ranges applied to the local database",
		}),
		targetUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "target_updates",
			Help:      "cumulative number of times the sync target changed",
		}),
		processingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processing_requests",
			Help:      "number of ranges currently being fetched",
		}),
	}
	if reg == nil {
		return m, nil
	}

	errs := wrappers.Errs{}
	errs.Add(
		reg.Register(m.requestsMade),
		reg.Register(m.requestsFailed),
		reg.Register(m.requestsSucceeded),
		reg.Register(m.invalidProofs),
		reg.Register(m.retries),
		reg.Register(m.rangesCompleted),
		reg.Register(m.targetUpdates),
		reg.Register(m.processingRequests),
	)
	return m, errs.Err
}
