// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/vmsync/utils/wrappers"
)

type metrics struct {
	processing prometheus.Gauge
	accepted   prometheus.Counter
	rejected   prometheus.Counter
}

func newMetrics(namespace string, reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		processing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blks_processing",
			Help:      "number of currently processing blocks",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blks_accepted",
			Help:      "cumulative number of accepted blocks",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blks_rejected",
			Help:      "cumulative number of rejected blocks",
		}),
	}
	if reg == nil {
		return m, nil
	}

	errs := wrappers.Errs{}
	errs.Add(
		reg.Register(m.processing),
		reg.Register(m.accepted),
		reg.Register(m.rejected),
	)
	return m, errs.Err
}
