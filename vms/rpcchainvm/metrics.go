// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpcchainvm

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/vmsync/utils/wrappers"
)

const (
	opLabel     = "op"
	actionLabel = "action"
)

type metrics struct {
	inFlight             prometheus.Gauge
	requests             *prometheus.CounterVec
	requestFailures      *prometheus.CounterVec
	healthFailures       prometheus.Counter
	droppedNotifications prometheus.Counter
	databaseRequests     *prometheus.CounterVec
}

func newMetrics(namespace string, reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "number of requests awaiting a response",
		}),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests",
				Help:      "cumulative number of requests sent to the VM",
			},
			[]string{opLabel},
		),
		requestFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_failures",
				Help:      "cumulative number of requests that failed, timed out or were answered with an error",
			},
			[]string{opLabel},
		),
		healthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_check_failures",
			Help:      "cumulative number of failed health checks of the VM",
		}),
		droppedNotifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_notifications",
			Help:      "cumulative number of notifications dropped because nobody was reading them",
		}),
		databaseRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "database_requests",
				Help:      "cumulative number of database requests received from the VM",
			},
			[]string{actionLabel},
		),
	}
	if reg == nil {
		return m, nil
	}

	errs := wrappers.Errs{}
	errs.Add(
		reg.Register(m.inFlight),
		reg.Register(m.requests),
		reg.Register(m.requestFailures),
		reg.Register(m.healthFailures),
		reg.Register(m.droppedNotifications),
		reg.Register(m.databaseRequests),
	)
	return m, errs.Err
}
