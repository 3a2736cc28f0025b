// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkledb

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/vmsync/utils/wrappers"
)

var (
	_ merkleMetrics = (*mockMetrics)(nil)
	_ merkleMetrics = (*metrics)(nil)
)

type merkleMetrics interface {
	DatabaseValueRead()
	DatabaseValueWrite()
	ProofGenerated()
	RangeProofGenerated()
	ChangeProofGenerated()
	InsufficientHistory()
	Committed()
}

type mockMetrics struct {
	valueReadCount   int64
	valueWriteCount  int64
	proofCount       int64
	rangeProofCount  int64
	changeProofCount int64
	historyMissCount int64
	commitCount      int64
}

func (m *mockMetrics) DatabaseValueRead() {
	atomic.AddInt64(&m.valueReadCount, 1)
}

func (m *mockMetrics) DatabaseValueWrite() {
	atomic.AddInt64(&m.valueWriteCount, 1)
}

func (m *mockMetrics) ProofGenerated() {
	atomic.AddInt64(&m.proofCount, 1)
}

func (m *mockMetrics) RangeProofGenerated() {
	atomic.AddInt64(&m.rangeProofCount, 1)
}

func (m *mockMetrics) ChangeProofGenerated() {
	atomic.AddInt64(&m.changeProofCount, 1)
}

func (m *mockMetrics) InsufficientHistory() {
	atomic.AddInt64(&m.historyMissCount, 1)
}

func (m *mockMetrics) Committed() {
	atomic.AddInt64(&m.commitCount, 1)
}

type metrics struct {
	ioValueRead  prometheus.Counter
	ioValueWrite prometheus.Counter
	proofs       prometheus.Counter
	rangeProofs  prometheus.Counter
	changeProofs prometheus.Counter
	historyMiss  prometheus.Counter
	commits      prometheus.Counter
}

func newMetrics(namespace string, reg prometheus.Registerer) (merkleMetrics, error) {
	if reg == nil {
		return &mockMetrics{}, nil
	}
	m := metrics{
		ioValueRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "io_value_read",
			Help:      "cumulative amount of value reads from the base db",
		}),
		ioValueWrite: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "io_value_write",
			Help:      "cumulative amount of value writes to the base db",
		}),
		proofs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proofs_generated",
			Help:      "cumulative number of single key proofs generated",
		}),
		rangeProofs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_proofs_generated",
			Help:      "cumulative number of range proofs generated",
		}),
		changeProofs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_proofs_generated",
			Help:      "cumulative number of change proofs generated",
		}),
		historyMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insufficient_history",
			Help:      "cumulative number of proofs requested for roots no longer in the history",
		}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits",
			Help:      "cumulative number of changes committed to the trie",
		}),
	}
	errs := wrappers.Errs{}
	errs.Add(
		reg.Register(m.ioValueRead),
		reg.Register(m.ioValueWrite),
		reg.Register(m.proofs),
		reg.Register(m.rangeProofs),
		reg.Register(m.changeProofs),
		reg.Register(m.historyMiss),
		reg.Register(m.commits),
	)
	return &m, errs.Err
}

func (m *metrics) DatabaseValueRead() {
	m.ioValueRead.Inc()
}

func (m *metrics) DatabaseValueWrite() {
	m.ioValueWrite.Inc()
}

func (m *metrics) ProofGenerated() {
	m.proofs.Inc()
}

func (m *metrics) RangeProofGenerated() {
	m.rangeProofs.Inc()
}

func (m *metrics) ChangeProofGenerated() {
	m.changeProofs.Inc()
}

func (m *metrics) InsufficientHistory() {
	m.historyMiss.Inc()
}

func (m *metrics) Committed() {
	m.commits.Inc()
}
