// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sync

import (
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/vmsync/utils/logging"
	"github.com/ava-labs/vmsync/utils/math"
	"github.com/ava-labs/vmsync/utils/set"
)

const (
	bandwidthHalflife = 5 * time.Minute

	// The probability that, when we select a peer, we select the next peer
	// in round robin order rather than based on their performance.
	randomPeerProbability = 0.2
)

// Tracks the bandwidth of responses coming from peers, preferring to contact
// peers with known good bandwidth. Every peer is tried before any peer is
// preferred.
// Note: not thread safe. Caller must handle synchronization.
type peerTracker struct {
	// Bandwidth of each peer, nil if no request to the peer has completed.
	bandwidths []math.Averager
	// Peers that have been sent a request.
	trackedPeers set.Set[int]
	// Peers that responded to the last request they were sent.
	responsivePeers set.Set[int]
	// Index of the next peer in round robin order.
	next int
	rand *rand.Rand
	log  logging.Logger
}

func newPeerTracker(numPeers int, log logging.Logger) *peerTracker {
	return &peerTracker{
		bandwidths:      make([]math.Averager, numPeers),
		trackedPeers:    set.NewSet[int](numPeers),
		responsivePeers: set.NewSet[int](numPeers),
		rand:            rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404
		log:             log,
	}
}

// getPeer returns the peer to send the next request to. [exclude] is only
// returned if it is the only peer. A negative [exclude] excludes no peer.
func (p *peerTracker) getPeer(exclude int) int {
	numPeers := len(p.bandwidths)
	if numPeers == 1 {
		return 0
	}

	// Try every peer at least once.
	if p.trackedPeers.Len() < numPeers {
		for i := 0; i < numPeers; i++ {
			peer := (p.next + i) % numPeers
			if peer != exclude && !p.trackedPeers.Contains(peer) {
				p.next = peer + 1
				return peer
			}
		}
	}

	if p.rand.Float64() >= randomPeerProbability {
		best := -1
		for peer, bandwidth := range p.bandwidths {
			if peer == exclude || !p.responsivePeers.Contains(peer) {
				continue
			}
			if best == -1 || bandwidth.Read() > p.bandwidths[best].Read() {
				best = peer
			}
		}
		if best != -1 {
			return best
		}
	}

	peer := p.next % numPeers
	if peer == exclude {
		peer = (peer + 1) % numPeers
	}
	p.next = peer + 1
	p.log.Debug("selecting peer in round robin order",
		zap.Int("peer", peer),
	)
	return peer
}

// TrackPeer records that a request was sent to [peer].
func (p *peerTracker) TrackPeer(peer int) {
	p.trackedPeers.Add(peer)
}

// TrackBandwidth records that [peer]'s bandwidth is [bandwidth]. A failed
// request has a bandwidth of 0.
func (p *peerTracker) TrackBandwidth(peer int, bandwidth float64) {
	now := time.Now()
	if p.bandwidths[peer] == nil {
		p.bandwidths[peer] = math.NewAverager(bandwidth, bandwidthHalflife, now)
	} else {
		p.bandwidths[peer].Observe(bandwidth, now)
	}

	if bandwidth == 0 {
		p.responsivePeers.Remove(peer)
	} else {
		p.responsivePeers.Add(peer)
	}
}
