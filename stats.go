package p2pmidi

import (
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/matheusfillipe/p2pmidi/pkg/engine"
)

// PeerStats is a snapshot of per-peer connection statistics. Safe to read
// without synchronization; all fields are copies.
type PeerStats struct {
	// PeerID is the peer identifier.
	PeerID peer.ID

	// Connected indicates whether the peer is currently connected.
	Connected bool

	// Relayed indicates the current connection goes through the relay
	// rather than directly.
	Relayed bool

	// ConnectedAt is when the current connection was established. Zero
	// if not connected.
	ConnectedAt time.Time

	// TotalConnectTime is the cumulative duration of all connections.
	TotalConnectTime time.Duration

	// ConnectionCount is the number of connections established,
	// reconnects included.
	ConnectionCount int

	// DialFailures is the number of failed dials to this peer.
	DialFailures int

	// PingCount and PingFailures count liveness probes.
	PingCount    int64
	PingFailures int64

	// LastRTT is the most recent probe round-trip time.
	LastRTT time.Duration

	// MinRTT is the best round-trip time observed.
	MinRTT time.Duration

	// HolePunchAttempts and HolePunchSuccesses count direct-connection
	// upgrade attempts.
	HolePunchAttempts  int
	HolePunchSuccesses int

	// LastEventAt is when the peer last produced any event.
	LastEventAt time.Time
}

// peerStatsTracker is the internal mutable tracker, updated from the
// event stream.
type peerStatsTracker struct {
	mu sync.RWMutex

	connectedAt      time.Time
	totalConnectTime time.Duration
	relayed          bool

	connectionCount int
	dialFailures    int

	pingCount    int64
	pingFailures int64
	lastRTT      time.Duration
	minRTT       time.Duration

	holePunchAttempts  int
	holePunchSuccesses int

	lastEventAt time.Time
}

func (s *peerStatsTracker) record(ev engine.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastEventAt = ev.Timestamp

	switch ev.Kind {
	case engine.KindConnected, engine.KindCircuitOpened:
		s.connectedAt = ev.Timestamp
		s.relayed = ev.Limited
		s.connectionCount++

	case engine.KindDisconnected:
		if !s.connectedAt.IsZero() {
			s.totalConnectTime += ev.Timestamp.Sub(s.connectedAt)
			s.connectedAt = time.Time{}
		}

	case engine.KindDialFailed:
		s.dialFailures++

	case engine.KindPing:
		s.pingCount++
		if ev.Err != nil {
			s.pingFailures++
			return
		}
		s.lastRTT = ev.RTT
		if s.minRTT == 0 || ev.RTT < s.minRTT {
			s.minRTT = ev.RTT
		}

	case engine.KindHolePunch:
		switch ev.Outcome {
		case engine.HolePunchStarted:
			s.holePunchAttempts++
		case engine.HolePunchSucceeded:
			s.holePunchSuccesses++
			s.relayed = false
		}
	}
}

func (s *peerStatsTracker) snapshot(id peer.ID, connected bool) *PeerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &PeerStats{
		PeerID:             id,
		Connected:          connected,
		Relayed:            connected && s.relayed,
		ConnectedAt:        s.connectedAt,
		TotalConnectTime:   s.totalConnectTime,
		ConnectionCount:    s.connectionCount,
		DialFailures:       s.dialFailures,
		PingCount:          s.pingCount,
		PingFailures:       s.pingFailures,
		LastRTT:            s.lastRTT,
		MinRTT:             s.minRTT,
		HolePunchAttempts:  s.holePunchAttempts,
		HolePunchSuccesses: s.holePunchSuccesses,
		LastEventAt:        s.lastEventAt,
	}

	// Count the current session too.
	if connected && !s.connectedAt.IsZero() {
		stats.TotalConnectTime += time.Since(s.connectedAt)
	}
	return stats
}

// recordStats routes an event into the per-peer tracker. Events without a
// peer are skipped.
func (n *Node) recordStats(ev engine.Event) {
	if ev.Peer == "" {
		return
	}

	n.statsMu.Lock()
	tracker, ok := n.stats[ev.Peer]
	if !ok {
		tracker = &peerStatsTracker{}
		n.stats[ev.Peer] = tracker
	}
	n.statsMu.Unlock()

	tracker.record(ev)
}

// PeerStats returns statistics for a peer, or false if the peer has never
// produced an event.
func (n *Node) PeerStats(id peer.ID) (*PeerStats, bool) {
	n.statsMu.RLock()
	tracker, ok := n.stats[id]
	n.statsMu.RUnlock()
	if !ok {
		return nil, false
	}

	connected := n.host.Network().Connectedness(id) == network.Connected
	return tracker.snapshot(id, connected), true
}

// Stats returns statistics for every peer seen this run.
func (n *Node) Stats() []*PeerStats {
	n.statsMu.RLock()
	ids := make([]peer.ID, 0, len(n.stats))
	for id := range n.stats {
		ids = append(ids, id)
	}
	n.statsMu.RUnlock()

	out := make([]*PeerStats, 0, len(ids))
	for _, id := range ids {
		if s, ok := n.PeerStats(id); ok {
			out = append(out, s)
		}
	}
	return out
}
