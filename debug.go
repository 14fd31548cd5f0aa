package p2pmidi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DebugState is a snapshot of node state for troubleshooting connection
// issues.
type DebugState struct {
	// Node identity
	PeerID string `json:"peer_id"`

	// Relay identity and resolved addresses
	RelayID    string   `json:"relay_id"`
	RelayAddrs []string `json:"relay_addrs,omitempty"`

	// Listen and externally observed addresses
	ListenAddrs   []string `json:"listen_addrs"`
	ExternalAddrs []string `json:"external_addrs,omitempty"`

	// Protocol version
	Version string `json:"version"`

	// Reservation state
	ReservationActive bool      `json:"reservation_active"`
	ReservationExpiry time.Time `json:"reservation_expiry,omitempty"`

	// Peer book summary
	PeerBook DebugPeerBook `json:"peer_book"`

	// Configuration summary
	Config DebugConfig `json:"config"`

	// Statistics summary
	PeersWithStats int    `json:"peers_with_stats"`
	ConnectedPeers int    `json:"connected_peers"`
	DroppedEvents  uint64 `json:"dropped_events"`

	// CapturedAt is when the state was captured.
	CapturedAt time.Time `json:"captured_at"`
}

// DebugPeerBook summarizes peer book state.
type DebugPeerBook struct {
	TotalPeers   int      `json:"total_peers"`
	ActivePeers  int      `json:"active_peers"`
	BlockedPeers int      `json:"blocked_peers"`
	PeerIDs      []string `json:"peer_ids,omitempty"`
}

// DebugConfig summarizes the effective configuration.
type DebugConfig struct {
	Port             uint16 `json:"port"`
	Relay            string `json:"relay"`
	DialTimeout      string `json:"dial_timeout"`
	HandshakeTimeout string `json:"handshake_timeout"`
	PingInterval     string `json:"ping_interval"`
}

// DumpState captures the current state of the node.
func (n *Node) DumpState() *DebugState {
	active, expiry := n.ReservationStatus()

	state := &DebugState{
		PeerID:            n.PeerID().String(),
		RelayID:           n.relayID.String(),
		Version:           Version(),
		ReservationActive: active,
		ReservationExpiry: expiry,
		CapturedAt:        time.Now(),
	}

	for _, addr := range n.relayAddrs {
		state.RelayAddrs = append(state.RelayAddrs, addr.String())
	}
	for _, addr := range n.Addrs() {
		state.ListenAddrs = append(state.ListenAddrs, addr.String())
	}
	for _, addr := range n.ExternalAddrs() {
		state.ExternalAddrs = append(state.ExternalAddrs, addr.String())
	}

	state.PeerBook = n.dumpPeerBook()
	state.Config = DebugConfig{
		Port:             n.config.Port,
		Relay:            fmt.Sprintf("%s:%d", n.config.Relay.Host, n.config.Relay.Port),
		DialTimeout:      n.config.DialTimeout.String(),
		HandshakeTimeout: n.config.HandshakeTimeout.String(),
		PingInterval:     n.config.PingInterval.String(),
	}

	n.statsMu.RLock()
	state.PeersWithStats = len(n.stats)
	n.statsMu.RUnlock()

	state.ConnectedPeers = len(n.ConnectedPeers())
	state.DroppedEvents = n.DroppedEvents()

	return state
}

func (n *Node) dumpPeerBook() DebugPeerBook {
	all := n.book.ListAll()
	active := n.book.List()

	pb := DebugPeerBook{
		TotalPeers:   len(all),
		ActivePeers:  len(active),
		BlockedPeers: len(all) - len(active),
	}
	for _, e := range active {
		pb.PeerIDs = append(pb.PeerIDs, e.PeerID.String())
	}
	return pb
}

// DumpStateJSON returns the node state as formatted JSON.
func (n *Node) DumpStateJSON() (string, error) {
	data, err := json.MarshalIndent(n.DumpState(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return string(data), nil
}

// DumpStateString returns a human-readable representation of the node
// state.
func (n *Node) DumpStateString() string {
	state := n.DumpState()
	var sb strings.Builder

	sb.WriteString("=== p2pmidi Node Debug State ===\n\n")

	sb.WriteString("IDENTITY:\n")
	sb.WriteString(fmt.Sprintf("  Peer ID: %s\n", state.PeerID))
	sb.WriteString(fmt.Sprintf("  Version: %s\n", state.Version))
	sb.WriteString("\n")

	sb.WriteString("RELAY:\n")
	sb.WriteString(fmt.Sprintf("  Relay ID: %s\n", state.RelayID))
	for _, addr := range state.RelayAddrs {
		sb.WriteString(fmt.Sprintf("  - %s\n", addr))
	}
	if state.ReservationActive {
		sb.WriteString(fmt.Sprintf("  Reservation expires: %s\n",
			state.ReservationExpiry.Format(time.RFC3339)))
	} else {
		sb.WriteString("  No active reservation\n")
	}
	sb.WriteString("\n")

	sb.WriteString("LISTEN ADDRESSES:\n")
	if len(state.ListenAddrs) == 0 {
		sb.WriteString("  (none)\n")
	} else {
		for _, addr := range state.ListenAddrs {
			sb.WriteString(fmt.Sprintf("  - %s\n", addr))
		}
	}
	sb.WriteString("\n")

	sb.WriteString("EXTERNAL ADDRESSES:\n")
	if len(state.ExternalAddrs) == 0 {
		sb.WriteString("  (none learned yet)\n")
	} else {
		for _, addr := range state.ExternalAddrs {
			sb.WriteString(fmt.Sprintf("  - %s\n", addr))
		}
	}
	sb.WriteString("\n")

	sb.WriteString("PEER BOOK:\n")
	sb.WriteString(fmt.Sprintf("  Total:   %d peers\n", state.PeerBook.TotalPeers))
	sb.WriteString(fmt.Sprintf("  Active:  %d peers\n", state.PeerBook.ActivePeers))
	sb.WriteString(fmt.Sprintf("  Blocked: %d peers\n", state.PeerBook.BlockedPeers))
	sb.WriteString("\n")

	sb.WriteString("CONFIGURATION:\n")
	sb.WriteString(fmt.Sprintf("  Port:              %d\n", state.Config.Port))
	sb.WriteString(fmt.Sprintf("  Relay:             %s\n", state.Config.Relay))
	sb.WriteString(fmt.Sprintf("  Dial Timeout:      %s\n", state.Config.DialTimeout))
	sb.WriteString(fmt.Sprintf("  Handshake Timeout: %s\n", state.Config.HandshakeTimeout))
	sb.WriteString(fmt.Sprintf("  Ping Interval:     %s\n", state.Config.PingInterval))
	sb.WriteString("\n")

	sb.WriteString("STATISTICS:\n")
	sb.WriteString(fmt.Sprintf("  Peers tracked:  %d\n", state.PeersWithStats))
	sb.WriteString(fmt.Sprintf("  Connected:      %d\n", state.ConnectedPeers))
	sb.WriteString(fmt.Sprintf("  Dropped events: %d\n", state.DroppedEvents))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Captured at: %s\n", state.CapturedAt.Format(time.RFC3339)))
	sb.WriteString("================================\n")

	return sb.String()
}
