// Package engine implements the event-driven connection engine: a single
// reactor that owns the transport and drives liveness, identification,
// relay-client, and hole-punch behaviour through an ordered event stream.
package engine

import (
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// EventKind tags a connection lifecycle event. The engine dispatches on
// this tag; new protocol behaviours extend the enumeration.
type EventKind int

const (
	// KindUnknown marks events the engine does not recognize.
	// They are forwarded and otherwise ignored, never fatal.
	KindUnknown EventKind = iota

	// KindListenerBound fires when a local listener is bound.
	KindListenerBound

	// KindConnected fires when a direct connection is established.
	KindConnected

	// KindCircuitOpened fires when a relayed (limited) connection opens.
	KindCircuitOpened

	// KindDisconnected fires when a connection closes.
	KindDisconnected

	// KindDialFailed fires when an outbound dial fails. Not fatal; the
	// engine keeps running.
	KindDialFailed

	// KindIdentified fires when the identification exchange with a peer
	// completes.
	KindIdentified

	// KindIdentifyFailed fires when the identification exchange fails.
	KindIdentifyFailed

	// KindObservedAddress fires when a peer reports a new externally
	// observed address for this node.
	KindObservedAddress

	// KindPing reports a liveness probe result.
	KindPing

	// KindPeerUnresponsive fires when a peer misses consecutive liveness
	// probes. The connection is not closed; that is the application's call.
	KindPeerUnresponsive

	// KindReservationAccepted fires when the relay accepts a listening
	// reservation.
	KindReservationAccepted

	// KindReservationFailed fires when a reservation request is denied or
	// times out.
	KindReservationFailed

	// KindHolePunch reports a direct-connection upgrade attempt.
	KindHolePunch

	// KindReachabilityChanged fires when the node's NAT reachability
	// assessment changes.
	KindReachabilityChanged
)

// String returns a human-readable name for the event kind.
func (k EventKind) String() string {
	switch k {
	case KindListenerBound:
		return "ListenerBound"
	case KindConnected:
		return "Connected"
	case KindCircuitOpened:
		return "CircuitOpened"
	case KindDisconnected:
		return "Disconnected"
	case KindDialFailed:
		return "DialFailed"
	case KindIdentified:
		return "Identified"
	case KindIdentifyFailed:
		return "IdentifyFailed"
	case KindObservedAddress:
		return "ObservedAddress"
	case KindPing:
		return "Ping"
	case KindPeerUnresponsive:
		return "PeerUnresponsive"
	case KindReservationAccepted:
		return "ReservationAccepted"
	case KindReservationFailed:
		return "ReservationFailed"
	case KindHolePunch:
		return "HolePunch"
	case KindReachabilityChanged:
		return "ReachabilityChanged"
	case KindUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Hole-punch outcomes carried in Event.Outcome.
const (
	HolePunchStarted   = "started"
	HolePunchSucceeded = "succeeded"
	HolePunchFailed    = "failed"
	HolePunchDirect    = "direct-dial"
	HolePunchError     = "protocol-error"
)

// Event is a single connection lifecycle fact. Which fields are set depends
// on Kind; unset fields are zero values. Events are never persisted.
type Event struct {
	// Kind tags the event.
	Kind EventKind

	// Peer is the remote peer this event relates to, if any.
	Peer peer.ID

	// Addr is the address relevant to the event: the bound listener
	// address, the remote connection address, or the observed address.
	Addr multiaddr.Multiaddr

	// Addrs carries address lists (identify listen addresses, reservation
	// addresses).
	Addrs []multiaddr.Multiaddr

	// Direction is set for connection open/close events.
	Direction network.Direction

	// Limited is true when the connection is relayed rather than direct.
	Limited bool

	// RTT is set for ping results.
	RTT time.Duration

	// Outcome is set for hole-punch events.
	Outcome string

	// ProtocolVersion and AgentVersion are set for identification events.
	// Version mismatches are reported, not enforced.
	ProtocolVersion string
	AgentVersion    string

	// Reachability is set for reachability change events.
	Reachability network.Reachability

	// Expiry is set for reservation events.
	Expiry time.Time

	// Err carries the failure for error events. Nil otherwise.
	Err error

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// IsError returns true if this event represents an error condition.
func (e Event) IsError() bool {
	return e.Err != nil
}
