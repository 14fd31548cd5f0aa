package p2pmidi

import "github.com/matheusfillipe/p2pmidi/pkg/engine"

// Event is a connection lifecycle event delivered on the Events channel.
// Events carry everything the application needs to react; the node never
// persists them.
type Event = engine.Event

// EventKind tags an Event.
type EventKind = engine.EventKind

// Event kinds.
const (
	// EventUnknown marks events the node does not recognize. Ignorable.
	EventUnknown = engine.KindUnknown

	// EventListenerBound fires when a local listener is bound.
	EventListenerBound = engine.KindListenerBound

	// EventConnected fires when a direct connection is established.
	EventConnected = engine.KindConnected

	// EventCircuitOpened fires when a relayed connection opens.
	EventCircuitOpened = engine.KindCircuitOpened

	// EventDisconnected fires when a connection closes.
	EventDisconnected = engine.KindDisconnected

	// EventDialFailed fires when an outbound dial fails.
	EventDialFailed = engine.KindDialFailed

	// EventIdentified fires when the identification exchange with a peer
	// completes.
	EventIdentified = engine.KindIdentified

	// EventIdentifyFailed fires when the identification exchange fails.
	EventIdentifyFailed = engine.KindIdentifyFailed

	// EventObservedAddress fires when a peer reports a new externally
	// observed address for this node.
	EventObservedAddress = engine.KindObservedAddress

	// EventPing reports a liveness probe result.
	EventPing = engine.KindPing

	// EventPeerUnresponsive fires when a peer misses consecutive liveness
	// probes. The connection stays open; closing it is the application's
	// decision.
	EventPeerUnresponsive = engine.KindPeerUnresponsive

	// EventReservationAccepted fires when the relay accepts a listening
	// reservation.
	EventReservationAccepted = engine.KindReservationAccepted

	// EventReservationFailed fires when a reservation is denied or times
	// out.
	EventReservationFailed = engine.KindReservationFailed

	// EventHolePunch reports a direct-connection upgrade attempt.
	EventHolePunch = engine.KindHolePunch

	// EventReachabilityChanged fires when the node's NAT reachability
	// assessment changes.
	EventReachabilityChanged = engine.KindReachabilityChanged
)

// Hole-punch outcomes carried in Event.Outcome.
const (
	HolePunchStarted   = engine.HolePunchStarted
	HolePunchSucceeded = engine.HolePunchSucceeded
	HolePunchFailed    = engine.HolePunchFailed
	HolePunchDirect    = engine.HolePunchDirect
	HolePunchError     = engine.HolePunchError
)
