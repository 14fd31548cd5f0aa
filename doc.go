/*
Package p2pmidi establishes peer-to-peer connections between nodes that
are typically both behind NATs, using a relay server for introduction and
hole punching for direct connectivity.

The library handles identity derivation, transport setup, relay-assisted
address learning, circuit dialing, and connection liveness, while leaving
what flows over the connections to the consuming application.

# Features

  - Deterministic Ed25519 identities derived from single-byte seeds
  - Dual TCP and QUIC transports with Noise security and yamux muxing
  - Relay-assisted address-learning handshake with retry and backoff
  - Circuit dialing through a relay with automatic hole-punch upgrade
  - Relay listening reservations with automatic refresh
  - Ordered connection lifecycle events
  - Periodic liveness probing with unresponsive-peer reporting
  - JSON-persisted peer book with YAML import/export
  - Thread-safe concurrent operations

# Quick Start

Create and start a node:

	cfg := p2pmidi.NewConfig("./peers.json",
		p2pmidi.WithSeed(42),
		p2pmidi.WithRelay("relay.example.com", 8040))

	node, err := p2pmidi.New(cfg)
	if err != nil {
		// Handle error
	}

	if err := node.Start(ctx); err != nil {
		// A relay handshake failure is recoverable: the node is
		// running and Bootstrap(ctx) may be retried.
	}
	defer node.Stop()

Accept connections through the relay:

	node.Listen(ctx)

Dial a peer whose identity derives from a shared seed:

	peerID, err := node.DialSeed(ctx, 44)

Monitor connection events:

	for event := range node.Events() {
		switch event.Kind {
		case p2pmidi.EventCircuitOpened:
			fmt.Printf("relayed connection to %s\n", event.Peer)
		case p2pmidi.EventHolePunch:
			if event.Outcome == p2pmidi.HolePunchSucceeded {
				fmt.Printf("direct connection to %s\n", event.Peer)
			}
		case p2pmidi.EventDisconnected:
			fmt.Printf("disconnected from %s\n", event.Peer)
		}
	}

# Connection Flow

 1. Start() binds listeners, connects to the relay, and learns the
    node's external addresses from the relay's observations
 2. Listen() reserves a slot on the relay; remote peers can now dial in
 3. DialPeer() opens a relayed circuit to the target
 4. Hole punching tries to upgrade the circuit to a direct connection
    in the background; the relayed connection stays up if it fails
 5. Liveness probes run continuously; unresponsive peers are reported
    but never disconnected by the library

# Thread Safety

All public Node methods are thread-safe. The Events channel is safe for
a single consumer; a full event buffer drops events rather than stalling
the node.

# Dependencies

  - github.com/libp2p/go-libp2p - P2P networking, relay, hole punching
  - github.com/multiformats/go-multiaddr - Address representation
  - github.com/multiformats/go-multiaddr-dns - Relay hostname resolution

# See Also

  - cmd/p2pmidi - Command-line node and relay server
  - prometheus - Prometheus metrics implementation
  - otel - OpenTelemetry tracing wrapper
*/
package p2pmidi
