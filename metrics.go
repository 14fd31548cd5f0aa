package p2pmidi

// Metrics defines the metrics collection interface for the node. It is
// designed to be compatible with Prometheus and other metrics systems.
//
// Implementations must be safe for concurrent use.
//
// Metric naming convention:
//   - Counters: <name>_total (e.g., connections_total)
//   - Histograms: <name>_seconds (e.g., relay_handshake_duration_seconds)
//   - Gauges: current_<name> (e.g., current_connections)
type Metrics interface {
	// Connection metrics

	// ConnectionOpened increments when a connection is established.
	// Labels: direction (inbound, outbound)
	ConnectionOpened(direction string)

	// ConnectionClosed increments when a connection is closed.
	// Labels: direction (inbound, outbound)
	ConnectionClosed(direction string)

	// DialResult records the result of an outbound dial.
	// Labels: result (success, failure)
	DialResult(result string)

	// Relay metrics

	// RelayHandshakeDuration records how long the address-learning
	// handshake took.
	RelayHandshakeDuration(seconds float64)

	// RelayHandshakeResult records the outcome of the handshake.
	// Labels: result (success, failure)
	RelayHandshakeResult(result string)

	// ReservationResult records a relay reservation outcome.
	// Labels: result (success, failure)
	ReservationResult(result string)

	// NAT traversal metrics

	// HolePunchResult records a direct-connection upgrade outcome.
	// Labels: result (success, failure)
	HolePunchResult(result string)

	// ObservedAddressAdded increments when a new external address is
	// learned.
	ObservedAddressAdded()

	// Liveness metrics

	// PingRTT records a liveness probe round-trip time.
	PingRTT(seconds float64)

	// PingTimeout increments when a liveness probe misses.
	PingTimeout()

	// Event metrics

	// EventEmitted records an event delivered to the application.
	// Labels: kind (the event kind)
	EventEmitted(kind string)

	// EventDropped records an event lost to a full application buffer.
	EventDropped()
}

// NopMetrics discards all metrics. It is the default when no metrics
// collector is configured.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) ConnectionOpened(direction string)        {}
func (NopMetrics) ConnectionClosed(direction string)        {}
func (NopMetrics) DialResult(result string)                 {}
func (NopMetrics) RelayHandshakeDuration(seconds float64)   {}
func (NopMetrics) RelayHandshakeResult(result string)       {}
func (NopMetrics) ReservationResult(result string)          {}
func (NopMetrics) HolePunchResult(result string)            {}
func (NopMetrics) ObservedAddressAdded()                    {}
func (NopMetrics) PingRTT(seconds float64)                  {}
func (NopMetrics) PingTimeout()                             {}
func (NopMetrics) EventEmitted(kind string)                 {}
func (NopMetrics) EventDropped()                            {}
