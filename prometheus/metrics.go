// Package prometheus provides a Prometheus implementation of the p2pmidi.Metrics interface.
//
// This package enables integration with Prometheus monitoring systems. All metrics
// are registered with the default Prometheus registry and follow Prometheus naming
// conventions.
//
// # Metric Names
//
// All metrics use the configured namespace prefix (default: "p2pmidi"). The full
// metric name follows the pattern: {namespace}_{name}
//
// # Counters
//
//	p2pmidi_connections_opened_total{direction="inbound|outbound"}
//	p2pmidi_connections_closed_total{direction="inbound|outbound"}
//	p2pmidi_dials_total{result="success|failure"}
//	p2pmidi_relay_handshakes_total{result="success|failure"}
//	p2pmidi_reservations_total{result="success|failure"}
//	p2pmidi_hole_punches_total{result="success|failure"}
//	p2pmidi_observed_addresses_total
//	p2pmidi_ping_timeouts_total
//	p2pmidi_events_emitted_total{kind="<kind>"}
//	p2pmidi_events_dropped_total
//
// # Histograms
//
//	p2pmidi_relay_handshake_duration_seconds
//	p2pmidi_ping_rtt_seconds
//
// # Example Usage
//
//	import (
//	    "github.com/matheusfillipe/p2pmidi"
//	    prommetrics "github.com/matheusfillipe/p2pmidi/prometheus"
//	    "github.com/prometheus/client_golang/prometheus/promhttp"
//	)
//
//	func main() {
//	    metrics := prommetrics.NewMetrics("myapp")
//
//	    cfg := p2pmidi.NewConfig(path,
//	        p2pmidi.WithSeed(42),
//	        p2pmidi.WithMetrics(metrics),
//	    )
//
//	    node, err := p2pmidi.New(cfg)
//	    // ...
//
//	    // Expose metrics endpoint
//	    http.Handle("/metrics", promhttp.Handler())
//	    http.ListenAndServe(":9090", nil)
//	}
package prometheus

import (
	"github.com/matheusfillipe/p2pmidi"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace is the default namespace for all metrics.
const DefaultNamespace = "p2pmidi"

// Metrics implements the p2pmidi.Metrics interface using Prometheus metrics.
// All metrics are registered with the default Prometheus registry.
//
// Metrics is safe for concurrent use.
type Metrics struct {
	// Connection metrics
	connectionsOpened *prometheus.CounterVec
	connectionsClosed *prometheus.CounterVec
	dials             *prometheus.CounterVec

	// Relay metrics
	relayHandshakeDuration prometheus.Histogram
	relayHandshakes        *prometheus.CounterVec
	reservations           *prometheus.CounterVec

	// NAT traversal metrics
	holePunches       *prometheus.CounterVec
	observedAddresses prometheus.Counter

	// Liveness metrics
	pingRTT      prometheus.Histogram
	pingTimeouts prometheus.Counter

	// Event metrics
	eventsEmitted *prometheus.CounterVec
	eventsDropped prometheus.Counter
}

// Ensure Metrics implements p2pmidi.Metrics.
var _ p2pmidi.Metrics = (*Metrics)(nil)

// NewMetrics creates a new Prometheus metrics collector with the given namespace.
// If namespace is empty, DefaultNamespace ("p2pmidi") is used.
//
// All metrics are automatically registered with the default Prometheus registry.
// If registration fails (e.g., metrics already registered), this function will panic.
// To avoid panics, use NewMetricsWithRegisterer with a custom registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Prometheus metrics collector with the given
// namespace and registerer. This allows using a custom registry for testing or
// to avoid conflicts with other metrics.
//
// If namespace is empty, DefaultNamespace ("p2pmidi") is used.
// If registerer is nil, metrics will not be registered automatically.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		connectionsOpened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_opened_total",
				Help:      "Total number of connections opened",
			},
			[]string{"direction"},
		),
		connectionsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_closed_total",
				Help:      "Total number of connections closed",
			},
			[]string{"direction"},
		),
		dials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dials_total",
				Help:      "Total number of outbound dials by result",
			},
			[]string{"result"},
		),
		relayHandshakeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "relay_handshake_duration_seconds",
				Help:      "Histogram of address-learning handshake durations",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		relayHandshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_handshakes_total",
				Help:      "Total number of address-learning handshakes by outcome",
			},
			[]string{"result"},
		),
		reservations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reservations_total",
				Help:      "Total number of relay reservation attempts by outcome",
			},
			[]string{"result"},
		),
		holePunches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hole_punches_total",
				Help:      "Total number of direct-connection upgrade attempts by outcome",
			},
			[]string{"result"},
		),
		observedAddresses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "observed_addresses_total",
				Help:      "Total number of external addresses learned from remote observers",
			},
		),
		pingRTT: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ping_rtt_seconds",
				Help:      "Histogram of liveness probe round-trip times",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		pingTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ping_timeouts_total",
				Help:      "Total number of liveness probes that missed",
			},
		),
		eventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_emitted_total",
				Help:      "Total number of events emitted by kind",
			},
			[]string{"kind"},
		),
		eventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Total number of events dropped due to buffer full",
			},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.connectionsOpened,
			m.connectionsClosed,
			m.dials,
			m.relayHandshakeDuration,
			m.relayHandshakes,
			m.reservations,
			m.holePunches,
			m.observedAddresses,
			m.pingRTT,
			m.pingTimeouts,
			m.eventsEmitted,
			m.eventsDropped,
		)
	}

	return m
}

// ConnectionOpened implements p2pmidi.Metrics.
func (m *Metrics) ConnectionOpened(direction string) {
	m.connectionsOpened.WithLabelValues(direction).Inc()
}

// ConnectionClosed implements p2pmidi.Metrics.
func (m *Metrics) ConnectionClosed(direction string) {
	m.connectionsClosed.WithLabelValues(direction).Inc()
}

// DialResult implements p2pmidi.Metrics.
func (m *Metrics) DialResult(result string) {
	m.dials.WithLabelValues(result).Inc()
}

// RelayHandshakeDuration implements p2pmidi.Metrics.
func (m *Metrics) RelayHandshakeDuration(seconds float64) {
	m.relayHandshakeDuration.Observe(seconds)
}

// RelayHandshakeResult implements p2pmidi.Metrics.
func (m *Metrics) RelayHandshakeResult(result string) {
	m.relayHandshakes.WithLabelValues(result).Inc()
}

// ReservationResult implements p2pmidi.Metrics.
func (m *Metrics) ReservationResult(result string) {
	m.reservations.WithLabelValues(result).Inc()
}

// HolePunchResult implements p2pmidi.Metrics.
func (m *Metrics) HolePunchResult(result string) {
	m.holePunches.WithLabelValues(result).Inc()
}

// ObservedAddressAdded implements p2pmidi.Metrics.
func (m *Metrics) ObservedAddressAdded() {
	m.observedAddresses.Inc()
}

// PingRTT implements p2pmidi.Metrics.
func (m *Metrics) PingRTT(seconds float64) {
	m.pingRTT.Observe(seconds)
}

// PingTimeout implements p2pmidi.Metrics.
func (m *Metrics) PingTimeout() {
	m.pingTimeouts.Inc()
}

// EventEmitted implements p2pmidi.Metrics.
func (m *Metrics) EventEmitted(kind string) {
	m.eventsEmitted.WithLabelValues(kind).Inc()
}

// EventDropped implements p2pmidi.Metrics.
func (m *Metrics) EventDropped() {
	m.eventsDropped.Inc()
}
