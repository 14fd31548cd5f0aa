package p2pmidi

import (
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matheusfillipe/p2pmidi/pkg/addrutil"
	"github.com/matheusfillipe/p2pmidi/pkg/identity"
)

// Default configuration values.
const (
	// DefaultPort is the port the node listens on for TCP and QUIC.
	DefaultPort = 8040

	// DefaultRelayHost and DefaultRelayPort locate the public relay.
	DefaultRelayHost = "p2pmidirelay.fly.dev"
	DefaultRelayPort = 8040

	// DefaultRelaySeed derives the relay's identity when none is given.
	DefaultRelaySeed = 42

	DefaultBindGrace         = 1 * time.Second
	DefaultDialTimeout       = 30 * time.Second
	DefaultReserveTimeout    = 30 * time.Second
	DefaultHandshakeTimeout  = 1 * time.Minute
	DefaultBackoffBase       = 1 * time.Second
	DefaultBackoffMax        = 30 * time.Second
	DefaultPingInterval      = 15 * time.Second
	DefaultPingTimeout       = 5 * time.Second
	DefaultUnresponsiveAfter = 2
	DefaultEventBufferSize   = 100
	DefaultConnMgrLowWater   = 100
	DefaultConnMgrHighWater  = 400
)

// Config holds the configuration for a node.
type Config struct {
	// Seed derives a deterministic identity. Two installations sharing a
	// seed convention can compute each other's peer IDs without an
	// exchange. Ignored when Identity is set.
	Seed *uint8

	// Identity is an explicit keypair. Takes precedence over Seed.
	Identity *identity.Keypair

	// PeerBookPath is the file path for persisting known peers. Required.
	PeerBookPath string

	// Port is the listen port for TCP and QUIC.
	Port uint16

	// PreferIPv6 binds the wildcard IPv6 address instead of IPv4.
	PreferIPv6 bool

	// Relay locates the relay server. The hostname may be a DNS name;
	// it is resolved at start.
	Relay addrutil.Endpoint

	// RelayID is the relay's peer identity. When empty it is derived
	// from RelaySeed.
	RelayID peer.ID

	// RelaySeed derives the relay identity when RelayID is empty.
	RelaySeed *uint8

	// BindGrace is the bounded wait for local listeners before the relay
	// handshake begins.
	BindGrace time.Duration

	// DialTimeout bounds every outbound dial.
	DialTimeout time.Duration

	// ReserveTimeout bounds a relay reservation request.
	ReserveTimeout time.Duration

	// HandshakeTimeout bounds the whole relay handshake, across retries.
	HandshakeTimeout time.Duration

	// BackoffBase and BackoffMax shape handshake retry backoff.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// PingInterval and PingTimeout control liveness probing.
	PingInterval time.Duration
	PingTimeout  time.Duration

	// UnresponsiveAfter is the number of consecutive missed probes after
	// which a peer is reported unresponsive.
	UnresponsiveAfter int

	// EventBufferSize is the buffer of the application event channel.
	// A full buffer drops events rather than stalling the node.
	EventBufferSize int

	// ConnMgrLowWater and ConnMgrHighWater bound the connection count.
	ConnMgrLowWater  int
	ConnMgrHighWater int

	// ForceReachabilityPrivate makes the node treat itself as behind a
	// NAT regardless of what reachability probes conclude. Useful in
	// tests and on networks where probes are unreliable.
	ForceReachabilityPrivate bool

	// PrometheusRegisterer, when set, receives the transport's internal
	// metrics.
	PrometheusRegisterer prometheus.Registerer

	// Logger is the logger for the node. If nil, a NopLogger is used.
	// Must be safe for concurrent use.
	Logger Logger

	// Metrics is the metrics collector. If nil, a NopMetrics is used.
	// Must be safe for concurrent use.
	Metrics Metrics
}

// Validate checks the configuration and returns an error describing any
// problems found.
func (c *Config) Validate() error {
	if c.Seed == nil && c.Identity == nil {
		return ErrMissingIdentity
	}
	if c.PeerBookPath == "" {
		return ErrMissingPeerBookPath
	}
	if c.Relay.Host == "" {
		return ErrMissingRelay
	}
	for name, d := range map[string]time.Duration{
		"bind grace":        c.BindGrace,
		"dial timeout":      c.DialTimeout,
		"reserve timeout":   c.ReserveTimeout,
		"handshake timeout": c.HandshakeTimeout,
		"backoff base":      c.BackoffBase,
		"backoff max":       c.BackoffMax,
		"ping interval":     c.PingInterval,
		"ping timeout":      c.PingTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s cannot be negative", ErrInvalidConfig, name)
		}
	}
	if c.BackoffMax > 0 && c.BackoffBase > 0 && c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("%w: backoff max cannot be less than backoff base", ErrInvalidConfig)
	}
	if c.UnresponsiveAfter < 0 {
		return fmt.Errorf("%w: unresponsive threshold cannot be negative", ErrInvalidConfig)
	}
	if c.EventBufferSize < 0 {
		return fmt.Errorf("%w: event buffer size cannot be negative", ErrInvalidConfig)
	}
	if c.ConnMgrLowWater < 0 || c.ConnMgrHighWater < 0 {
		return fmt.Errorf("%w: connection manager watermarks cannot be negative", ErrInvalidConfig)
	}
	if c.ConnMgrHighWater > 0 && c.ConnMgrLowWater > c.ConnMgrHighWater {
		return fmt.Errorf("%w: connection manager low water cannot exceed high water", ErrInvalidConfig)
	}
	return nil
}

// applyDefaults sets default values for any unset optional fields.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Relay.Host == "" {
		c.Relay.Host = DefaultRelayHost
	}
	if c.Relay.Port == 0 {
		c.Relay.Port = DefaultRelayPort
	}
	if c.RelaySeed == nil {
		seed := uint8(DefaultRelaySeed)
		c.RelaySeed = &seed
	}
	if c.BindGrace == 0 {
		c.BindGrace = DefaultBindGrace
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReserveTimeout == 0 {
		c.ReserveTimeout = DefaultReserveTimeout
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	if c.UnresponsiveAfter == 0 {
		c.UnresponsiveAfter = DefaultUnresponsiveAfter
	}
	if c.EventBufferSize == 0 {
		c.EventBufferSize = DefaultEventBufferSize
	}
	if c.ConnMgrLowWater == 0 {
		c.ConnMgrLowWater = DefaultConnMgrLowWater
	}
	if c.ConnMgrHighWater == 0 {
		c.ConnMgrHighWater = DefaultConnMgrHighWater
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
}

// ConfigOption is a functional option for configuring a Node.
type ConfigOption func(*Config)

// WithSeed derives the node identity from a deterministic seed.
func WithSeed(seed uint8) ConfigOption {
	return func(c *Config) {
		c.Seed = &seed
	}
}

// WithIdentity sets an explicit keypair, overriding any seed.
func WithIdentity(kp *identity.Keypair) ConfigOption {
	return func(c *Config) {
		c.Identity = kp
	}
}

// WithPort sets the listen port for TCP and QUIC.
func WithPort(port uint16) ConfigOption {
	return func(c *Config) {
		c.Port = port
	}
}

// WithIPv6 binds the wildcard IPv6 address instead of IPv4.
func WithIPv6(enabled bool) ConfigOption {
	return func(c *Config) {
		c.PreferIPv6 = enabled
	}
}

// WithRelay sets the relay endpoint.
func WithRelay(host string, port uint16) ConfigOption {
	return func(c *Config) {
		c.Relay = addrutil.Endpoint{Host: host, Port: port}
	}
}

// WithRelayID sets the relay's peer identity explicitly.
func WithRelayID(id peer.ID) ConfigOption {
	return func(c *Config) {
		c.RelayID = id
	}
}

// WithRelaySeed derives the relay identity from a seed.
func WithRelaySeed(seed uint8) ConfigOption {
	return func(c *Config) {
		c.RelaySeed = &seed
	}
}

// WithDialTimeout sets the per-dial timeout.
func WithDialTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.DialTimeout = d
	}
}

// WithHandshakeTimeout bounds the relay handshake across retries.
func WithHandshakeTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.HandshakeTimeout = d
	}
}

// WithPingInterval sets the liveness probe period.
func WithPingInterval(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.PingInterval = d
	}
}

// WithEventBufferSize sets the application event channel buffer.
func WithEventBufferSize(size int) ConfigOption {
	return func(c *Config) {
		c.EventBufferSize = size
	}
}

// WithForceReachabilityPrivate makes the node always treat itself as
// NATed.
func WithForceReachabilityPrivate() ConfigOption {
	return func(c *Config) {
		c.ForceReachabilityPrivate = true
	}
}

// WithPrometheusRegisterer wires the transport's internal metrics into a
// Prometheus registry.
func WithPrometheusRegisterer(reg prometheus.Registerer) ConfigOption {
	return func(c *Config) {
		c.PrometheusRegisterer = reg
	}
}

// WithLogger sets the logger for the node.
func WithLogger(l Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMetrics sets the metrics collector for the node.
func WithMetrics(m Metrics) ConfigOption {
	return func(c *Config) {
		c.Metrics = m
	}
}

// NewConfig creates a Config with the required peer book path and applies
// any provided options. Defaults are applied for unset optional fields;
// the configuration is not validated.
func NewConfig(peerBookPath string, opts ...ConfigOption) *Config {
	c := &Config{PeerBookPath: peerBookPath}
	for _, opt := range opts {
		opt(c)
	}
	c.applyDefaults()
	return c
}
