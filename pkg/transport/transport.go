// Package transport composes the layered libp2p transport used by p2pmidi
// nodes: TCP streams secured with Noise and multiplexed with yamux, QUIC-v1
// as a parallel low-latency path, and the circuit-relay transport for
// relay-mediated connections.
package transport

import (
	"fmt"

	"github.com/libp2p/go-libp2p"
	coreconnmgr "github.com/libp2p/go-libp2p/core/connmgr"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/protocol/holepunch"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	libp2pquic "github.com/libp2p/go-libp2p/p2p/transport/quic"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matheusfillipe/p2pmidi/pkg/identity"
)

// Config contains configuration for building the node transport.
type Config struct {
	// Key is the node identity used to secure every connection.
	Key identity.Keypair

	// ListenAddrs are the multiaddresses to listen on.
	ListenAddrs []multiaddr.Multiaddr

	// ProtocolVersion is exchanged during the identification handshake.
	ProtocolVersion string

	// UserAgent identifies this implementation to peers.
	UserAgent string

	// ConnMgrLowWater is the low watermark for the connection manager.
	ConnMgrLowWater int

	// ConnMgrHighWater is the high watermark for the connection manager.
	ConnMgrHighWater int

	// HolePunchTracer receives hole-punch lifecycle events. Optional.
	HolePunchTracer holepunch.EventTracer

	// Gater, when set, is installed as the connection gater. Used to
	// refuse connections to and from blocked peers.
	Gater coreconnmgr.ConnectionGater

	// ForceReachabilityPrivate makes the host assume it is behind a NAT
	// instead of probing. Used by tests and demo deployments where both
	// peers must take the relayed path.
	ForceReachabilityPrivate bool

	// PrometheusRegisterer receives libp2p's own metrics. Optional; when
	// nil the default registerer is used.
	PrometheusRegisterer prometheus.Registerer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConnMgrLowWater:  100,
		ConnMgrHighWater: 400,
	}
}

// NewHost builds the layered transport host. Both the QUIC and TCP dialers
// are attempted in parallel by the swarm; whichever secure handshake
// completes first carries the connection. The circuit-relay transport is
// enabled so relayed addresses are dialable and listenable like any other.
//
// Construction failure is fatal to startup and is returned to the caller.
func NewHost(cfg Config) (host.Host, error) {
	if cfg.Key.Priv == nil {
		return nil, fmt.Errorf("transport requires an identity key")
	}

	cm, err := connmgr.NewConnManager(
		cfg.ConnMgrLowWater,
		cfg.ConnMgrHighWater,
		connmgr.WithGracePeriod(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	var hpOpts []holepunch.Option
	if cfg.HolePunchTracer != nil {
		hpOpts = append(hpOpts, holepunch.WithTracer(cfg.HolePunchTracer))
	}

	opts := []libp2p.Option{
		libp2p.Identity(cfg.Key.Priv),
		libp2p.ListenAddrs(cfg.ListenAddrs...),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Transport(libp2pquic.NewTransport),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
		libp2p.ConnectionManager(cm),
		libp2p.EnableRelay(),
		libp2p.EnableHolePunching(hpOpts...),
		libp2p.NATPortMap(),
	}

	if cfg.ProtocolVersion != "" {
		opts = append(opts, libp2p.ProtocolVersion(cfg.ProtocolVersion))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, libp2p.UserAgent(cfg.UserAgent))
	}
	if cfg.Gater != nil {
		opts = append(opts, libp2p.ConnectionGater(cfg.Gater))
	}
	if cfg.ForceReachabilityPrivate {
		opts = append(opts, libp2p.ForceReachabilityPrivate())
	}
	if cfg.PrometheusRegisterer != nil {
		opts = append(opts, libp2p.PrometheusRegisterer(cfg.PrometheusRegisterer))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}
	return h, nil
}
