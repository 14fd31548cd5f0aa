// Package relay runs the server side of the circuit protocol: a publicly
// reachable node that grants listening reservations and forwards traffic
// between peers that cannot reach each other directly.
package relay

import (
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	relayv2 "github.com/libp2p/go-libp2p/p2p/protocol/circuitv2/relay"
)

// Config bounds the resources the relay grants to its clients. Zero values
// fall back to the defaults below.
type Config struct {
	// ReservationTTL is how long a listening reservation stays valid.
	// Clients refresh before expiry.
	ReservationTTL time.Duration

	// MaxReservations caps concurrent listening reservations.
	MaxReservations int

	// MaxCircuits caps open circuits per peer.
	MaxCircuits int

	// CircuitDuration and CircuitData limit each relayed connection.
	// Circuits exist to bootstrap a direct connection, not to carry
	// application traffic indefinitely.
	CircuitDuration time.Duration
	CircuitData     int64

	// Unlimited removes the per-circuit duration and data limits. For
	// deployments where hole punching routinely fails and the relayed
	// path is the connection.
	Unlimited bool
}

// DefaultConfig returns the relay resource defaults.
func DefaultConfig() Config {
	return Config{
		ReservationTTL:  time.Hour,
		MaxReservations: 128,
		MaxCircuits:     16,
		CircuitDuration: 5 * time.Minute,
		CircuitData:     1 << 19, // 512 KiB
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.ReservationTTL == 0 {
		c.ReservationTTL = d.ReservationTTL
	}
	if c.MaxReservations == 0 {
		c.MaxReservations = d.MaxReservations
	}
	if c.MaxCircuits == 0 {
		c.MaxCircuits = d.MaxCircuits
	}
	if c.CircuitDuration == 0 {
		c.CircuitDuration = d.CircuitDuration
	}
	if c.CircuitData == 0 {
		c.CircuitData = d.CircuitData
	}
}

// Service is a running relay. Closing it stops accepting reservations and
// tears down open circuits.
type Service struct {
	relay *relayv2.Relay
}

// New starts the relay service on the given host. The host must be
// publicly reachable for the relay to be of any use; that is the
// deployment's responsibility, not checked here.
func New(h host.Host, cfg Config) (*Service, error) {
	if h == nil {
		return nil, fmt.Errorf("relay requires a host")
	}
	cfg.applyDefaults()

	resources := relayv2.DefaultResources()
	resources.ReservationTTL = cfg.ReservationTTL
	resources.MaxReservations = cfg.MaxReservations
	resources.MaxCircuits = cfg.MaxCircuits

	opts := []relayv2.Option{relayv2.WithResources(resources)}
	if cfg.Unlimited {
		opts = append(opts, relayv2.WithInfiniteLimits())
	} else {
		opts = append(opts, relayv2.WithLimit(&relayv2.RelayLimit{
			Duration: cfg.CircuitDuration,
			Data:     cfg.CircuitData,
		}))
	}

	r, err := relayv2.New(h, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start relay service: %w", err)
	}
	return &Service{relay: r}, nil
}

// Close stops the relay.
func (s *Service) Close() error {
	return s.relay.Close()
}
