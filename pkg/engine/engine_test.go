package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/multiformats/go-multiaddr"

	"github.com/matheusfillipe/p2pmidi/pkg/identity"
	"github.com/matheusfillipe/p2pmidi/pkg/transport"
)

type nopLog struct{}

func (nopLog) Debug(string, ...any) {}
func (nopLog) Info(string, ...any)  {}
func (nopLog) Warn(string, ...any)  {}
func (nopLog) Error(string, ...any) {}

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened(string)          {}
func (nopMetrics) ConnectionClosed(string)          {}
func (nopMetrics) DialResult(string)                {}
func (nopMetrics) ReservationResult(string)         {}
func (nopMetrics) HolePunchResult(string)           {}
func (nopMetrics) PingRTT(float64)                  {}
func (nopMetrics) PingTimeout()                     {}
func (nopMetrics) ObservedAddressAdded()            {}
func (nopMetrics) RelayHandshakeDuration(float64)   {}
func (nopMetrics) RelayHandshakeResult(string)      {}

func newTestHost(t *testing.T) (host.Host, *Sink) {
	t.Helper()
	kp, err := identity.Generate()
	if err != nil {
		t.Fatalf("failed to generate identity: %v", err)
	}
	sink := NewSink(64)
	cfg := transport.DefaultConfig()
	cfg.Key = kp
	cfg.ListenAddrs = []multiaddr.Multiaddr{
		multiaddr.StringCast("/ip4/127.0.0.1/tcp/0"),
	}
	cfg.ProtocolVersion = "/p2pmidi/0.1.0"
	cfg.HolePunchTracer = sink.HolePunchTracer()
	h, err := transport.NewHost(cfg)
	if err != nil {
		t.Fatalf("NewHost failed: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h, sink
}

func newTestEngine(t *testing.T, h host.Host, sink *Sink, cfg Config) *Engine {
	t.Helper()
	e, err := New(h, sink, cfg, nopLog{}, nopMetrics{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func relayConfig(t *testing.T, relay host.Host) Config {
	t.Helper()
	return Config{
		RelayID:    relay.ID(),
		RelayAddrs: relay.Addrs(),
	}
}

func TestNew_Validation(t *testing.T) {
	h, sink := newTestHost(t)
	relayID, err := identity.PeerIDFromSeed(42)
	if err != nil {
		t.Fatalf("PeerIDFromSeed failed: %v", err)
	}
	relayAddr := multiaddr.StringCast("/ip4/127.0.0.1/tcp/4001")

	cases := []struct {
		name string
		run  func() (*Engine, error)
	}{
		{"nil host", func() (*Engine, error) {
			return New(nil, sink, Config{RelayID: relayID, RelayAddrs: []multiaddr.Multiaddr{relayAddr}}, nopLog{}, nopMetrics{}, nil)
		}},
		{"nil sink", func() (*Engine, error) {
			return New(h, nil, Config{RelayID: relayID, RelayAddrs: []multiaddr.Multiaddr{relayAddr}}, nopLog{}, nopMetrics{}, nil)
		}},
		{"missing relay identity", func() (*Engine, error) {
			return New(h, sink, Config{RelayAddrs: []multiaddr.Multiaddr{relayAddr}}, nopLog{}, nopMetrics{}, nil)
		}},
		{"missing relay addresses", func() (*Engine, error) {
			return New(h, sink, Config{RelayID: relayID}, nopLog{}, nopMetrics{}, nil)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.run(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	if cfg.BindGrace != time.Second {
		t.Errorf("unexpected bind grace: %v", cfg.BindGrace)
	}
	if cfg.DialTimeout == 0 || cfg.ReserveTimeout == 0 || cfg.HandshakeTimeout == 0 {
		t.Error("timeouts should default to non-zero")
	}
	if cfg.BackoffBase == 0 || cfg.BackoffMax < cfg.BackoffBase {
		t.Error("backoff defaults are inconsistent")
	}
	if cfg.UnresponsiveAfter < 1 {
		t.Error("unresponsive threshold should be at least one probe")
	}
}

func TestEngine_StartStop(t *testing.T) {
	h, sink := newTestHost(t)
	relay, _ := newTestHost(t)

	e := newTestEngine(t, h, sink, relayConfig(t, relay))
	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := e.Start(); err == nil {
		t.Error("second Start should fail")
	}
	e.Stop()
	e.Stop() // idempotent
}

func TestEngine_DialSelf(t *testing.T) {
	h, sink := newTestHost(t)
	relay, _ := newTestHost(t)

	e := newTestEngine(t, h, sink, relayConfig(t, relay))
	if err := e.DialPeer(context.Background(), h.ID()); !errors.Is(err, ErrSelfDial) {
		t.Errorf("expected ErrSelfDial, got %v", err)
	}
}

func TestEngine_Bootstrap(t *testing.T) {
	h, sink := newTestHost(t)
	relay, _ := newTestHost(t)

	cfg := relayConfig(t, relay)
	cfg.BindGrace = 10 * time.Millisecond
	e := newTestEngine(t, h, sink, cfg)

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if len(e.ExternalAddrs()) == 0 {
		t.Error("bootstrap should have learned at least one external address")
	}
}

func TestEngine_BootstrapRepeat(t *testing.T) {
	h, sink := newTestHost(t)
	relay, _ := newTestHost(t)

	cfg := relayConfig(t, relay)
	cfg.BindGrace = 10 * time.Millisecond
	cfg.HandshakeTimeout = 3 * time.Second
	e := newTestEngine(t, h, sink, cfg)

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Bootstrap(ctx); err != nil {
		t.Fatalf("first Bootstrap failed: %v", err)
	}

	// The relay is still connected and identified, so no fresh identify
	// event will fire. A repeat run must complete from current state
	// instead of waiting out the handshake timeout.
	if err := e.Bootstrap(ctx); err != nil {
		t.Fatalf("repeat Bootstrap failed: %v", err)
	}
}

func TestEngine_BootstrapUnreachableRelay(t *testing.T) {
	h, sink := newTestHost(t)
	relayID, err := identity.PeerIDFromSeed(42)
	if err != nil {
		t.Fatalf("PeerIDFromSeed failed: %v", err)
	}

	cfg := Config{
		RelayID:              relayID,
		RelayAddrs:           []multiaddr.Multiaddr{multiaddr.StringCast("/ip4/127.0.0.1/tcp/1")},
		BindGrace:            time.Millisecond,
		DialTimeout:          200 * time.Millisecond,
		HandshakeTimeout:     2 * time.Second,
		BackoffBase:          10 * time.Millisecond,
		MaxHandshakeAttempts: 2,
	}
	e := newTestEngine(t, h, sink, cfg)
	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Stop()

	err = e.Bootstrap(context.Background())
	if !errors.Is(err, ErrRelayHandshake) {
		t.Errorf("expected ErrRelayHandshake, got %v", err)
	}
}

func TestHandshakeWatch_RequiresBothConditions(t *testing.T) {
	relayID, err := identity.PeerIDFromSeed(42)
	if err != nil {
		t.Fatalf("PeerIDFromSeed failed: %v", err)
	}

	var w handshakeWatch
	done, _ := w.arm(relayID)

	// Identification alone is not enough.
	w.onIdentified(relayID, false)
	select {
	case <-done:
		t.Fatal("handshake should not complete without an observed address")
	default:
	}

	// A later exchange carrying the observed address completes it.
	w.onIdentified(relayID, true)
	select {
	case <-done:
	default:
		t.Fatal("handshake should complete once both conditions hold")
	}
}

func TestHandshakeWatch_IgnoresOtherPeers(t *testing.T) {
	relayID, err := identity.PeerIDFromSeed(42)
	if err != nil {
		t.Fatalf("PeerIDFromSeed failed: %v", err)
	}
	other, err := identity.PeerIDFromSeed(44)
	if err != nil {
		t.Fatalf("PeerIDFromSeed failed: %v", err)
	}

	var w handshakeWatch
	done, lost := w.arm(relayID)

	w.onIdentified(other, true)
	w.onDisconnected(other)

	select {
	case <-done:
		t.Fatal("another peer's identify should not complete the handshake")
	case <-lost:
		t.Fatal("another peer's disconnect should not fail the handshake")
	default:
	}
}

func TestHandshakeWatch_RelayDisconnectFailsAttempt(t *testing.T) {
	relayID, err := identity.PeerIDFromSeed(42)
	if err != nil {
		t.Fatalf("PeerIDFromSeed failed: %v", err)
	}

	var w handshakeWatch
	_, lost := w.arm(relayID)

	w.onDisconnected(relayID)
	select {
	case <-lost:
	default:
		t.Fatal("relay disconnect should fail the armed attempt")
	}

	// Disarmed: further notifications are ignored.
	w.onIdentified(relayID, true)
	w.onDisconnected(relayID)
}

func TestEngine_UnresponsiveTracking(t *testing.T) {
	h, sink := newTestHost(t)
	relay, _ := newTestHost(t)

	cfg := relayConfig(t, relay)
	cfg.UnresponsiveAfter = 2
	e := newTestEngine(t, h, sink, cfg)

	p, err := identity.PeerIDFromSeed(44)
	if err != nil {
		t.Fatalf("PeerIDFromSeed failed: %v", err)
	}

	probeErr := errors.New("probe timed out")
	e.handle(Event{Kind: KindPing, Peer: p, Err: probeErr})
	if e.unresponsive[p] {
		t.Error("one missed probe should not mark the peer unresponsive")
	}

	e.handle(Event{Kind: KindPing, Peer: p, Err: probeErr})
	if !e.unresponsive[p] {
		t.Error("two missed probes should mark the peer unresponsive")
	}

	// A successful probe clears the state.
	e.handle(Event{Kind: KindPing, Peer: p, RTT: 5 * time.Millisecond})
	if e.unresponsive[p] {
		t.Error("a successful probe should clear the unresponsive mark")
	}
	if e.pingFails[p] != 0 {
		t.Error("a successful probe should reset the miss counter")
	}
}

func TestEngine_ObservedAddressIsMonotonic(t *testing.T) {
	h, sink := newTestHost(t)
	relay, _ := newTestHost(t)

	e := newTestEngine(t, h, sink, relayConfig(t, relay))

	addr := multiaddr.StringCast("/ip4/203.0.113.7/tcp/8040")
	e.handleIdentified(Event{Kind: KindIdentified, Peer: relay.ID(), Addr: addr})
	e.handleIdentified(Event{Kind: KindIdentified, Peer: relay.ID(), Addr: addr})

	if e.external.Len() != 1 {
		t.Errorf("expected 1 external address, got %d", e.external.Len())
	}
}
