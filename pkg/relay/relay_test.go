package relay

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/p2p/protocol/circuitv2/client"
	"github.com/multiformats/go-multiaddr"

	"github.com/matheusfillipe/p2pmidi/pkg/addrutil"
	"github.com/matheusfillipe/p2pmidi/pkg/identity"
	"github.com/matheusfillipe/p2pmidi/pkg/transport"
)

func newHost(t *testing.T) host.Host {
	t.Helper()
	kp, err := identity.Generate()
	if err != nil {
		t.Fatalf("failed to generate identity: %v", err)
	}
	cfg := transport.DefaultConfig()
	cfg.Key = kp
	cfg.ListenAddrs = []multiaddr.Multiaddr{
		multiaddr.StringCast("/ip4/127.0.0.1/tcp/0"),
	}
	cfg.ProtocolVersion = "/p2pmidi/0.1.0"
	h, err := transport.NewHost(cfg)
	if err != nil {
		t.Fatalf("NewHost failed: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("New without a host should fail")
	}
}

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	want := DefaultConfig()
	if cfg != want {
		t.Errorf("expected defaults %+v, got %+v", want, cfg)
	}
}

func TestService_GrantsReservation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	relayHost := newHost(t)
	svc, err := New(relayHost, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer svc.Close()

	clientHost := newHost(t)
	rsv, err := client.Reserve(ctx, clientHost,
		peer.AddrInfo{ID: relayHost.ID(), Addrs: relayHost.Addrs()})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	if !rsv.Expiration.After(time.Now()) {
		t.Error("reservation should expire in the future")
	}
	if len(rsv.Addrs) == 0 {
		t.Error("reservation should carry relay addresses")
	}
}

func TestService_RelaysConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	relayHost := newHost(t)
	svc, err := New(relayHost, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer svc.Close()

	listener := newHost(t)
	if _, err := client.Reserve(ctx, listener,
		peer.AddrInfo{ID: relayHost.ID(), Addrs: relayHost.Addrs()}); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	dialer := newHost(t)
	circuit, err := addrutil.CircuitDialAddr(relayHost.Addrs()[0], relayHost.ID(), listener.ID())
	if err != nil {
		t.Fatalf("CircuitDialAddr failed: %v", err)
	}
	dialer.Peerstore().AddAddrs(listener.ID(), []multiaddr.Multiaddr{circuit}, peerstore.TempAddrTTL)

	if err := dialer.Connect(ctx, peer.AddrInfo{ID: listener.ID()}); err != nil {
		t.Fatalf("circuit dial failed: %v", err)
	}

	conns := dialer.Network().ConnsToPeer(listener.ID())
	if len(conns) == 0 {
		t.Fatal("expected a connection to the listener")
	}
	if !conns[0].Stat().Limited {
		t.Error("relayed connection should be limited")
	}
}
