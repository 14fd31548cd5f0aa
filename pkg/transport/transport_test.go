package transport

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/matheusfillipe/p2pmidi/pkg/identity"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	kp, err := identity.Generate()
	if err != nil {
		t.Fatalf("failed to generate identity: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Key = kp
	cfg.ListenAddrs = []multiaddr.Multiaddr{
		multiaddr.StringCast("/ip4/127.0.0.1/tcp/0"),
		multiaddr.StringCast("/ip4/127.0.0.1/udp/0/quic-v1"),
	}
	cfg.ProtocolVersion = "/p2pmidi/0.1.0"
	return cfg
}

func TestNewHost(t *testing.T) {
	h, err := NewHost(testConfig(t))
	if err != nil {
		t.Fatalf("NewHost failed: %v", err)
	}
	defer h.Close()

	if h.ID() == "" {
		t.Error("host should have a peer ID")
	}
	if len(h.Addrs()) == 0 {
		t.Error("host should have listen addresses")
	}
}

func TestNewHost_IdentityIsStable(t *testing.T) {
	kp, err := identity.FromSeed(42)
	if err != nil {
		t.Fatalf("FromSeed failed: %v", err)
	}
	cfg := testConfig(t)
	cfg.Key = kp

	h, err := NewHost(cfg)
	if err != nil {
		t.Fatalf("NewHost failed: %v", err)
	}
	defer h.Close()

	if h.ID() != kp.ID {
		t.Errorf("host ID %s does not match identity %s", h.ID(), kp.ID)
	}
}

func TestNewHost_MissingKey(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := NewHost(cfg); err == nil {
		t.Error("NewHost without identity should fail")
	}
}

func TestNewHost_InvalidListenAddr(t *testing.T) {
	cfg := testConfig(t)
	// An address outside any local interface cannot be bound.
	cfg.ListenAddrs = []multiaddr.Multiaddr{
		multiaddr.StringCast("/ip4/240.0.0.1/tcp/1"),
	}
	h, err := NewHost(cfg)
	if err == nil {
		h.Close()
		t.Skip("platform allowed binding a non-local address")
	}
}

func TestHosts_Connect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	h1, err := NewHost(testConfig(t))
	if err != nil {
		t.Fatalf("NewHost 1 failed: %v", err)
	}
	defer h1.Close()

	h2, err := NewHost(testConfig(t))
	if err != nil {
		t.Fatalf("NewHost 2 failed: %v", err)
	}
	defer h2.Close()

	err = h1.Connect(ctx, peer.AddrInfo{ID: h2.ID(), Addrs: h2.Addrs()})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if h1.Network().Connectedness(h2.ID()).String() != "Connected" {
		t.Error("h1 should be connected to h2")
	}
}
