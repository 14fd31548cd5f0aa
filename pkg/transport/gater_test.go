package transport

import (
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

type stubChecker struct {
	blocked map[peer.ID]bool
}

func (c stubChecker) IsBlocked(p peer.ID) bool {
	return c.blocked[p]
}

func TestBlockGater_DialInterception(t *testing.T) {
	bad := peer.ID("blocked-peer")
	good := peer.ID("good-peer")
	g := NewBlockGater(stubChecker{blocked: map[peer.ID]bool{bad: true}})

	if g.InterceptPeerDial(bad) {
		t.Error("expected dial to blocked peer to be refused")
	}
	if !g.InterceptPeerDial(good) {
		t.Error("expected dial to unblocked peer to be allowed")
	}

	addr := multiaddr.StringCast("/ip4/127.0.0.1/tcp/4001")
	if g.InterceptAddrDial(bad, addr) {
		t.Error("expected address dial to blocked peer to be refused")
	}
	if !g.InterceptAddrDial(good, addr) {
		t.Error("expected address dial to unblocked peer to be allowed")
	}
}

func TestBlockGater_SecuredInterception(t *testing.T) {
	bad := peer.ID("blocked-peer")
	good := peer.ID("good-peer")
	g := NewBlockGater(stubChecker{blocked: map[peer.ID]bool{bad: true}})

	// InterceptAccept runs before the peer ID is known; always allowed.
	if !g.InterceptAccept(nil) {
		t.Error("expected accept to be allowed before the peer is known")
	}

	if g.InterceptSecured(0, bad, nil) {
		t.Error("expected secured connection from blocked peer to be refused")
	}
	if !g.InterceptSecured(0, good, nil) {
		t.Error("expected secured connection from unblocked peer to be allowed")
	}
}
