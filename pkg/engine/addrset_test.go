package engine

import (
	"testing"

	"github.com/multiformats/go-multiaddr"
)

func TestAddrSet_Add(t *testing.T) {
	s := NewAddrSet()
	a := multiaddr.StringCast("/ip4/203.0.113.7/tcp/8040")

	if !s.Add(a) {
		t.Error("first add should report new")
	}
	if s.Add(a) {
		t.Error("second add of the same address should report known")
	}
	if !s.Contains(a) {
		t.Error("set should contain the added address")
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 address, got %d", s.Len())
	}
}

func TestAddrSet_Monotonic(t *testing.T) {
	s := NewAddrSet()
	addrs := []multiaddr.Multiaddr{
		multiaddr.StringCast("/ip4/203.0.113.7/tcp/8040"),
		multiaddr.StringCast("/ip4/203.0.113.7/udp/8040/quic-v1"),
		multiaddr.StringCast("/ip6/2001:db8::1/tcp/8040"),
	}
	for _, a := range addrs {
		s.Add(a)
	}

	got := s.Addrs()
	if len(got) != len(addrs) {
		t.Fatalf("expected %d addresses, got %d", len(addrs), len(got))
	}
	// Insertion order is preserved.
	for i := range addrs {
		if !got[i].Equal(addrs[i]) {
			t.Errorf("address %d: expected %s, got %s", i, addrs[i], got[i])
		}
	}
}

func TestAddrSet_SnapshotIsIndependent(t *testing.T) {
	s := NewAddrSet()
	s.Add(multiaddr.StringCast("/ip4/203.0.113.7/tcp/8040"))

	snap := s.Addrs()
	s.Add(multiaddr.StringCast("/ip4/203.0.113.8/tcp/8040"))

	if len(snap) != 1 {
		t.Errorf("snapshot should not grow, got %d", len(snap))
	}
}

func TestAddrSet_NilAddr(t *testing.T) {
	s := NewAddrSet()
	if s.Add(nil) {
		t.Error("nil address should not be added")
	}
	if s.Contains(nil) {
		t.Error("nil address should not be contained")
	}
}
