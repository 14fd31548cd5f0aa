package engine

import (
	"sync"

	"github.com/multiformats/go-multiaddr"
)

// AddrSet is the set of addresses this node believes are valid means to
// reach it from outside its NAT. It grows monotonically within a run:
// once an address is confirmed by a remote observer it is never removed.
type AddrSet struct {
	mu    sync.RWMutex
	seen  map[string]struct{}
	addrs []multiaddr.Multiaddr
}

// NewAddrSet creates an empty external address set.
func NewAddrSet() *AddrSet {
	return &AddrSet{seen: make(map[string]struct{})}
}

// Add records an observed address. Returns true if the address was new.
func (s *AddrSet) Add(addr multiaddr.Multiaddr) bool {
	if addr == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := addr.String()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.addrs = append(s.addrs, addr)
	return true
}

// Contains reports whether the address has been observed.
func (s *AddrSet) Contains(addr multiaddr.Multiaddr) bool {
	if addr == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[addr.String()]
	return ok
}

// Addrs returns a snapshot of the observed addresses in insertion order.
func (s *AddrSet) Addrs() []multiaddr.Multiaddr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]multiaddr.Multiaddr, len(s.addrs))
	copy(out, s.addrs)
	return out
}

// Len returns the number of observed addresses.
func (s *AddrSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.addrs)
}
