// Package addrutil builds and resolves the multiaddresses used by the
// connection subsystem: local listen addresses, relay endpoints, and
// circuit-relay addresses.
package addrutil

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	madns "github.com/multiformats/go-multiaddr-dns"
)

// ListenAddrs returns the local listen multiaddresses for the given port:
// a TCP stream address and a QUIC-v1 datagram address, both on the
// unspecified interface for the selected IP family.
func ListenAddrs(port uint16, preferIPv6 bool) ([]ma.Multiaddr, error) {
	ip := "/ip4/0.0.0.0"
	if preferIPv6 {
		ip = "/ip6/::"
	}

	tcpAddr, err := ma.NewMultiaddr(fmt.Sprintf("%s/tcp/%d", ip, port))
	if err != nil {
		return nil, fmt.Errorf("failed to build tcp listen addr: %w", err)
	}
	quicAddr, err := ma.NewMultiaddr(fmt.Sprintf("%s/udp/%d/quic-v1", ip, port))
	if err != nil {
		return nil, fmt.Errorf("failed to build quic listen addr: %w", err)
	}
	return []ma.Multiaddr{tcpAddr, quicAddr}, nil
}

// Endpoint is a relay endpoint as configured by the operator: a hostname or
// IP address plus a port, reachable over both TCP and QUIC.
type Endpoint struct {
	Host string
	Port uint16
}

// Multiaddrs returns the TCP and QUIC multiaddresses for the endpoint.
// Hostnames produce /dns4 or /dns6 addresses which must be resolved with
// Resolve before dialing.
func (e Endpoint) Multiaddrs(preferIPv6 bool) ([]ma.Multiaddr, error) {
	if e.Host == "" {
		return nil, fmt.Errorf("endpoint host is empty")
	}

	var prefix string
	switch ip := net.ParseIP(e.Host); {
	case ip != nil && ip.To4() != nil:
		prefix = "/ip4/" + e.Host
	case ip != nil:
		prefix = "/ip6/" + e.Host
	case preferIPv6:
		prefix = "/dns6/" + e.Host
	default:
		prefix = "/dns4/" + e.Host
	}

	tcpAddr, err := ma.NewMultiaddr(fmt.Sprintf("%s/tcp/%d", prefix, e.Port))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %s:%d: %w", e.Host, e.Port, err)
	}
	quicAddr, err := ma.NewMultiaddr(fmt.Sprintf("%s/udp/%d/quic-v1", prefix, e.Port))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %s:%d: %w", e.Host, e.Port, err)
	}
	return []ma.Multiaddr{tcpAddr, quicAddr}, nil
}

// Resolve expands DNS components in the given addresses using the default
// multiaddr DNS resolver. Addresses that need no resolution pass through
// unchanged. Resolution failures for individual addresses are skipped as
// long as at least one address resolves.
func Resolve(ctx context.Context, addrs []ma.Multiaddr) ([]ma.Multiaddr, error) {
	return ResolveWith(ctx, madns.DefaultResolver, addrs)
}

// ResolveWith is Resolve with an explicit resolver, for tests.
func ResolveWith(ctx context.Context, resolver *madns.Resolver, addrs []ma.Multiaddr) ([]ma.Multiaddr, error) {
	var (
		out     []ma.Multiaddr
		lastErr error
	)
	for _, addr := range addrs {
		resolved, err := resolver.Resolve(ctx, addr)
		if err != nil {
			lastErr = fmt.Errorf("failed to resolve %s: %w", addr, err)
			continue
		}
		out = append(out, resolved...)
	}
	if len(out) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("no addresses resolved")
	}
	return out, nil
}

// RelayAddrInfo bundles a relay's peer ID with its resolved addresses.
func RelayAddrInfo(relayID peer.ID, addrs []ma.Multiaddr) peer.AddrInfo {
	return peer.AddrInfo{ID: relayID, Addrs: addrs}
}

// CircuitListenAddr returns the address a listener binds through the relay:
// the relay address, the relay's identity, and the circuit marker.
// The relay address must not already contain a circuit marker.
func CircuitListenAddr(relayAddr ma.Multiaddr, relayID peer.ID) (ma.Multiaddr, error) {
	base, err := withPeerID(relayAddr, relayID)
	if err != nil {
		return nil, err
	}
	circuit, err := ma.NewMultiaddr("/p2p-circuit")
	if err != nil {
		return nil, err
	}
	return base.Encapsulate(circuit), nil
}

// CircuitDialAddr returns the address a dialer uses to reach target through
// the relay: the circuit listen address with the target identity appended.
func CircuitDialAddr(relayAddr ma.Multiaddr, relayID peer.ID, target peer.ID) (ma.Multiaddr, error) {
	listen, err := CircuitListenAddr(relayAddr, relayID)
	if err != nil {
		return nil, err
	}
	targetComp, err := ma.NewComponent("p2p", target.String())
	if err != nil {
		return nil, fmt.Errorf("failed to encode target peer ID: %w", err)
	}
	return listen.Encapsulate(targetComp), nil
}

// withPeerID appends /p2p/<relayID> to addr unless it already carries a
// matching identity segment.
func withPeerID(addr ma.Multiaddr, relayID peer.ID) (ma.Multiaddr, error) {
	if strings.Contains(addr.String(), "/p2p-circuit") {
		return nil, fmt.Errorf("relay address %s must not contain a circuit marker", addr)
	}

	if existing, err := addr.ValueForProtocol(ma.P_P2P); err == nil {
		if existing != relayID.String() {
			return nil, fmt.Errorf("relay address %s carries a different peer ID than %s", addr, relayID)
		}
		return addr, nil
	}

	idComp, err := ma.NewComponent("p2p", relayID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to encode relay peer ID: %w", err)
	}
	return addr.Encapsulate(idComp), nil
}
