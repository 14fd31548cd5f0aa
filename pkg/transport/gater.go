package transport

import (
	"github.com/libp2p/go-libp2p/core/connmgr"
	"github.com/libp2p/go-libp2p/core/control"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// BlockChecker reports whether a peer is blocked. The peer book satisfies
// this.
type BlockChecker interface {
	IsBlocked(peerID peer.ID) bool
}

// BlockGater implements libp2p's ConnectionGater to refuse connections to
// and from blocked peers. Dials are stopped before leaving the host;
// inbound connections are dropped as soon as the security handshake
// reveals the peer ID.
type BlockGater struct {
	checker BlockChecker
}

// NewBlockGater creates a gater backed by the given checker.
func NewBlockGater(checker BlockChecker) *BlockGater {
	return &BlockGater{checker: checker}
}

// InterceptPeerDial is called before dialing a peer.
func (g *BlockGater) InterceptPeerDial(p peer.ID) bool {
	return !g.checker.IsBlocked(p)
}

// InterceptAddrDial is called before dialing a specific address.
func (g *BlockGater) InterceptAddrDial(p peer.ID, addr multiaddr.Multiaddr) bool {
	return !g.checker.IsBlocked(p)
}

// InterceptAccept is called when accepting an inbound connection. The
// peer ID is not known yet, so everything is allowed through.
func (g *BlockGater) InterceptAccept(addrs network.ConnMultiaddrs) bool {
	return true
}

// InterceptSecured is called after the security handshake completes and
// the peer ID is known.
func (g *BlockGater) InterceptSecured(dir network.Direction, p peer.ID, addrs network.ConnMultiaddrs) bool {
	return !g.checker.IsBlocked(p)
}

// InterceptUpgraded is called after the connection is fully upgraded.
func (g *BlockGater) InterceptUpgraded(conn network.Conn) (bool, control.DisconnectReason) {
	if g.checker.IsBlocked(conn.RemotePeer()) {
		return false, 0
	}
	return true, 0
}

var _ connmgr.ConnectionGater = (*BlockGater)(nil)
