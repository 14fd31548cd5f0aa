package p2pmidi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/matheusfillipe/p2pmidi/internal/eventdispatch"
	"github.com/matheusfillipe/p2pmidi/pkg/addrutil"
	"github.com/matheusfillipe/p2pmidi/pkg/engine"
	"github.com/matheusfillipe/p2pmidi/pkg/identity"
	"github.com/matheusfillipe/p2pmidi/pkg/peerbook"
	"github.com/matheusfillipe/p2pmidi/pkg/transport"
)

// Node is the main entry point. It owns the transport, the connection
// engine, and the peer book, and exposes a unified public API.
//
// All public methods are thread-safe.
type Node struct {
	config *Config

	key      identity.Keypair
	book     *peerbook.Book
	host     host.Host
	sink     *engine.Sink
	engine   *engine.Engine
	dispatch *eventdispatch.Dispatcher

	log     Logger
	metrics Metrics

	relayID    peer.ID
	relayAddrs []multiaddr.Multiaddr

	statsMu sync.RWMutex
	stats   map[peer.ID]*peerStatsTracker

	started bool
	startMu sync.Mutex
}

// New creates a node with the given configuration. The node does not
// touch the network until Start is called.
func New(cfg *Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.applyDefaults()

	var key identity.Keypair
	var err error
	if cfg.Identity != nil {
		key = *cfg.Identity
	} else {
		key, err = identity.FromSeed(*cfg.Seed)
		if err != nil {
			return nil, fmt.Errorf("failed to derive identity: %w", err)
		}
	}

	relayID := cfg.RelayID
	if relayID == "" {
		relayID, err = identity.PeerIDFromSeed(*cfg.RelaySeed)
		if err != nil {
			return nil, fmt.Errorf("failed to derive relay identity: %w", err)
		}
	}

	book, err := peerbook.Open(cfg.PeerBookPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open peer book: %w", err)
	}

	sink := engine.NewSink(cfg.EventBufferSize)

	listenAddrs, err := addrutil.ListenAddrs(cfg.Port, cfg.PreferIPv6)
	if err != nil {
		book.Close()
		sink.Close()
		return nil, fmt.Errorf("failed to build listen addresses: %w", err)
	}

	tcfg := transport.DefaultConfig()
	tcfg.Key = key
	tcfg.ListenAddrs = listenAddrs
	tcfg.ProtocolVersion = ProtocolVersion
	tcfg.UserAgent = UserAgent()
	tcfg.ConnMgrLowWater = cfg.ConnMgrLowWater
	tcfg.ConnMgrHighWater = cfg.ConnMgrHighWater
	tcfg.HolePunchTracer = sink.HolePunchTracer()
	tcfg.Gater = transport.NewBlockGater(book)
	tcfg.ForceReachabilityPrivate = cfg.ForceReachabilityPrivate
	tcfg.PrometheusRegisterer = cfg.PrometheusRegisterer

	h, err := transport.NewHost(tcfg)
	if err != nil {
		book.Close()
		sink.Close()
		return nil, fmt.Errorf("failed to create host: %w", err)
	}

	n := &Node{
		config:  cfg,
		key:     key,
		book:    book,
		host:    h,
		sink:    sink,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		relayID: relayID,
		stats:   make(map[peer.ID]*peerStatsTracker),
	}
	n.dispatch = eventdispatch.NewDispatcher(cfg.EventBufferSize, func(engine.Event) {
		n.metrics.EventDropped()
	})
	return n, nil
}

// Start resolves the relay endpoint, starts the engine, and performs the
// address-learning handshake. A handshake failure is returned but leaves
// the node running; the caller may retry with Bootstrap.
func (n *Node) Start(ctx context.Context) error {
	n.startMu.Lock()
	if n.started {
		n.startMu.Unlock()
		return ErrNodeAlreadyStarted
	}

	relayMaddrs, err := n.config.Relay.Multiaddrs(n.config.PreferIPv6)
	if err != nil {
		n.startMu.Unlock()
		return fmt.Errorf("invalid relay endpoint: %w", err)
	}
	relayAddrs, err := addrutil.Resolve(ctx, relayMaddrs)
	if err != nil {
		n.startMu.Unlock()
		return fmt.Errorf("failed to resolve relay endpoint: %w", err)
	}
	n.relayAddrs = relayAddrs

	eng, err := engine.New(n.host, n.sink, engine.Config{
		RelayID:           n.relayID,
		RelayAddrs:        relayAddrs,
		BindGrace:         n.config.BindGrace,
		DialTimeout:       n.config.DialTimeout,
		ReserveTimeout:    n.config.ReserveTimeout,
		HandshakeTimeout:  n.config.HandshakeTimeout,
		BackoffBase:       n.config.BackoffBase,
		BackoffMax:        n.config.BackoffMax,
		PingInterval:      n.config.PingInterval,
		PingTimeout:       n.config.PingTimeout,
		UnresponsiveAfter: n.config.UnresponsiveAfter,
	}, n.log, n.metrics, nodeEmitter{n})
	if err != nil {
		n.startMu.Unlock()
		return fmt.Errorf("failed to create engine: %w", err)
	}
	n.engine = eng

	if err := n.engine.Start(); err != nil {
		n.startMu.Unlock()
		return fmt.Errorf("failed to start engine: %w", err)
	}

	n.started = true
	n.startMu.Unlock()

	n.log.Info("node started",
		"peer", n.key.ID,
		"relay", n.relayID,
		"listen_port", n.config.Port)

	return n.engine.Bootstrap(ctx)
}

// Bootstrap re-runs the address-learning handshake. Useful after a Start
// that failed with ErrRelayHandshake, or after a network change.
func (n *Node) Bootstrap(ctx context.Context) error {
	eng, err := n.runningEngine()
	if err != nil {
		return err
	}
	return eng.Bootstrap(ctx)
}

// Stop shuts down the node and releases all resources.
func (n *Node) Stop() error {
	n.startMu.Lock()
	defer n.startMu.Unlock()

	if !n.started {
		return ErrNodeNotStarted
	}

	n.engine.Stop()
	n.dispatch.Close()

	if err := n.host.Close(); err != nil {
		return fmt.Errorf("failed to close host: %w", err)
	}
	if err := n.book.Close(); err != nil {
		return fmt.Errorf("failed to close peer book: %w", err)
	}

	n.started = false
	return nil
}

// PeerID returns the local peer ID.
func (n *Node) PeerID() peer.ID {
	return n.key.ID
}

// Addrs returns the multiaddresses the node is listening on.
func (n *Node) Addrs() []multiaddr.Multiaddr {
	return n.host.Addrs()
}

// ExternalAddrs returns the addresses remote observers have confirmed for
// this node. Empty until the relay handshake completes.
func (n *Node) ExternalAddrs() []multiaddr.Multiaddr {
	if n.engine == nil {
		return nil
	}
	return n.engine.ExternalAddrs()
}

// RelayID returns the relay's peer identity.
func (n *Node) RelayID() peer.ID {
	return n.relayID
}

// DialPeer establishes a relayed connection to the target, upgrading to a
// direct connection in the background when hole punching succeeds. The
// peer is recorded in the peer book.
func (n *Node) DialPeer(ctx context.Context, target peer.ID) error {
	eng, err := n.runningEngine()
	if err != nil {
		return err
	}
	if n.book.IsBlocked(target) {
		return NewPeerError(ErrCodePeerBlocked, "peer is blocked", target)
	}

	if err := eng.DialPeer(ctx, target); err != nil {
		return err
	}

	n.rememberPeer(target)
	return nil
}

// DialSeed dials the peer whose identity derives from the given seed.
func (n *Node) DialSeed(ctx context.Context, seed uint8) (peer.ID, error) {
	target, err := identity.PeerIDFromSeed(seed)
	if err != nil {
		return "", fmt.Errorf("failed to derive peer identity: %w", err)
	}
	if err := n.DialPeer(ctx, target); err != nil {
		return target, err
	}
	_ = n.book.SetSeed(target, seed)
	return target, nil
}

// rememberPeer records a successfully dialed peer with its circuit
// addresses.
func (n *Node) rememberPeer(target peer.ID) {
	addrs := make([]multiaddr.Multiaddr, 0, len(n.relayAddrs))
	for _, ra := range n.relayAddrs {
		ca, err := addrutil.CircuitDialAddr(ra, n.relayID, target)
		if err != nil {
			continue
		}
		addrs = append(addrs, ca)
	}
	if err := n.book.Put(target, addrs); err != nil {
		n.log.Debug("failed to record peer", "peer", target, "err", err)
	}
}

// Listen reserves a listening slot on the relay so other peers can reach
// this node. The reservation is refreshed automatically; a second Listen
// while it is maintained returns ErrAlreadyListening.
func (n *Node) Listen(ctx context.Context) error {
	eng, err := n.runningEngine()
	if err != nil {
		return err
	}
	return eng.Listen(ctx)
}

// Disconnect closes all connections to a peer.
func (n *Node) Disconnect(target peer.ID) error {
	n.startMu.Lock()
	started := n.started
	n.startMu.Unlock()
	if !started {
		return ErrNodeNotStarted
	}
	return n.host.Network().ClosePeer(target)
}

// ConnectedPeers returns the peers with at least one open connection.
func (n *Node) ConnectedPeers() []peer.ID {
	return n.host.Network().Peers()
}

// Events returns the channel of connection lifecycle events. The
// application should drain it; a full buffer drops events.
func (n *Node) Events() <-chan Event {
	return n.dispatch.Events()
}

// DroppedEvents returns the number of events lost to a full buffer.
func (n *Node) DroppedEvents() uint64 {
	return n.dispatch.Dropped()
}

// AddPeer records a peer and its dial addresses in the peer book.
func (n *Node) AddPeer(target peer.ID, addrs []multiaddr.Multiaddr) error {
	return n.book.Put(target, addrs)
}

// RemovePeer deletes a peer from the peer book. Active connections are
// not closed; use Disconnect for that.
func (n *Node) RemovePeer(target peer.ID) error {
	return n.book.Remove(target)
}

// BlockPeer blocks a peer and closes any open connection to it.
func (n *Node) BlockPeer(target peer.ID) error {
	if err := n.book.Block(target); err != nil {
		return err
	}
	// Best effort; the block itself already succeeded.
	_ = n.host.Network().ClosePeer(target)
	return nil
}

// UnblockPeer removes a peer's block.
func (n *Node) UnblockPeer(target peer.ID) error {
	return n.book.Unblock(target)
}

// GetPeer retrieves a peer book entry.
func (n *Node) GetPeer(target peer.ID) (*peerbook.Entry, error) {
	return n.book.Get(target)
}

// ListPeers returns all unblocked peers from the peer book.
func (n *Node) ListPeers() []*peerbook.Entry {
	return n.book.List()
}

// ExportPeers writes the unblocked peers to a YAML file.
func (n *Node) ExportPeers(path string) error {
	return n.book.ExportYAML(path)
}

// ImportPeers merges peers from a YAML file into the peer book.
func (n *Node) ImportPeers(path string) (int, error) {
	return n.book.ImportYAML(path)
}

// ReservationStatus reports whether a relay reservation is active and
// when it expires.
func (n *Node) ReservationStatus() (bool, time.Time) {
	if n.engine == nil {
		return false, time.Time{}
	}
	return n.engine.ReservationExpiry()
}

func (n *Node) runningEngine() (*engine.Engine, error) {
	n.startMu.Lock()
	defer n.startMu.Unlock()
	if !n.started {
		return nil, ErrNodeNotStarted
	}
	return n.engine, nil
}

// nodeEmitter forwards engine events to the application dispatcher,
// recording metrics and session history on the way through.
type nodeEmitter struct {
	n *Node
}

func (e nodeEmitter) Emit(ev engine.Event) {
	e.n.metrics.EventEmitted(ev.Kind.String())
	e.n.recordStats(ev)

	switch ev.Kind {
	case engine.KindConnected, engine.KindCircuitOpened:
		if e.n.book.Has(ev.Peer) {
			_ = e.n.book.TouchConnected(ev.Peer)
		}
	}

	e.n.dispatch.Emit(ev)
}
