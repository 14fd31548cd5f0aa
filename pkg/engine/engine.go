package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
	"github.com/multiformats/go-multiaddr"
)

// Sentinel errors surfaced by the engine.
var (
	// ErrRelayHandshake indicates the relay round-trip phase of the
	// address-learning handshake did not complete. Recoverable: the
	// caller may retry with a fresh context.
	ErrRelayHandshake = errors.New("relay handshake failed")

	// ErrReservationDenied indicates the relay denied or never answered
	// a listening reservation request.
	ErrReservationDenied = errors.New("relay reservation denied")

	// ErrDialFailed indicates an outbound circuit dial failed.
	ErrDialFailed = errors.New("dial failed")

	// ErrSelfDial indicates an attempt to dial the local peer.
	ErrSelfDial = errors.New("cannot dial self")

	// ErrAlreadyListening indicates Listen was called while a relay
	// reservation is already being maintained.
	ErrAlreadyListening = errors.New("already listening via relay")

	// ErrNotStarted indicates the engine has not been started.
	ErrNotStarted = errors.New("engine not started")
)

// Logger is the logging interface the engine emits through.
// The root package's Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Metrics is the subset of metrics the engine records.
type Metrics interface {
	ConnectionOpened(direction string)
	ConnectionClosed(direction string)
	DialResult(result string)
	ReservationResult(result string)
	HolePunchResult(result string)
	PingRTT(seconds float64)
	PingTimeout()
	ObservedAddressAdded()
	RelayHandshakeDuration(seconds float64)
	RelayHandshakeResult(result string)
}

// Emitter receives every event after the reactor has processed it.
type Emitter interface {
	Emit(Event)
}

// Config contains the engine configuration. All durations must be positive;
// New applies defaults for zero values.
type Config struct {
	// RelayID is the relay's peer identity.
	RelayID peer.ID

	// RelayAddrs are the relay's resolved transport addresses.
	RelayAddrs []multiaddr.Multiaddr

	// BindGrace is the bounded wait for local listeners during the first
	// phase of the address-learning handshake. A debounce, not a timeout.
	BindGrace time.Duration

	// DialTimeout bounds every outbound dial, including circuit dials.
	DialTimeout time.Duration

	// ReserveTimeout bounds a relay reservation request.
	ReserveTimeout time.Duration

	// HandshakeTimeout bounds the whole relay round-trip phase, across
	// retries.
	HandshakeTimeout time.Duration

	// BackoffBase and BackoffMax shape the retry backoff during the relay
	// round-trip phase.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// MaxHandshakeAttempts caps relay handshake retries. 0 means retry
	// until HandshakeTimeout expires.
	MaxHandshakeAttempts int

	// PingInterval is the liveness probe period.
	PingInterval time.Duration

	// PingTimeout bounds a single liveness probe.
	PingTimeout time.Duration

	// UnresponsiveAfter is the number of consecutive missed probes after
	// which a peer is reported unresponsive.
	UnresponsiveAfter int
}

func (c *Config) applyDefaults() {
	if c.BindGrace == 0 {
		c.BindGrace = time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 30 * time.Second
	}
	if c.ReserveTimeout == 0 {
		c.ReserveTimeout = 30 * time.Second
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = time.Minute
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 5 * time.Second
	}
	if c.UnresponsiveAfter == 0 {
		c.UnresponsiveAfter = 2
	}
}

// Engine is the long-running reactor over the node transport. A single
// goroutine consumes the sink and runs every handler to completion before
// the next event is dispatched, so handlers need no synchronization for
// reactor-owned state.
type Engine struct {
	host    host.Host
	cfg     Config
	sink    *Sink
	log     Logger
	metrics Metrics
	emitter Emitter

	external *AddrSet

	// Reactor-owned state. Only the reactor goroutine touches these.
	pingFails    map[peer.ID]int
	unresponsive map[peer.ID]bool

	// Events synthesized by handlers, drained after the triggering event.
	// Reactor-owned; never pushed back into the sink, which could block
	// the reactor against itself.
	pending []Event

	// Address-learning handshake coordination.
	hs handshakeWatch

	// In-flight circuit dials keyed by remote identity. Concurrent dials
	// to the same peer coalesce onto one attempt.
	dialMu   sync.Mutex
	inflight map[peer.ID]*dialWaiter

	// Reservation state. listening guards against a second refresh loop.
	resMu     sync.Mutex
	resExpiry time.Time
	resActive bool
	listening bool

	notifiee *netNotifiee
	busSub   event.Subscription

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	startMu sync.Mutex
}

type dialWaiter struct {
	done chan struct{}
	err  error
}

// New creates an engine over the given host and sink. The sink must be the
// same one whose hole-punch tracer was handed to the transport.
func New(h host.Host, sink *Sink, cfg Config, log Logger, metrics Metrics, emitter Emitter) (*Engine, error) {
	if h == nil {
		return nil, fmt.Errorf("engine requires a host")
	}
	if sink == nil {
		return nil, fmt.Errorf("engine requires a sink")
	}
	if cfg.RelayID == "" {
		return nil, fmt.Errorf("engine requires a relay identity")
	}
	if len(cfg.RelayAddrs) == 0 {
		return nil, fmt.Errorf("engine requires at least one relay address")
	}
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		host:         h,
		cfg:          cfg,
		sink:         sink,
		log:          log,
		metrics:      metrics,
		emitter:      emitter,
		external:     NewAddrSet(),
		pingFails:    make(map[peer.ID]int),
		unresponsive: make(map[peer.ID]bool),
		inflight:     make(map[peer.ID]*dialWaiter),
		notifiee:     &netNotifiee{sink: sink},
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start registers the event sources and starts the reactor and the
// liveness loop.
func (e *Engine) Start() error {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if e.started {
		return fmt.Errorf("engine already started")
	}

	sub, err := e.host.EventBus().Subscribe([]any{
		new(event.EvtPeerIdentificationCompleted),
		new(event.EvtPeerIdentificationFailed),
		new(event.EvtLocalReachabilityChanged),
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to host events: %w", err)
	}
	e.busSub = sub

	e.host.Network().Notify(e.notifiee)

	// Listeners bound before the notifiee registration are replayed so
	// the bind phase sees them.
	for _, addr := range e.host.Network().ListenAddresses() {
		e.sink.Push(Event{Kind: KindListenerBound, Addr: addr})
	}

	e.wg.Add(3)
	go e.busLoop()
	go e.run()
	go e.livenessLoop()

	e.started = true
	return nil
}

// Stop shuts the engine down: new events are discarded, the reactor
// drains, and the liveness loop exits. Safe to call once after Start.
func (e *Engine) Stop() {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if !e.started {
		return
	}

	e.cancel()
	e.host.Network().StopNotify(e.notifiee)
	if e.busSub != nil {
		e.busSub.Close()
	}
	e.sink.Close()
	e.wg.Wait()
	e.started = false
}

// ExternalAddrs returns the addresses this node is known to be reachable
// at from outside its NAT.
func (e *Engine) ExternalAddrs() []multiaddr.Multiaddr {
	return e.external.Addrs()
}

// ReservationExpiry returns whether a relay reservation is active and when
// it expires.
func (e *Engine) ReservationExpiry() (bool, time.Time) {
	e.resMu.Lock()
	defer e.resMu.Unlock()
	return e.resActive, e.resExpiry
}

// busLoop forwards host bus events into the sink, tagging each with its
// event kind. Unrecognized bus payloads become KindUnknown: classified as
// ignorable, never a crash.
func (e *Engine) busLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case raw, ok := <-e.busSub.Out():
			if !ok {
				return
			}
			switch evt := raw.(type) {
			case event.EvtPeerIdentificationCompleted:
				e.sink.Push(Event{
					Kind:            KindIdentified,
					Peer:            evt.Peer,
					Addr:            evt.ObservedAddr,
					Addrs:           evt.ListenAddrs,
					ProtocolVersion: evt.ProtocolVersion,
					AgentVersion:    evt.AgentVersion,
				})
			case event.EvtPeerIdentificationFailed:
				e.sink.Push(Event{
					Kind: KindIdentifyFailed,
					Peer: evt.Peer,
					Err:  evt.Reason,
				})
			case event.EvtLocalReachabilityChanged:
				e.sink.Push(Event{
					Kind:         KindReachabilityChanged,
					Reachability: evt.Reachability,
				})
			default:
				e.sink.Push(Event{Kind: KindUnknown})
			}
		}
	}
}

// run is the reactor loop. Events are handled strictly one at a time in
// arrival order; every event is forwarded to the emitter after handling.
func (e *Engine) run() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case ev := <-e.sink.Events():
			e.handle(ev)
			e.emit(ev)
			for _, syn := range e.pending {
				e.emit(syn)
			}
			e.pending = e.pending[:0]
		}
	}
}

func (e *Engine) emit(ev Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

// synthesize queues a follow-up event for delivery after the event being
// handled.
func (e *Engine) synthesize(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	e.pending = append(e.pending, ev)
}

// handle updates reactor state for one event. It must not block.
func (e *Engine) handle(ev Event) {
	switch ev.Kind {
	case KindListenerBound:
		e.log.Info("listener bound", "addr", ev.Addr)

	case KindConnected, KindCircuitOpened:
		e.metrics.ConnectionOpened(directionLabel(ev.Direction))
		delete(e.pingFails, ev.Peer)
		delete(e.unresponsive, ev.Peer)
		e.log.Info("connection established",
			"peer", ev.Peer, "addr", ev.Addr, "relayed", ev.Limited)

	case KindDisconnected:
		e.metrics.ConnectionClosed(directionLabel(ev.Direction))
		delete(e.pingFails, ev.Peer)
		delete(e.unresponsive, ev.Peer)
		e.hs.onDisconnected(ev.Peer)
		e.log.Info("connection closed", "peer", ev.Peer)

	case KindIdentified:
		e.handleIdentified(ev)

	case KindIdentifyFailed:
		e.log.Warn("identification failed", "peer", ev.Peer, "err", ev.Err)

	case KindPing:
		e.handlePing(ev)

	case KindHolePunch:
		e.handleHolePunch(ev)

	case KindDialFailed:
		e.metrics.DialResult("failure")
		e.log.Warn("dial failed", "peer", ev.Peer, "err", ev.Err)

	case KindReservationAccepted:
		e.metrics.ReservationResult("success")
		e.log.Info("relay reservation accepted",
			"relay", ev.Peer, "expiry", ev.Expiry)

	case KindReservationFailed:
		e.metrics.ReservationResult("failure")
		e.log.Warn("relay reservation failed", "relay", ev.Peer, "err", ev.Err)

	case KindReachabilityChanged:
		e.log.Info("reachability changed", "reachability", ev.Reachability)

	case KindObservedAddress:
		// Synthesized by handleIdentified; nothing further to do.

	default:
		e.log.Debug("ignoring unrecognized event", "kind", ev.Kind)
	}
}

// handleIdentified processes a completed identification exchange. The
// observed address the peer reports is how this node learns its own
// external reachability.
func (e *Engine) handleIdentified(ev Event) {
	e.log.Debug("peer identified",
		"peer", ev.Peer,
		"protocol", ev.ProtocolVersion,
		"agent", ev.AgentVersion,
		"observed", ev.Addr)

	learned := false
	if ev.Addr != nil && e.external.Add(ev.Addr) {
		learned = true
		e.metrics.ObservedAddressAdded()
		e.synthesize(Event{Kind: KindObservedAddress, Peer: ev.Peer, Addr: ev.Addr})
		e.log.Info("learned external address", "addr", ev.Addr, "via", ev.Peer)
	}

	e.hs.onIdentified(ev.Peer, ev.Addr != nil || learned)
}

// handlePing tracks consecutive probe misses. A missed probe never closes
// the connection; the peer is only reported unresponsive.
func (e *Engine) handlePing(ev Event) {
	if ev.Err == nil {
		e.metrics.PingRTT(ev.RTT.Seconds())
		e.pingFails[ev.Peer] = 0
		if e.unresponsive[ev.Peer] {
			delete(e.unresponsive, ev.Peer)
			e.log.Info("peer responsive again", "peer", ev.Peer)
		}
		return
	}

	e.metrics.PingTimeout()
	e.pingFails[ev.Peer]++
	if e.pingFails[ev.Peer] >= e.cfg.UnresponsiveAfter && !e.unresponsive[ev.Peer] {
		e.unresponsive[ev.Peer] = true
		e.synthesize(Event{Kind: KindPeerUnresponsive, Peer: ev.Peer, Err: ev.Err})
		e.log.Warn("peer unresponsive",
			"peer", ev.Peer, "missed", e.pingFails[ev.Peer])
	}
}

// handleHolePunch records upgrade outcomes. A failed hole punch leaves the
// relayed connection in place; it is a missed optimization, not an error.
func (e *Engine) handleHolePunch(ev Event) {
	switch ev.Outcome {
	case HolePunchSucceeded:
		e.metrics.HolePunchResult("success")
		e.log.Info("hole punch succeeded, connection upgraded", "peer", ev.Peer)
	case HolePunchFailed, HolePunchError:
		e.metrics.HolePunchResult("failure")
		e.log.Info("hole punch failed, staying on relay", "peer", ev.Peer, "err", ev.Err)
	default:
		e.log.Debug("hole punch event", "peer", ev.Peer, "outcome", ev.Outcome)
	}
}

// livenessLoop periodically probes every connected peer. Probe results are
// pushed through the sink so they are ordered with all other events.
func (e *Engine) livenessLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			for _, p := range e.host.Network().Peers() {
				p := p
				e.wg.Add(1)
				go func() {
					defer e.wg.Done()
					e.probe(p)
				}()
			}
		}
	}
}

// probe sends a single liveness probe with a bounded deadline. Relayed
// connections are limited, so the probe opts in to using them.
func (e *Engine) probe(p peer.ID) {
	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.PingTimeout)
	defer cancel()
	ctx = network.WithAllowLimitedConn(ctx, "liveness")

	select {
	case res, ok := <-ping.Ping(ctx, e.host, p):
		if !ok {
			return
		}
		e.sink.Push(Event{Kind: KindPing, Peer: p, RTT: res.RTT, Err: res.Error})
	case <-ctx.Done():
		e.sink.Push(Event{Kind: KindPing, Peer: p, Err: ctx.Err()})
	}
}

func directionLabel(d network.Direction) string {
	switch d {
	case network.DirInbound:
		return "inbound"
	case network.DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}
