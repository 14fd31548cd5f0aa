package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/p2p/protocol/holepunch"
	"github.com/multiformats/go-multiaddr"
)

// Sink serializes events from every source (network notifications, the
// identify subscription, the hole-punch tracer, liveness probes) into one
// ordered channel consumed by the reactor. Pushes block rather than drop,
// so per-source ordering is preserved and no event is lost while the sink
// is open.
type Sink struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewSink creates a sink with the given channel buffer size.
func NewSink(buffer int) *Sink {
	return &Sink{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
}

// Push enqueues an event for the reactor. It blocks until the reactor has
// capacity, and discards the event only after Close.
func (s *Sink) Push(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case <-s.done:
	case s.ch <- ev:
	}
}

// Events returns the ordered event channel.
func (s *Sink) Events() <-chan Event {
	return s.ch
}

// Close stops the sink. Pending and subsequent pushes are discarded.
// Safe to call multiple times.
func (s *Sink) Close() {
	s.once.Do(func() { close(s.done) })
}

// Done returns a channel closed when the sink is closed.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

// HolePunchTracer returns a tracer that feeds hole-punch lifecycle events
// into the sink. Pass it to the transport at construction time.
func (s *Sink) HolePunchTracer() holepunch.EventTracer {
	return holePunchTracer{sink: s}
}

type holePunchTracer struct {
	sink *Sink
}

func (t holePunchTracer) Trace(evt *holepunch.Event) {
	out := Event{
		Kind:      KindHolePunch,
		Peer:      evt.Remote,
		Timestamp: time.Unix(0, evt.Timestamp),
	}

	switch e := evt.Evt.(type) {
	case *holepunch.StartHolePunchEvt:
		out.Outcome = HolePunchStarted
	case *holepunch.EndHolePunchEvt:
		if e.Success {
			out.Outcome = HolePunchSucceeded
		} else {
			out.Outcome = HolePunchFailed
			out.Err = errors.New(e.Error)
		}
	case *holepunch.DirectDialEvt:
		out.Outcome = HolePunchDirect
		if !e.Success {
			out.Err = errors.New(e.Error)
		}
	case *holepunch.ProtocolErrorEvt:
		out.Outcome = HolePunchError
		out.Err = errors.New(e.Error)
	default:
		out.Outcome = evt.Type
	}

	t.sink.Push(out)
}

// netNotifiee forwards swarm notifications into the sink.
type netNotifiee struct {
	sink *Sink
}

var _ network.Notifiee = (*netNotifiee)(nil)

func (n *netNotifiee) Listen(_ network.Network, addr multiaddr.Multiaddr) {
	n.sink.Push(Event{Kind: KindListenerBound, Addr: addr})
}

func (n *netNotifiee) ListenClose(network.Network, multiaddr.Multiaddr) {}

func (n *netNotifiee) Connected(_ network.Network, c network.Conn) {
	kind := KindConnected
	limited := c.Stat().Limited
	if limited {
		kind = KindCircuitOpened
	}
	n.sink.Push(Event{
		Kind:      kind,
		Peer:      c.RemotePeer(),
		Addr:      c.RemoteMultiaddr(),
		Direction: c.Stat().Direction,
		Limited:   limited,
	})
}

func (n *netNotifiee) Disconnected(_ network.Network, c network.Conn) {
	n.sink.Push(Event{
		Kind:      KindDisconnected,
		Peer:      c.RemotePeer(),
		Addr:      c.RemoteMultiaddr(),
		Direction: c.Stat().Direction,
		Limited:   c.Stat().Limited,
	})
}
