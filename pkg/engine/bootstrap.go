package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
)

// handshakeWatch tracks the relay round-trip during bootstrap. The
// round-trip is complete only when both conditions hold: identification
// with the relay finished (the relay knows this node's addresses) and the
// relay reported an externally observed address back. The reactor feeds
// the watch; Bootstrap waits on it.
type handshakeWatch struct {
	mu         sync.Mutex
	relay      peer.ID
	armed      bool
	identified bool
	observed   bool
	done       chan struct{}
	lost       chan struct{}
}

// arm starts watching for a round-trip with the given relay. The returned
// channels belong to this attempt: done closes when both conditions are
// met, lost closes if the relay disconnects first.
func (w *handshakeWatch) arm(relay peer.ID) (done, lost <-chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.relay = relay
	w.armed = true
	w.identified = false
	w.observed = false
	w.done = make(chan struct{})
	w.lost = make(chan struct{})
	return w.done, w.lost
}

func (w *handshakeWatch) disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = false
}

// onIdentified records a completed identification exchange. hasObserved is
// true when the peer reported an observed address in the exchange.
func (w *handshakeWatch) onIdentified(p peer.ID, hasObserved bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.armed || p != w.relay {
		return
	}
	w.identified = true
	if hasObserved {
		w.observed = true
	}
	if w.identified && w.observed {
		w.armed = false
		close(w.done)
	}
}

// onDisconnected fails the attempt if the watched relay drops while the
// round-trip is pending.
func (w *handshakeWatch) onDisconnected(p peer.ID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.armed || p != w.relay {
		return
	}
	w.armed = false
	close(w.lost)
}

// Bootstrap performs the address-learning handshake: a bounded wait for
// local listeners, then a round-trip with the relay that completes only
// once the relay both knows this node's addresses and has reported an
// observed address back. Relay attempts retry with capped doubling backoff
// until the context or HandshakeTimeout expires. A failure is recoverable;
// Bootstrap may be called again.
func (e *Engine) Bootstrap(ctx context.Context) error {
	start := time.Now()

	// Phase one: give listeners a moment to bind. This is a debounce, not
	// a gate; bootstrap proceeds regardless of how many bound.
	select {
	case <-time.After(e.cfg.BindGrace):
	case <-ctx.Done():
		return ctx.Err()
	}
	e.log.Debug("listener grace elapsed",
		"listeners", len(e.host.Network().ListenAddresses()))

	// Phase two: the relay round-trip.
	ctx, cancel := context.WithTimeout(ctx, e.cfg.HandshakeTimeout)
	defer cancel()

	backoff := e.cfg.BackoffBase
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = e.relayRoundTrip(ctx)
		if lastErr == nil {
			dur := time.Since(start)
			e.metrics.RelayHandshakeDuration(dur.Seconds())
			e.metrics.RelayHandshakeResult("success")
			e.log.Info("relay handshake complete",
				"relay", e.cfg.RelayID,
				"attempts", attempt,
				"duration", dur,
				"external_addrs", e.external.Len())
			return nil
		}

		e.log.Warn("relay handshake attempt failed",
			"relay", e.cfg.RelayID, "attempt", attempt, "err", lastErr)

		if e.cfg.MaxHandshakeAttempts > 0 && attempt >= e.cfg.MaxHandshakeAttempts {
			break
		}
		select {
		case <-ctx.Done():
			e.metrics.RelayHandshakeResult("failure")
			return fmt.Errorf("%w: %w (last attempt: %w)", ErrRelayHandshake, ctx.Err(), lastErr)
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > e.cfg.BackoffMax {
			backoff = e.cfg.BackoffMax
		}
	}

	e.metrics.RelayHandshakeResult("failure")
	return fmt.Errorf("%w after %d attempts: %w",
		ErrRelayHandshake, e.cfg.MaxHandshakeAttempts, lastErr)
}

// relayRoundTrip runs a single connect-and-identify exchange with the
// relay and waits for both handshake conditions.
func (e *Engine) relayRoundTrip(ctx context.Context) error {
	done, lost := e.hs.arm(e.cfg.RelayID)
	defer e.hs.disarm()

	e.host.Peerstore().AddAddrs(e.cfg.RelayID, e.cfg.RelayAddrs, peerstore.PermanentAddrTTL)

	dialCtx, cancel := context.WithTimeout(ctx, e.cfg.DialTimeout)
	err := e.host.Connect(dialCtx, peer.AddrInfo{ID: e.cfg.RelayID, Addrs: e.cfg.RelayAddrs})
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to relay: %w", err)
	}

	// An already-identified relay emits no fresh identify event for the
	// existing connection. A previously learned observed address means
	// both completion conditions already hold.
	if e.external.Len() > 0 && e.relayIdentified() {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-lost:
		return fmt.Errorf("relay disconnected before the handshake completed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// relayIdentified reports whether an identify exchange with the relay has
// completed, using the peerstore's protocol record as evidence.
func (e *Engine) relayIdentified() bool {
	protos, err := e.host.Peerstore().GetProtocols(e.cfg.RelayID)
	return err == nil && len(protos) > 0
}
