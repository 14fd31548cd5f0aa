package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/p2p/protocol/circuitv2/client"
	"github.com/multiformats/go-multiaddr"

	"github.com/matheusfillipe/p2pmidi/pkg/addrutil"
)

// DialPeer establishes a relayed connection to the target through the
// configured relay. Concurrent dials to the same target coalesce onto one
// attempt. Once the relayed connection is up, the transport's hole-punch
// coordination tries to upgrade it to a direct connection in the
// background; DialPeer does not wait for that.
func (e *Engine) DialPeer(ctx context.Context, target peer.ID) error {
	if target == e.host.ID() {
		return ErrSelfDial
	}
	if e.host.Network().Connectedness(target) == network.Connected {
		return nil
	}

	e.dialMu.Lock()
	if w, ok := e.inflight[target]; ok {
		e.dialMu.Unlock()
		select {
		case <-w.done:
			return w.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	w := &dialWaiter{done: make(chan struct{})}
	e.inflight[target] = w
	e.dialMu.Unlock()

	err := e.dialCircuit(ctx, target)

	e.dialMu.Lock()
	delete(e.inflight, target)
	e.dialMu.Unlock()

	w.err = err
	close(w.done)
	return err
}

func (e *Engine) dialCircuit(ctx context.Context, target peer.ID) error {
	addrs, err := e.circuitAddrs(target)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDialFailed, err)
	}

	e.host.Peerstore().AddAddrs(target, addrs, peerstore.TempAddrTTL)

	dialCtx, cancel := context.WithTimeout(ctx, e.cfg.DialTimeout)
	defer cancel()

	e.log.Debug("dialing peer via relay",
		"peer", target, "relay", e.cfg.RelayID, "addrs", len(addrs))

	err = e.host.Connect(dialCtx, peer.AddrInfo{ID: target, Addrs: addrs})
	if err != nil {
		e.sink.Push(Event{Kind: KindDialFailed, Peer: target, Err: err})
		return fmt.Errorf("%w: %w", ErrDialFailed, err)
	}

	e.metrics.DialResult("success")
	return nil
}

// circuitAddrs builds one circuit address per distinct relay transport
// address. Addresses that collapse to the same circuit are emitted once.
func (e *Engine) circuitAddrs(target peer.ID) ([]multiaddr.Multiaddr, error) {
	seen := make(map[string]struct{}, len(e.cfg.RelayAddrs))
	out := make([]multiaddr.Multiaddr, 0, len(e.cfg.RelayAddrs))
	for _, ra := range e.cfg.RelayAddrs {
		ca, err := addrutil.CircuitDialAddr(ra, e.cfg.RelayID, target)
		if err != nil {
			return nil, err
		}
		key := ca.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ca)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable relay addresses")
	}
	return out, nil
}

// Listen reserves a listening slot on the relay so that other peers can
// reach this node through it. The reservation is refreshed in the
// background until the engine stops. A second Listen while the refresh
// loop runs returns ErrAlreadyListening.
func (e *Engine) Listen(ctx context.Context) error {
	e.resMu.Lock()
	if e.listening {
		e.resMu.Unlock()
		return ErrAlreadyListening
	}
	e.listening = true
	e.resMu.Unlock()

	rsv, err := e.reserve(ctx)
	if err != nil {
		e.resMu.Lock()
		e.listening = false
		e.resMu.Unlock()
		return err
	}

	e.log.Info("listening via relay",
		"relay", e.cfg.RelayID, "expiry", rsv.Expiration, "addrs", rsv.Addrs)

	e.wg.Add(1)
	go e.refreshLoop(rsv.Expiration)
	return nil
}

// reserve performs a single reservation request and records the result.
func (e *Engine) reserve(ctx context.Context) (*client.Reservation, error) {
	resCtx, cancel := context.WithTimeout(ctx, e.cfg.ReserveTimeout)
	defer cancel()

	rsv, err := client.Reserve(resCtx, e.host,
		peer.AddrInfo{ID: e.cfg.RelayID, Addrs: e.cfg.RelayAddrs})
	if err != nil {
		e.sink.Push(Event{Kind: KindReservationFailed, Peer: e.cfg.RelayID, Err: err})
		return nil, fmt.Errorf("%w: %w", ErrReservationDenied, err)
	}

	e.resMu.Lock()
	e.resActive = true
	e.resExpiry = rsv.Expiration
	e.resMu.Unlock()

	e.sink.Push(Event{
		Kind:   KindReservationAccepted,
		Peer:   e.cfg.RelayID,
		Addrs:  rsv.Addrs,
		Expiry: rsv.Expiration,
	})
	return rsv, nil
}

// refreshLoop renews the reservation at roughly two thirds of its
// remaining lifetime. A failed renewal retries with backoff; the
// reservation is marked inactive until a renewal succeeds.
func (e *Engine) refreshLoop(expiry time.Time) {
	defer e.wg.Done()

	for {
		wait := time.Until(expiry) * 2 / 3
		if wait < e.cfg.BackoffBase {
			wait = e.cfg.BackoffBase
		}
		select {
		case <-e.ctx.Done():
			return
		case <-time.After(wait):
		}

		rsv, err := e.reserve(e.ctx)
		if err != nil {
			e.resMu.Lock()
			if time.Now().After(e.resExpiry) {
				e.resActive = false
			}
			e.resMu.Unlock()
			e.log.Warn("reservation renewal failed",
				"relay", e.cfg.RelayID, "err", err)
			expiry = time.Now().Add(e.cfg.BackoffBase)
			continue
		}
		expiry = rsv.Expiration
	}
}
