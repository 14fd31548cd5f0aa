package eventdispatch

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/matheusfillipe/p2pmidi/pkg/engine"
)

func mustParsePeerID(t *testing.T, s string) peer.ID {
	t.Helper()
	id, err := peer.Decode(s)
	if err != nil {
		t.Fatalf("failed to parse peer ID: %v", err)
	}
	return id
}

const testPeerID = "QmYyQSo1c1Ym7orWxLYvCrM2EmxFTANf8wXmmE7DWjhx5N"

func TestNewDispatcher(t *testing.T) {
	d := NewDispatcher(10, nil)

	if d == nil {
		t.Fatal("NewDispatcher returned nil")
	}
	if d.events == nil {
		t.Error("events channel should be initialized")
	}
	if d.IsClosed() {
		t.Error("dispatcher should not be closed initially")
	}
}

func TestDispatcher_Emit(t *testing.T) {
	d := NewDispatcher(10, nil)
	defer d.Close()

	peerID := mustParsePeerID(t, testPeerID)
	d.Emit(engine.Event{
		Kind:      engine.KindConnected,
		Peer:      peerID,
		Timestamp: time.Now(),
	})

	select {
	case evt := <-d.Events():
		if evt.Peer != peerID {
			t.Errorf("Peer = %v, want %v", evt.Peer, peerID)
		}
		if evt.Kind != engine.KindConnected {
			t.Errorf("Kind = %v, want Connected", evt.Kind)
		}
		if evt.Err != nil {
			t.Errorf("Err = %v, want nil", evt.Err)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestDispatcher_FullBufferDrops(t *testing.T) {
	bufferSize := 5
	var droppedKinds []engine.EventKind
	d := NewDispatcher(bufferSize, func(ev engine.Event) {
		droppedKinds = append(droppedKinds, ev.Kind)
	})
	defer d.Close()

	peerID := mustParsePeerID(t, testPeerID)
	for i := 0; i < bufferSize; i++ {
		d.Emit(engine.Event{Kind: engine.KindConnected, Peer: peerID})
	}

	// One over the buffer: dropped, counted, reported.
	d.Emit(engine.Event{Kind: engine.KindDisconnected, Peer: peerID})

	if d.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", d.Dropped())
	}
	if len(droppedKinds) != 1 || droppedKinds[0] != engine.KindDisconnected {
		t.Errorf("drop hook saw %v, want [Disconnected]", droppedKinds)
	}

	received := 0
	for received < bufferSize {
		select {
		case <-d.Events():
			received++
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout draining buffer")
		}
	}

	select {
	case <-d.Events():
		t.Error("should not receive the dropped event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcher_Close(t *testing.T) {
	d := NewDispatcher(10, nil)

	d.Close()
	d.Close() // idempotent

	if !d.IsClosed() {
		t.Error("dispatcher should be closed after Close()")
	}

	select {
	case _, ok := <-d.Events():
		if ok {
			t.Error("events channel should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("read from a closed channel should not block")
	}
}

func TestDispatcher_EmitAfterClose(t *testing.T) {
	d := NewDispatcher(10, nil)
	d.Close()

	// Must not panic.
	d.Emit(engine.Event{Kind: engine.KindConnected})

	select {
	case evt, ok := <-d.Events():
		if ok {
			t.Errorf("received event after close: %v", evt)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcher_Concurrent(t *testing.T) {
	d := NewDispatcher(100, nil)
	defer d.Close()

	peerID := mustParsePeerID(t, testPeerID)
	numGoroutines := 10
	eventsPerGoroutine := 10

	done := make(chan struct{}, numGoroutines)
	for g := 0; g < numGoroutines; g++ {
		go func() {
			for i := 0; i < eventsPerGoroutine; i++ {
				d.Emit(engine.Event{Kind: engine.KindPing, Peer: peerID})
			}
			done <- struct{}{}
		}()
	}
	for g := 0; g < numGoroutines; g++ {
		<-done
	}
	// Concurrent emits must not race; drops are acceptable.
}
