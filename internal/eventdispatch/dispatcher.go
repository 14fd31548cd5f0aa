// Package eventdispatch delivers connection lifecycle events to the
// application.
package eventdispatch

import (
	"sync"

	"github.com/matheusfillipe/p2pmidi/pkg/engine"
)

// Dispatcher fans engine events out to a buffered channel the application
// consumes. Sends never block: a slow consumer costs dropped events, not
// a stalled reactor. Drops are counted and reported through the hook.
type Dispatcher struct {
	events chan engine.Event
	onDrop func(engine.Event)

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// NewDispatcher creates a dispatcher with the given buffer size. onDrop,
// if non-nil, is called for every event lost to a full buffer.
func NewDispatcher(bufferSize int, onDrop func(engine.Event)) *Dispatcher {
	return &Dispatcher{
		events: make(chan engine.Event, bufferSize),
		onDrop: onDrop,
	}
}

// Emit delivers an event to the application channel. Non-blocking; events
// that do not fit are dropped and counted. Satisfies engine.Emitter.
func (d *Dispatcher) Emit(ev engine.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	select {
	case d.events <- ev:
	default:
		d.dropped++
		if d.onDrop != nil {
			d.onDrop(ev)
		}
	}
}

// Events returns the channel the application consumes. Closed when the
// dispatcher closes.
func (d *Dispatcher) Events() <-chan engine.Event {
	return d.events
}

// Dropped returns the number of events lost to a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close closes the event channel. Safe to call multiple times.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		d.closed = true
		close(d.events)
	}
}

// IsClosed reports whether the dispatcher has been closed.
func (d *Dispatcher) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
