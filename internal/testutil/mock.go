// Package testutil provides recording test doubles for the logging and
// metrics interfaces. They satisfy both the root and engine interfaces
// structurally, so any package in the module can use them without import
// cycles.
package testutil

import (
	"sync"
	"time"
)

// LogEntry is a single captured log call.
type LogEntry struct {
	Level   string
	Message string
	KeyVals []any
}

// CaptureLogger records every log call for later inspection. Safe for
// concurrent use.
type CaptureLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *CaptureLogger) log(level, msg string, kv ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Message: msg, KeyVals: kv})
}

func (l *CaptureLogger) Debug(msg string, kv ...any) { l.log("debug", msg, kv...) }
func (l *CaptureLogger) Info(msg string, kv ...any)  { l.log("info", msg, kv...) }
func (l *CaptureLogger) Warn(msg string, kv ...any)  { l.log("warn", msg, kv...) }
func (l *CaptureLogger) Error(msg string, kv ...any) { l.log("error", msg, kv...) }

// Entries returns a copy of everything logged so far.
func (l *CaptureLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Contains reports whether any entry's message equals msg.
func (l *CaptureLogger) Contains(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Message == msg {
			return true
		}
	}
	return false
}

// CaptureMetrics counts every metrics call by name, with labelled calls
// counted under "name/label". Safe for concurrent use.
type CaptureMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *CaptureMetrics) inc(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[name]++
}

func (m *CaptureMetrics) ConnectionOpened(direction string) { m.inc("connection_opened/" + direction) }
func (m *CaptureMetrics) ConnectionClosed(direction string) { m.inc("connection_closed/" + direction) }
func (m *CaptureMetrics) DialResult(result string)          { m.inc("dial/" + result) }
func (m *CaptureMetrics) RelayHandshakeDuration(s float64)  { m.inc("relay_handshake_duration") }
func (m *CaptureMetrics) RelayHandshakeResult(result string) {
	m.inc("relay_handshake/" + result)
}
func (m *CaptureMetrics) ReservationResult(result string) { m.inc("reservation/" + result) }
func (m *CaptureMetrics) HolePunchResult(result string)   { m.inc("hole_punch/" + result) }
func (m *CaptureMetrics) ObservedAddressAdded()           { m.inc("observed_address") }
func (m *CaptureMetrics) PingRTT(s float64)               { m.inc("ping_rtt") }
func (m *CaptureMetrics) PingTimeout()                    { m.inc("ping_timeout") }
func (m *CaptureMetrics) EventEmitted(kind string)        { m.inc("event/" + kind) }
func (m *CaptureMetrics) EventDropped()                   { m.inc("event_dropped") }

// Count returns how many times the named metric was recorded.
func (m *CaptureMetrics) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

// WaitFor polls cond until it returns true or the timeout elapses.
// Returns false on timeout.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
