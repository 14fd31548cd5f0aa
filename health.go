package p2pmidi

import (
	"encoding/json"
	"net/http"
	"time"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	// Name is the name of the check.
	Name string `json:"name"`

	// Healthy indicates whether the check passed.
	Healthy bool `json:"healthy"`

	// Message provides additional context about the check result.
	Message string `json:"message,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// HealthStatus represents the overall health status of the node.
type HealthStatus struct {
	// Healthy indicates whether all checks passed.
	Healthy bool `json:"healthy"`

	// Checks contains the results of individual checks.
	Checks []CheckResult `json:"checks"`

	// Timestamp is when the health check was performed.
	Timestamp time.Time `json:"timestamp"`
}

// IsHealthy returns true if the node is started and its host is running.
// A quick check suitable for liveness probes.
func (n *Node) IsHealthy() bool {
	n.startMu.Lock()
	started := n.started
	n.startMu.Unlock()

	return started && n.host != nil
}

// ReadinessChecks performs detailed health checks and returns the
// results. Suitable for readiness probes and debugging.
//
// Checks performed:
//   - node_started: whether the node has been started
//   - host_running: whether the transport host is running
//   - peer_book: whether the peer book is accessible
//   - external_addrs: whether the relay handshake learned any external
//     addresses (informational)
//   - relay_connected: whether the relay is currently connected
//     (informational)
func (n *Node) ReadinessChecks() HealthStatus {
	status := HealthStatus{
		Healthy:   true,
		Checks:    make([]CheckResult, 0, 5),
		Timestamp: time.Now(),
	}

	start := time.Now()
	n.startMu.Lock()
	started := n.started
	n.startMu.Unlock()
	status.Checks = append(status.Checks, CheckResult{
		Name:     "node_started",
		Healthy:  started,
		Message:  boolToMessage(started, "node is running", "node is not started"),
		Duration: time.Since(start),
	})
	if !started {
		status.Healthy = false
	}

	start = time.Now()
	hostOK := n.host != nil
	status.Checks = append(status.Checks, CheckResult{
		Name:     "host_running",
		Healthy:  hostOK,
		Message:  boolToMessage(hostOK, "host is running", "host is not available"),
		Duration: time.Since(start),
	})
	if !hostOK {
		status.Healthy = false
	}

	start = time.Now()
	bookOK := false
	bookMsg := "peer book is not available"
	if n.book != nil {
		_ = n.book.Count()
		bookOK = true
		bookMsg = "peer book is accessible"
	}
	status.Checks = append(status.Checks, CheckResult{
		Name:     "peer_book",
		Healthy:  bookOK,
		Message:  bookMsg,
		Duration: time.Since(start),
	})
	if !bookOK {
		status.Healthy = false
	}

	// Informational: external addresses learned so far.
	start = time.Now()
	extCount := len(n.ExternalAddrs())
	extMsg := "no external addresses learned yet"
	if extCount > 0 {
		extMsg = "external addresses learned"
	}
	status.Checks = append(status.Checks, CheckResult{
		Name:     "external_addrs",
		Healthy:  true,
		Message:  extMsg,
		Duration: time.Since(start),
	})

	// Informational: relay connectivity.
	start = time.Now()
	relayMsg := "relay is not connected"
	if hostOK && started {
		for _, p := range n.host.Network().Peers() {
			if p == n.relayID {
				relayMsg = "relay is connected"
				break
			}
		}
	}
	status.Checks = append(status.Checks, CheckResult{
		Name:     "relay_connected",
		Healthy:  true,
		Message:  relayMsg,
		Duration: time.Since(start),
	})

	return status
}

// boolToMessage returns trueMsg if b is true, otherwise falseMsg.
func boolToMessage(b bool, trueMsg, falseMsg string) string {
	if b {
		return trueMsg
	}
	return falseMsg
}

// HealthHandler returns an http.Handler serving readiness responses:
// 200 OK when healthy, 503 otherwise, with a JSON HealthStatus body.
//
// Example usage:
//
//	http.Handle("/health", p2pmidi.HealthHandler(node))
func HealthHandler(node *Node) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := node.ReadinessChecks()

		w.Header().Set("Content-Type", "application/json")
		if status.Healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(status)
	})
}

// LivenessHandler returns an http.Handler serving quick liveness
// responses without detailed checks.
//
// Example usage:
//
//	http.Handle("/live", p2pmidi.LivenessHandler(node))
func LivenessHandler(node *Node) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		healthy := node.IsHealthy()

		w.Header().Set("Content-Type", "application/json")
		if healthy {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"healthy":true}`))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"healthy":false}`))
		}
	})
}
