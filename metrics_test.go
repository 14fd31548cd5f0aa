package p2pmidi

import (
	"testing"
	"time"

	"github.com/matheusfillipe/p2pmidi/internal/testutil"
)

// The recording doubles must keep satisfying the public interfaces.
var (
	_ Metrics = (*testutil.CaptureMetrics)(nil)
	_ Logger  = (*testutil.CaptureLogger)(nil)
)

func TestNode_MetricsAndLoggingWiring(t *testing.T) {
	metrics := &testutil.CaptureMetrics{}
	logger := &testutil.CaptureLogger{}

	n := newTestNode(t, 44,
		WithMetrics(metrics),
		WithLogger(logger),
	)
	startTestNode(t, n)

	if !logger.Contains("node started") {
		t.Error("expected a startup log line")
	}

	// The handshake against the dead relay fails and must be counted.
	ok := testutil.WaitFor(2*time.Second, func() bool {
		return metrics.Count("relay_handshake/failure") > 0
	})
	if !ok {
		t.Error("expected a failed relay handshake to be recorded")
	}
}
