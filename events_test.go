package p2pmidi

import (
	"errors"
	"testing"
	"time"
)

// The public event vocabulary aliases the engine's; a handful of spot
// checks keep the re-exports honest.
func TestEventKinds_RoundTrip(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{EventConnected, "Connected"},
		{EventCircuitOpened, "CircuitOpened"},
		{EventDisconnected, "Disconnected"},
		{EventObservedAddress, "ObservedAddress"},
		{EventReservationAccepted, "ReservationAccepted"},
		{EventHolePunch, "HolePunch"},
		{EventPeerUnresponsive, "PeerUnresponsive"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("kind.String() = %q, want %q", got, tt.want)
		}
	}
}

func TestEvent_IsError(t *testing.T) {
	ok := Event{Kind: EventConnected, Timestamp: time.Now()}
	if ok.IsError() {
		t.Error("event without Err should not be an error")
	}

	failed := Event{Kind: EventDialFailed, Err: errors.New("refused")}
	if !failed.IsError() {
		t.Error("event with Err should be an error")
	}
}
