package p2pmidi

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/matheusfillipe/p2pmidi/pkg/engine"
)

func TestErrorCode_String(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrCodeUnknown, "Unknown"},
		{ErrCodeDialFailed, "DialFailed"},
		{ErrCodeRelayHandshake, "RelayHandshake"},
		{ErrCodeReservationDenied, "ReservationDenied"},
		{ErrCodeSelfDial, "SelfDial"},
		{ErrCodePeerNotFound, "PeerNotFound"},
		{ErrCodePeerBlocked, "PeerBlocked"},
		{ErrCodeInvalidConfig, "InvalidConfig"},
		{ErrCodeNodeNotStarted, "NodeNotStarted"},
		{ErrCodeNodeAlreadyStarted, "NodeAlreadyStarted"},
		{ErrCodeVersionMismatch, "VersionMismatch"},
		{ErrorCode(999), "ErrorCode(999)"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("ErrorCode(%d).String() = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestError_Message(t *testing.T) {
	err := NewError(ErrCodeDialFailed, "dial failed")
	if !strings.Contains(err.Error(), "dial failed") {
		t.Errorf("Error() = %q, want it to contain the message", err.Error())
	}

	cause := errors.New("connection refused")
	wrapped := NewErrorWithCause(ErrCodeDialFailed, "dial failed", cause)
	if !strings.Contains(wrapped.Error(), "connection refused") {
		t.Errorf("Error() = %q, want it to contain the cause", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error should match its cause with errors.Is")
	}
}

func TestError_IsMatchesByCode(t *testing.T) {
	a := NewError(ErrCodeDialFailed, "one")
	b := NewPeerError(ErrCodeDialFailed, "two", peer.ID("p"))
	c := NewError(ErrCodeSelfDial, "three")

	if !errors.Is(a, b) {
		t.Error("errors with the same code should match")
	}
	if errors.Is(a, c) {
		t.Error("errors with different codes should not match")
	}
}

func TestError_As(t *testing.T) {
	inner := NewPeerError(ErrCodePeerBlocked, "peer is blocked", peer.ID("target"))
	err := fmt.Errorf("dial: %w", inner)

	var pErr *Error
	if !errors.As(err, &pErr) {
		t.Fatal("errors.As should find the *Error")
	}
	if pErr.Code != ErrCodePeerBlocked {
		t.Errorf("Code = %v, want ErrCodePeerBlocked", pErr.Code)
	}
	if pErr.PeerID != peer.ID("target") {
		t.Errorf("PeerID = %q, want %q", pErr.PeerID, "target")
	}
}

func TestIsRetriable(t *testing.T) {
	retriable := &Error{Code: ErrCodeDialFailed, Message: "transient", Retriable: true}
	if !IsRetriable(retriable) {
		t.Error("expected retriable error")
	}
	if IsRetriable(NewError(ErrCodeSelfDial, "nope")) {
		t.Error("plain error should not be retriable")
	}
	if IsRetriable(errors.New("not ours")) {
		t.Error("foreign error should not be retriable")
	}
}

func TestIsPermanent(t *testing.T) {
	for _, code := range []ErrorCode{ErrCodePeerBlocked, ErrCodeInvalidConfig, ErrCodeSelfDial} {
		if !IsPermanent(NewError(code, "permanent")) {
			t.Errorf("code %v should be permanent", code)
		}
	}
	if IsPermanent(NewError(ErrCodeDialFailed, "transient")) {
		t.Error("dial failure should not be permanent")
	}
	if IsPermanent(errors.New("not ours")) {
		t.Error("foreign error should not be permanent")
	}
}

// The root sentinels alias the engine's so errors.Is works no matter
// which layer produced the failure.
func TestSentinels_AliasEngine(t *testing.T) {
	if !errors.Is(fmt.Errorf("x: %w", engine.ErrRelayHandshake), ErrRelayHandshake) {
		t.Error("engine handshake error should match root sentinel")
	}
	if !errors.Is(fmt.Errorf("x: %w", engine.ErrDialFailed), ErrDialFailed) {
		t.Error("engine dial error should match root sentinel")
	}
	if !errors.Is(fmt.Errorf("x: %w", engine.ErrReservationDenied), ErrReservationDenied) {
		t.Error("engine reservation error should match root sentinel")
	}
	if !errors.Is(fmt.Errorf("x: %w", engine.ErrSelfDial), ErrSelfDial) {
		t.Error("engine self-dial error should match root sentinel")
	}
	if !errors.Is(fmt.Errorf("x: %w", engine.ErrAlreadyListening), ErrAlreadyListening) {
		t.Error("engine listen error should match root sentinel")
	}
}
