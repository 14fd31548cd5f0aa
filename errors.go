package p2pmidi

import (
	"errors"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/matheusfillipe/p2pmidi/pkg/engine"
)

// ErrorCode identifies the type of error for programmatic handling.
type ErrorCode int

const (
	// ErrCodeUnknown indicates an unknown or unclassified error.
	ErrCodeUnknown ErrorCode = iota

	// ErrCodeDialFailed indicates an outbound dial failed.
	ErrCodeDialFailed

	// ErrCodeRelayHandshake indicates the address-learning handshake with
	// the relay did not complete.
	ErrCodeRelayHandshake

	// ErrCodeReservationDenied indicates the relay refused a listening
	// reservation.
	ErrCodeReservationDenied

	// ErrCodeSelfDial indicates an attempt to dial the local peer.
	ErrCodeSelfDial

	// ErrCodePeerNotFound indicates the peer is not in the peer book.
	ErrCodePeerNotFound

	// ErrCodePeerBlocked indicates the peer is blocked.
	ErrCodePeerBlocked

	// ErrCodeInvalidConfig indicates the configuration is invalid.
	ErrCodeInvalidConfig

	// ErrCodeNodeNotStarted indicates the node has not been started.
	ErrCodeNodeNotStarted

	// ErrCodeNodeAlreadyStarted indicates the node is already running.
	ErrCodeNodeAlreadyStarted

	// ErrCodeVersionMismatch indicates the remote speaks a different
	// protocol version. Reported, never enforced.
	ErrCodeVersionMismatch
)

// String returns a human-readable name for the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeUnknown:
		return "Unknown"
	case ErrCodeDialFailed:
		return "DialFailed"
	case ErrCodeRelayHandshake:
		return "RelayHandshake"
	case ErrCodeReservationDenied:
		return "ReservationDenied"
	case ErrCodeSelfDial:
		return "SelfDial"
	case ErrCodePeerNotFound:
		return "PeerNotFound"
	case ErrCodePeerBlocked:
		return "PeerBlocked"
	case ErrCodeInvalidConfig:
		return "InvalidConfig"
	case ErrCodeNodeNotStarted:
		return "NodeNotStarted"
	case ErrCodeNodeAlreadyStarted:
		return "NodeAlreadyStarted"
	case ErrCodeVersionMismatch:
		return "VersionMismatch"
	default:
		return fmt.Sprintf("ErrorCode(%d)", c)
	}
}

// Error is a rich error with structured context for programmatic
// handling.
type Error struct {
	// Code identifies the type of error.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// PeerID is the peer associated with the error, if any.
	PeerID peer.ID

	// Cause is the underlying error, if any.
	Cause error

	// Retriable indicates whether the operation can be retried.
	Retriable bool
}

// Error returns a human-readable error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("p2pmidi: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("p2pmidi: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Two errors match when
// their codes are equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// IsRetriable returns true if the error indicates a retriable operation.
func IsRetriable(err error) bool {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Retriable
	}
	return false
}

// IsPermanent returns true for failures that should not be retried.
func IsPermanent(err error) bool {
	var pErr *Error
	if errors.As(err, &pErr) {
		switch pErr.Code {
		case ErrCodePeerBlocked, ErrCodeInvalidConfig, ErrCodeSelfDial:
			return true
		}
	}
	return false
}

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorWithCause creates an Error wrapping an underlying error.
func NewErrorWithCause(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// NewPeerError creates an Error associated with a specific peer.
func NewPeerError(code ErrorCode, message string, peerID peer.ID) *Error {
	return &Error{Code: code, Message: message, PeerID: peerID}
}

// Sentinel errors for connection establishment. These alias the engine's
// sentinels so errors.Is works across both layers.
var (
	// ErrRelayHandshake indicates the address-learning handshake failed.
	// Recoverable; the node keeps running and the handshake may be retried.
	ErrRelayHandshake = engine.ErrRelayHandshake

	// ErrReservationDenied indicates the relay refused or never answered a
	// listening reservation request.
	ErrReservationDenied = engine.ErrReservationDenied

	// ErrDialFailed indicates an outbound dial failed.
	ErrDialFailed = engine.ErrDialFailed

	// ErrSelfDial indicates an attempt to dial the local peer.
	ErrSelfDial = engine.ErrSelfDial

	// ErrAlreadyListening indicates Listen was called while a relay
	// reservation is already being maintained.
	ErrAlreadyListening = engine.ErrAlreadyListening
)

// Sentinel errors for peer book operations.
var (
	// ErrPeerNotFound indicates the peer is not in the peer book.
	ErrPeerNotFound = errors.New("peer not found in peer book")

	// ErrPeerBlocked indicates the peer is blocked.
	ErrPeerBlocked = errors.New("peer is blocked")
)

// Sentinel errors for configuration.
var (
	// ErrInvalidConfig indicates the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingIdentity indicates neither a seed nor a private key was
	// provided.
	ErrMissingIdentity = errors.New("node identity is required")

	// ErrMissingRelay indicates no relay endpoint was provided.
	ErrMissingRelay = errors.New("relay endpoint is required")

	// ErrMissingPeerBookPath indicates no peer book path was provided.
	ErrMissingPeerBookPath = errors.New("peer book path is required")
)

// Sentinel errors for node operations.
var (
	// ErrNodeNotStarted indicates the node has not been started.
	ErrNodeNotStarted = errors.New("node not started")

	// ErrNodeAlreadyStarted indicates the node is already running.
	ErrNodeAlreadyStarted = errors.New("node already started")
)
