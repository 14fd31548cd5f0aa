// Package otel provides OpenTelemetry tracing integration for p2pmidi.
//
// This package enables distributed tracing of p2pmidi operations using
// OpenTelemetry. Traces provide visibility into the relay handshake, dial
// attempts, reservations, and hole punching.
//
// # Span Hierarchy
//
// The following spans are created during normal operation:
//
//	p2pmidi.bootstrap
//	└── p2pmidi.relay_handshake     (one per attempt)
//
//	p2pmidi.dial
//	└── p2pmidi.hole_punch          (background upgrade)
//
//	p2pmidi.listen
//	└── p2pmidi.reservation         (initial grant and each refresh)
//
// # Attributes
//
// Common span attributes include:
//   - peer.id: The remote peer's ID
//   - relay.id: The relay's peer ID
//   - dial.attempt: Attempt number for retried operations
//   - reservation.expiry: Reservation expiry time (RFC 3339)
//   - hole_punch.result: "success" or "failure"
//
// # Example Usage
//
//	import (
//	    "github.com/matheusfillipe/p2pmidi"
//	    p2pmidiotel "github.com/matheusfillipe/p2pmidi/otel"
//	    "go.opentelemetry.io/otel"
//	)
//
//	func main() {
//	    tp := otel.GetTracerProvider()
//	    tracer := p2pmidiotel.NewTracer(tp)
//
//	    node, err := p2pmidi.New(cfg)
//	    // ...
//
//	    ctx, span := tracer.StartDial(ctx, target)
//	    err = node.DialPeer(ctx, target)
//	    tracer.EndSpan(span, err)
//	}
package otel

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the name used for the OpenTelemetry tracer.
	TracerName = "github.com/matheusfillipe/p2pmidi"

	// Span names
	SpanBootstrap      = "p2pmidi.bootstrap"
	SpanRelayHandshake = "p2pmidi.relay_handshake"
	SpanDial           = "p2pmidi.dial"
	SpanHolePunch      = "p2pmidi.hole_punch"
	SpanListen         = "p2pmidi.listen"
	SpanReservation    = "p2pmidi.reservation"
	SpanDisconnect     = "p2pmidi.disconnect"

	// Attribute keys
	AttrPeerID            = "peer.id"
	AttrRelayID           = "relay.id"
	AttrDialAttempt       = "dial.attempt"
	AttrReservationExpiry = "reservation.expiry"
	AttrHolePunchResult   = "hole_punch.result"
	AttrErrorMessage      = "error.message"
)

// Tracer provides OpenTelemetry tracing for p2pmidi operations.
// It wraps an OpenTelemetry TracerProvider and creates spans for the
// relay handshake, dials, reservations, and hole punching.
//
// Tracer is safe for concurrent use.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the given TracerProvider.
// If provider is nil, a no-op tracer is used.
func NewTracer(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(TracerName)}
	}
	return &Tracer{tracer: provider.Tracer(TracerName)}
}

// StartBootstrap starts a span covering the whole address-learning
// handshake, retries included.
func (t *Tracer) StartBootstrap(ctx context.Context, relayID peer.ID) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanBootstrap,
		trace.WithAttributes(
			attribute.String(AttrRelayID, relayID.String()),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartRelayHandshake starts a span for a single handshake attempt.
func (t *Tracer) StartRelayHandshake(ctx context.Context, relayID peer.ID, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanRelayHandshake,
		trace.WithAttributes(
			attribute.String(AttrRelayID, relayID.String()),
			attribute.Int(AttrDialAttempt, attempt),
		),
	)
}

// StartDial starts a span for dialing a peer through the relay.
func (t *Tracer) StartDial(ctx context.Context, peerID peer.ID) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanDial,
		trace.WithAttributes(
			attribute.String(AttrPeerID, peerID.String()),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartHolePunch starts a span for a direct-connection upgrade attempt.
func (t *Tracer) StartHolePunch(ctx context.Context, peerID peer.ID) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanHolePunch,
		trace.WithAttributes(
			attribute.String(AttrPeerID, peerID.String()),
		),
	)
}

// StartListen starts a span for setting up relay listening.
func (t *Tracer) StartListen(ctx context.Context, relayID peer.ID) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanListen,
		trace.WithAttributes(
			attribute.String(AttrRelayID, relayID.String()),
		),
	)
}

// StartReservation starts a span for a reservation request or refresh.
func (t *Tracer) StartReservation(ctx context.Context, relayID peer.ID) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanReservation,
		trace.WithAttributes(
			attribute.String(AttrRelayID, relayID.String()),
		),
	)
}

// StartDisconnect starts a span for disconnection.
func (t *Tracer) StartDisconnect(ctx context.Context, peerID peer.ID) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanDisconnect,
		trace.WithAttributes(
			attribute.String(AttrPeerID, peerID.String()),
		),
	)
}

// RecordReservationExpiry records a granted reservation's expiry on the
// given span.
func (t *Tracer) RecordReservationExpiry(span trace.Span, expiry time.Time) {
	span.SetAttributes(attribute.String(AttrReservationExpiry, expiry.Format(time.RFC3339)))
}

// RecordHolePunchResult records the outcome of a hole punch on the given
// span.
func (t *Tracer) RecordHolePunchResult(span trace.Span, result string, err error) {
	span.SetAttributes(attribute.String(AttrHolePunchResult, result))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

// RecordError records an error on the given span.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// EndSpan ends a span, optionally recording an error.
func (t *Tracer) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// NopTracer is a no-op tracer that does nothing.
// It is used when tracing is disabled.
// NopTracer wraps the real Tracer with a noop provider.
type NopTracer struct {
	*Tracer
}

// NewNopTracer creates a new no-op tracer.
func NewNopTracer() *NopTracer {
	return &NopTracer{
		Tracer: NewTracer(nil),
	}
}
