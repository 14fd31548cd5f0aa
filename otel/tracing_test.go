package otel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewTracer(tp), exporter
}

func TestNewTracer(t *testing.T) {
	// Test with nil provider (should use noop)
	tracer := NewTracer(nil)
	if tracer == nil {
		t.Fatal("NewTracer(nil) returned nil")
	}
	if tracer.tracer == nil {
		t.Error("tracer.tracer is nil")
	}

	// Test with real provider
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	tracer = NewTracer(tp)
	if tracer == nil {
		t.Error("NewTracer(tp) returned nil")
	}
}

func TestTracer_StartDial(t *testing.T) {
	tracer, exporter := newRecordingTracer(t)
	peerID := peer.ID("test-peer")

	ctx, span := tracer.StartDial(context.Background(), peerID)
	span.End()

	if ctx == nil {
		t.Error("context should not be nil")
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != SpanDial {
		t.Errorf("span name = %q, want %q", spans[0].Name, SpanDial)
	}

	found := false
	for _, attr := range spans[0].Attributes {
		if string(attr.Key) == AttrPeerID && attr.Value.AsString() == peerID.String() {
			found = true
		}
	}
	if !found {
		t.Error("expected peer.id attribute on dial span")
	}
}

func TestTracer_StartBootstrap(t *testing.T) {
	tracer, exporter := newRecordingTracer(t)
	relayID := peer.ID("relay-peer")

	ctx, span := tracer.StartBootstrap(context.Background(), relayID)
	_, attempt := tracer.StartRelayHandshake(ctx, relayID, 1)
	attempt.End()
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	// The handshake span ends first and should be a child of the
	// bootstrap span.
	if spans[0].Name != SpanRelayHandshake {
		t.Errorf("first span = %q, want %q", spans[0].Name, SpanRelayHandshake)
	}
	if spans[1].Name != SpanBootstrap {
		t.Errorf("second span = %q, want %q", spans[1].Name, SpanBootstrap)
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("handshake span should be a child of the bootstrap span")
	}
}

func TestTracer_RecordHolePunchResult(t *testing.T) {
	tracer, exporter := newRecordingTracer(t)

	_, span := tracer.StartHolePunch(context.Background(), peer.ID("p"))
	tracer.RecordHolePunchResult(span, "success", nil)
	span.End()

	_, span = tracer.StartHolePunch(context.Background(), peer.ID("p"))
	tracer.RecordHolePunchResult(span, "failure", errors.New("no route"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("success span status = %v, want Ok", spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Error {
		t.Errorf("failure span status = %v, want Error", spans[1].Status.Code)
	}
}

func TestTracer_RecordReservationExpiry(t *testing.T) {
	tracer, exporter := newRecordingTracer(t)

	expiry := time.Now().Add(time.Hour)
	_, span := tracer.StartReservation(context.Background(), peer.ID("relay"))
	tracer.RecordReservationExpiry(span, expiry)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	found := false
	for _, attr := range spans[0].Attributes {
		if string(attr.Key) == AttrReservationExpiry {
			found = true
			if attr.Value.AsString() != expiry.Format(time.RFC3339) {
				t.Errorf("expiry attribute = %q, want %q",
					attr.Value.AsString(), expiry.Format(time.RFC3339))
			}
		}
	}
	if !found {
		t.Error("expected reservation.expiry attribute")
	}
}

func TestTracer_EndSpan(t *testing.T) {
	tracer, exporter := newRecordingTracer(t)

	_, span := tracer.StartListen(context.Background(), peer.ID("relay"))
	tracer.EndSpan(span, errors.New("reservation denied"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status.Code)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected recorded error event on span")
	}
}

func TestNopTracer(t *testing.T) {
	tracer := NewNopTracer()
	if tracer == nil {
		t.Fatal("NewNopTracer returned nil")
	}

	// All operations should be safe no-ops.
	ctx, span := tracer.StartDial(context.Background(), peer.ID("p"))
	if ctx == nil {
		t.Error("context should not be nil")
	}
	tracer.RecordError(span, errors.New("ignored"))
	tracer.EndSpan(span, nil)
}
