package messaging

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrier_SetReplaces(t *testing.T) {
	msg := &kafka.Message{}
	carrier := carrierFor(msg)

	carrier.Set("traceparent", "a")
	carrier.Set("traceparent", "b")

	if len(msg.Headers) != 1 {
		t.Fatalf("expected 1 header, got %d", len(msg.Headers))
	}
	if got := carrier.Get("traceparent"); got != "b" {
		t.Errorf("expected b, got %q", got)
	}
	if got := carrier.Get("TraceParent"); got != "b" {
		t.Errorf("expected case-insensitive match, got %q", got)
	}
	if got := carrier.Get("missing"); got != "" {
		t.Errorf("expected empty value, got %q", got)
	}
}

func TestHeaderCarrier_RoundTripsTraceContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	msg := &kafka.Message{}
	propagator := propagation.TraceContext{}
	propagator.Inject(ctx, carrierFor(msg))

	extracted := trace.SpanContextFromContext(propagator.Extract(context.Background(), carrierFor(msg)))
	if extracted.TraceID() != traceID {
		t.Errorf("expected trace id %s, got %s", traceID, extracted.TraceID())
	}
	if keys := carrierFor(msg).Keys(); len(keys) != 1 || keys[0] != "traceparent" {
		t.Errorf("unexpected header keys %v", keys)
	}
}
