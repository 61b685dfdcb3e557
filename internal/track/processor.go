package track

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanProcessor is the stop-side observer. When a span whose name is a
// configured stop event starts, it reads the event's bound start timestamp
// from the parent context's baggage and attaches the elapsed duration to the
// new span.
//
// A missing or unparseable carrier value is not an error; it means no
// matching start event was observed, and the span is left untouched. The
// duration is reported as-is, even when negative, since clamping would hide
// a clock or ordering anomaly.
type SpanProcessor struct {
	stopEvents EventMapping
}

// NewSpanProcessor returns a processor for the given stop-event mapping.
func NewSpanProcessor(stopEvents EventMapping) *SpanProcessor {
	return &SpanProcessor{stopEvents: stopEvents}
}

// OnStart implements sdktrace.SpanProcessor.
func (p *SpanProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	eventName, ok := p.stopEvents[s.Name()]
	if !ok {
		return
	}

	value := baggage.FromContext(parent).Member(eventName).Value()
	if value == "" {
		return
	}
	startNanos, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return
	}

	// The new span's start time is the event's end time.
	duration := s.StartTime().UnixNano() - startNanos
	s.SetAttributes(attribute.Int64(eventName+durationAttrSuffix, duration))
}

// OnEnd implements sdktrace.SpanProcessor.
func (p *SpanProcessor) OnEnd(sdktrace.ReadOnlySpan) {}

// Shutdown implements sdktrace.SpanProcessor.
func (p *SpanProcessor) Shutdown(context.Context) error { return nil }

// ForceFlush implements sdktrace.SpanProcessor.
func (p *SpanProcessor) ForceFlush(context.Context) error { return nil }
