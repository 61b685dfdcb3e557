package track

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/baggage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
)

// NewTracerProvider wraps delegate so that starting a span whose name is a
// configured start event binds that event's name to the span's start
// timestamp in the returned context's baggage. The binding is
// first-write-wins: if the carrier already holds a value for the event, a
// repeated start leaves it untouched, so durations always measure from the
// first occurrence.
//
// The wrapper is transparent for every span name not in the mapping and for
// spans not produced by the SDK (no recorded start time to bind).
func NewTracerProvider(delegate trace.TracerProvider, startEvents EventMapping) trace.TracerProvider {
	return &tracerProvider{delegate: delegate, startEvents: startEvents}
}

type tracerProvider struct {
	embedded.TracerProvider

	delegate    trace.TracerProvider
	startEvents EventMapping
}

func (p *tracerProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return &tracer{
		delegate:    p.delegate.Tracer(name, opts...),
		startEvents: p.startEvents,
	}
}

type tracer struct {
	embedded.Tracer

	delegate    trace.Tracer
	startEvents EventMapping
}

// Start creates the span through the delegate, then derives a context whose
// baggage carries the start-event binding when applicable. The derived
// context, not the original, is what callers propagate.
func (t *tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	ctx, span := t.delegate.Start(ctx, name, opts...)

	eventName, ok := t.startEvents[name]
	if !ok {
		return ctx, span
	}

	// The timestamp comes from the span's own recorded start time, not from
	// the clock at hook time, so scheduling jitter between span creation and
	// this hook cannot skew the measurement.
	rs, ok := span.(sdktrace.ReadOnlySpan)
	if !ok {
		return ctx, span
	}

	bag := baggage.FromContext(ctx)
	if bag.Member(eventName).Value() != "" {
		return ctx, span
	}

	member, err := baggage.NewMember(eventName, strconv.FormatInt(rs.StartTime().UnixNano(), 10))
	if err != nil {
		return ctx, span
	}
	updated, err := bag.SetMember(member)
	if err != nil {
		return ctx, span
	}
	return baggage.ContextWithBaggage(ctx, updated), span
}
