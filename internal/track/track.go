// Package track measures elapsed time between two logically related spans
// that start in different, possibly concurrent, execution contexts.
//
// The start half binds a span's start timestamp into the ambient baggage
// carrier; the stop half reads it back when a matching span starts and
// records the difference as an attribute. Propagation through baggage means
// no concrete object has to be reachable across the two checkpoints: the
// carrier is inherited by every derived context, across goroutine hand-offs
// and queued work.
package track

// EventMapping maps a span name to the logical event name it starts or
// stops. Loaded once from configuration at attach time; immutable.
type EventMapping map[string]string

// durationAttrSuffix follows the key convention "<event> duration nanos".
const durationAttrSuffix = " duration nanos"
