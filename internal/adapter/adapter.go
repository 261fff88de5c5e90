// Package adapter provides the instrumentation sources a profiling session
// can enable: a call timer, an allocation watcher, and a statement timer.
// Each adapter produces a raw event stream for exactly one execution of the
// target; the streams are reduced independently by the aggregator.
package adapter

import "github.com/perflens/perflens/internal/profile"

// EventType distinguishes the shapes of raw events an adapter can emit.
type EventType uint8

const (
	// EventEnter marks a function entry (call-timing).
	EventEnter EventType = iota
	// EventExit marks a function exit (call-timing).
	EventExit
	// EventSpan carries a completed statement timing (line-timing).
	EventSpan
	// EventSample carries a periodic allocation observation.
	EventSample
)

// RawEvent is one observation from an adapter. Which fields are meaningful
// depends on the adapter kind; events are owned by the reducer consuming the
// stream and discarded after reduction.
type RawEvent struct {
	Kind profile.Kind
	Type EventType
	Loc  profile.Location

	// Track separates concurrent event sequences so call stacks can be
	// rebuilt per goroutine.
	Track int64
	// Nanos is a monotonic timestamp relative to adapter start.
	Nanos int64
	// Value is the measured quantity: elapsed nanoseconds for EventExit and
	// EventSpan, cumulative allocated bytes for EventSample.
	Value int64
	// Freed is the cumulative freed bytes at sample time (EventSample only).
	Freed int64

	// Caller is the qualified name of the calling location (EventEnter only,
	// empty for root calls).
	Caller string
	// PathHash identifies the full call path leading to this entry, used to
	// count distinct call paths per location.
	PathHash uint64
}

// Adapter is one instrumentation source. Start and Stop must be safely
// composable with other adapters running against the same execution: an
// adapter owns no process-global state besides its own buffers.
//
// The set of implementations is closed over the three profile.Kind variants;
// the merger's identity reconciliation depends on knowing all of them.
type Adapter interface {
	Kind() profile.Kind
	Start() error
	Stop() ([]RawEvent, error)
}
