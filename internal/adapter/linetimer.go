package adapter

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/perflens/perflens/internal/profile"
)

// LineTimer records per-statement timings through explicit interposition:
// instrumented code brackets a statement with
//
//	defer lt.Span("pkg.Func", 42)()
//
// Spans are the statement-level counterpart of the call timer's entry/exit
// pairs and share its serialized-with-the-target execution model.
type LineTimer struct {
	running atomic.Bool
	epoch   time.Time

	mu     sync.Mutex
	events []RawEvent
}

// NewLineTimer creates a stopped line timer.
func NewLineTimer() *LineTimer {
	return &LineTimer{}
}

// Kind implements Adapter.
func (l *LineTimer) Kind() profile.Kind { return profile.KindLineTime }

// Start implements Adapter.
func (l *LineTimer) Start() error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("line timer already running")
	}
	l.epoch = time.Now()
	return nil
}

// Stop implements Adapter.
func (l *LineTimer) Stop() ([]RawEvent, error) {
	if !l.running.CompareAndSwap(true, false) {
		return nil, errors.New("line timer not running")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	events := l.events
	l.events = nil
	return events, nil
}

// Span records time spent on one statement. The returned closure must be
// called when the statement completes. No-op while the timer is stopped.
func (l *LineTimer) Span(function string, line int) func() {
	if !l.running.Load() {
		return func() {}
	}
	start := time.Since(l.epoch).Nanoseconds()
	return func() {
		end := time.Since(l.epoch).Nanoseconds()
		l.mu.Lock()
		l.events = append(l.events, RawEvent{
			Kind:  profile.KindLineTime,
			Type:  EventSpan,
			Loc:   profile.Location{Function: function, Line: line},
			Nanos: end,
			Value: end - start,
		})
		l.mu.Unlock()
	}
}
