package adapter

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/perflens/perflens/internal/profile"
)

// CallTimer records function entry/exit pairs through explicit interposition:
// instrumented code obtains a Probe and brackets each call with
//
//	defer probe.Enter("pkg.Func")()
//
// One probe serves one goroutine; probes buffer events locally so the hot
// path takes no locks. Because the timer interposes on execution it is
// inherently serialized with the target, not parallel to it.
type CallTimer struct {
	running atomic.Bool
	epoch   time.Time

	mu        sync.Mutex
	probes    []*Probe
	nextTrack int64
}

// NewCallTimer creates a stopped call timer.
func NewCallTimer() *CallTimer {
	return &CallTimer{}
}

// Kind implements Adapter.
func (c *CallTimer) Kind() profile.Kind { return profile.KindCallTime }

// Start implements Adapter.
func (c *CallTimer) Start() error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("call timer already running")
	}
	c.epoch = time.Now()
	return nil
}

// Stop implements Adapter. It drains every probe's buffer into one stream.
func (c *CallTimer) Stop() ([]RawEvent, error) {
	if !c.running.CompareAndSwap(true, false) {
		return nil, errors.New("call timer not running")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var events []RawEvent
	for _, p := range c.probes {
		events = append(events, p.events...)
		p.events = nil
	}
	c.probes = nil
	return events, nil
}

// Probe returns a new per-goroutine probe. Probes created before Start are
// valid; their Enter calls are no-ops until the timer runs.
func (c *CallTimer) Probe() *Probe {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextTrack++
	p := &Probe{timer: c, track: c.nextTrack}
	c.probes = append(c.probes, p)
	return p
}

// Probe is a goroutine-local recording handle. Not safe for concurrent use;
// create one probe per goroutine.
type Probe struct {
	timer  *CallTimer
	track  int64
	stack  []string
	events []RawEvent
}

// Enter records entry into the named function and returns the matching exit
// closure. The call path hash deduplicates identical stacks the same way the
// continuous profiler's storage deduplicates frame sequences.
func (p *Probe) Enter(function string) func() {
	if !p.timer.running.Load() {
		return func() {}
	}
	var caller string
	if n := len(p.stack); n > 0 {
		caller = p.stack[n-1]
	}
	p.stack = append(p.stack, function)

	h := xxh3.New()
	for _, fn := range p.stack {
		_, _ = h.WriteString(fn)
		_, _ = h.WriteString(";")
	}
	pathHash := h.Sum64()

	enterNanos := time.Since(p.timer.epoch).Nanoseconds()
	p.events = append(p.events, RawEvent{
		Kind:     profile.KindCallTime,
		Type:     EventEnter,
		Loc:      profile.Location{Function: function},
		Track:    p.track,
		Nanos:    enterNanos,
		Caller:   caller,
		PathHash: pathHash,
	})

	return func() {
		exitNanos := time.Since(p.timer.epoch).Nanoseconds()
		if n := len(p.stack); n > 0 && p.stack[n-1] == function {
			p.stack = p.stack[:n-1]
		}
		p.events = append(p.events, RawEvent{
			Kind:  profile.KindCallTime,
			Type:  EventExit,
			Loc:   profile.Location{Function: function},
			Track: p.track,
			Nanos: exitNanos,
			Value: exitNanos - enterNanos,
		})
	}
}
