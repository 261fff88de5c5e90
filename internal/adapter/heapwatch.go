package adapter

import (
	"errors"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/perflens/perflens/internal/profile"
	"github.com/perflens/perflens/internal/safe"
)

// HeapLocation is the pseudo-location allocation samples are attributed to.
// The watcher observes the process heap as a whole, so its stats are
// function-granularity by construction.
var HeapLocation = profile.Location{Function: "runtime.heap"}

// RSSLocation is the pseudo-location for resident-set-size samples.
var RSSLocation = profile.Location{Function: "process.rss"}

// HeapWatch samples allocation counters on a fixed schedule while the target
// runs. Unlike the two timing adapters it does not interpose on execution: it
// observes asynchronously from its own goroutine.
type HeapWatch struct {
	interval time.Duration
	logger   zerolog.Logger

	proc    *process.Process
	events  []RawEvent
	epoch   time.Time
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewHeapWatch creates a stopped heap watcher sampling at the given interval.
func NewHeapWatch(interval time.Duration, logger zerolog.Logger) *HeapWatch {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &HeapWatch{
		interval: interval,
		logger:   logger.With().Str("component", "heapwatch").Logger(),
	}
}

// Kind implements Adapter.
func (h *HeapWatch) Kind() profile.Kind { return profile.KindAlloc }

// Start implements Adapter. It records a baseline sample immediately, then
// samples every interval until Stop.
func (h *HeapWatch) Start() error {
	if h.running {
		return errors.New("heap watcher already running")
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		// RSS sampling is best-effort; heap counters still work without it.
		h.logger.Warn().Err(err).Msg("Process handle unavailable, skipping RSS samples")
		proc = nil
	}
	h.proc = proc
	h.running = true
	h.epoch = time.Now()
	h.events = nil
	h.stop = make(chan struct{})
	h.done = make(chan struct{})

	h.sample()
	go h.run()
	return nil
}

// Stop implements Adapter. It takes a final sample so every session has at
// least two observations per pseudo-location.
func (h *HeapWatch) Stop() ([]RawEvent, error) {
	if !h.running {
		return nil, errors.New("heap watcher not running")
	}
	close(h.stop)
	<-h.done
	h.sample()
	h.running = false
	events := h.events
	h.events = nil
	return events, nil
}

func (h *HeapWatch) run() {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.sample()
		}
	}
}

// sample appends one heap observation and, when available, one RSS
// observation. Only the sampler goroutine and Start/Stop touch h.events, and
// those are serialized through the stop/done channels.
func (h *HeapWatch) sample() {
	nanos := time.Since(h.epoch).Nanoseconds()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	allocated, clamped := safe.Uint64ToInt64(ms.TotalAlloc)
	if clamped {
		h.logger.Warn().Uint64("total_alloc", ms.TotalAlloc).Msg("Allocation counter clamped")
	}
	live, _ := safe.Uint64ToInt64(ms.HeapAlloc)
	freed := allocated - live
	if freed < 0 {
		freed = 0
	}

	h.events = append(h.events, RawEvent{
		Kind:  profile.KindAlloc,
		Type:  EventSample,
		Loc:   HeapLocation,
		Nanos: nanos,
		Value: allocated,
		Freed: freed,
	})

	if h.proc != nil {
		if mem, err := h.proc.MemoryInfo(); err == nil && mem != nil {
			rss, _ := safe.Uint64ToInt64(mem.RSS)
			h.events = append(h.events, RawEvent{
				Kind:  profile.KindAlloc,
				Type:  EventSample,
				Loc:   RSSLocation,
				Nanos: nanos,
				Value: rss,
			})
		}
	}
}
