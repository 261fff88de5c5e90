// Package session owns the lifecycle of one profiling session: it leases the
// process-wide instrumentation hooks, runs the target exactly once with the
// enabled adapters active, and drives reduction, merging, matching, and
// recommendation synthesis to completion.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/perflens/perflens/internal/adapter"
	"github.com/perflens/perflens/internal/analyze"
	"github.com/perflens/perflens/internal/profile"
	"github.com/perflens/perflens/internal/reduce"
)

// State is the coordinator's lifecycle position. Only Complete and Failed
// are terminal; a new Run restarts from either.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateReducing
	StateMerged
	StateMatched
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateReducing:
		return "reducing"
	case StateMerged:
		return "merged"
	case StateMatched:
		return "matched"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

var (
	// ErrSessionInProgress is returned when a session is started while
	// another one holds the instrumentation lease.
	ErrSessionInProgress = errors.New("profiling session already in progress")
	// ErrSessionNotComplete is returned by accessors called before the
	// session reaches the Complete state.
	ErrSessionNotComplete = errors.New("profiling session not complete")
)

// AdapterError records an instrumentation source that crashed. It is never
// fatal to the session: the adapter's data is simply absent from the report.
type AdapterError struct {
	Kind profile.Kind
	Err  error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s: %v", e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Interposition on call and line events is a single process-global resource,
// so live hooks belong to at most one session at a time, regardless of how
// many coordinators exist.
var instrumentationLease sync.Mutex

// Coordinator runs profiling sessions one at a time. A second Run while one
// is active fails with ErrSessionInProgress rather than queuing.
type Coordinator struct {
	logger     zerolog.Logger
	timeout    time.Duration
	thresholds analyze.Thresholds

	mu       sync.Mutex
	state    State
	report   *profile.Report
	findings []analyze.Finding
	recs     []analyze.Recommendation
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout sets the advisory session timeout. The coordinator never
// interrupts a running target - a forcibly stopped target would leave the
// adapters mid-interposition with streams unsafe to reduce - it only flags
// the session when the target outlives the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithThresholds overrides the pattern matcher's trigger levels.
func WithThresholds(th analyze.Thresholds) Option {
	return func(c *Coordinator) { c.thresholds = th }
}

// New creates an idle coordinator.
func New(logger zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		logger:     logger.With().Str("component", "coordinator").Logger(),
		thresholds: analyze.DefaultThresholds(),
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the coordinator's current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run executes one full profiling session: it invokes target exactly once
// with all enabled adapters active, then reduces, merges, matches, and
// synthesizes. A target that returns an error (or panics) does not abort the
// session; whatever the adapters captured up to the failure still becomes a
// report, with the failure recorded in its metadata.
//
// With zero adapters there is nothing to measure: Run fails with
// profile.ErrNoAdapters before the target is ever invoked.
func (c *Coordinator) Run(target func() error, adapters ...adapter.Adapter) error {
	if len(adapters) == 0 {
		return profile.ErrNoAdapters
	}

	if !instrumentationLease.TryLock() {
		return ErrSessionInProgress
	}
	defer instrumentationLease.Unlock()

	c.mu.Lock()
	if c.state == StateRunning || c.state == StateReducing || c.state == StateMerged || c.state == StateMatched {
		c.mu.Unlock()
		return ErrSessionInProgress
	}
	c.report = nil
	c.findings = nil
	c.recs = nil
	c.state = StateRunning
	c.mu.Unlock()

	meta := profile.Meta{
		SessionID: uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	logger := c.logger.With().Str("session_id", meta.SessionID).Logger()

	var failed []error
	active := make([]adapter.Adapter, 0, len(adapters))
	for _, a := range adapters {
		meta.Adapters = append(meta.Adapters, a.Kind())
		if err := a.Start(); err != nil {
			failed = append(failed, &AdapterError{Kind: a.Kind(), Err: err})
			meta.Failed = append(meta.Failed, a.Kind())
			logger.Warn().Err(err).Str("kind", string(a.Kind())).Msg("Adapter failed to start, continuing without it")
			continue
		}
		active = append(active, a)
	}

	logger.Info().
		Int("adapters", len(active)).
		Dur("timeout", c.timeout).
		Msg("Session running")

	start := time.Now()
	targetErr := invokeTarget(target)
	meta.Duration = time.Since(start)
	if c.timeout > 0 && meta.Duration > c.timeout {
		meta.TimedOut = true
		logger.Warn().Dur("timeout", c.timeout).Dur("elapsed", meta.Duration).Msg("Session exceeded advisory timeout")
	}
	if targetErr != nil {
		meta.TargetError = targetErr.Error()
		logger.Warn().Err(targetErr).Msg("Target failed; reducing partial streams")
	}

	// Running -> Reducing happens regardless of the target's outcome.
	c.setState(StateReducing, logger)

	streams := make(map[profile.Kind][]adapter.RawEvent, len(active))
	for _, a := range active {
		events, err := a.Stop()
		if err != nil {
			failed = append(failed, &AdapterError{Kind: a.Kind(), Err: err})
			meta.Failed = append(meta.Failed, a.Kind())
			logger.Warn().Err(err).Str("kind", string(a.Kind())).Msg("Adapter failed on stop, dropping its stream")
			continue
		}
		streams[a.Kind()] = events
	}

	if len(streams) == 0 {
		err := errors.Join(failed...)
		c.setState(StateFailed, logger)
		return fmt.Errorf("all adapters failed: %w", err)
	}

	// Each adapter's reduction is independent; run them in parallel.
	var (
		wg      sync.WaitGroup
		statsMu sync.Mutex
		stats   = make(map[profile.Kind][]*profile.Stat, len(streams))
	)
	for kind, events := range streams {
		wg.Add(1)
		go func(kind profile.Kind, events []adapter.RawEvent) {
			defer wg.Done()
			reduced := reduce.Events(kind, events, logger)
			statsMu.Lock()
			stats[kind] = reduced
			statsMu.Unlock()
		}(kind, events)
	}
	wg.Wait()

	report, err := profile.Merge(meta, stats, logger)
	if err != nil {
		c.setState(StateFailed, logger)
		return fmt.Errorf("merge session %s: %w", meta.SessionID, err)
	}
	c.setState(StateMerged, logger)

	matcher := analyze.NewMatcher(c.thresholds, logger)
	findings := matcher.Match(report)
	c.setState(StateMatched, logger)

	recs := analyze.Synthesize(findings)

	c.mu.Lock()
	c.report = report
	c.findings = findings
	c.recs = recs
	c.state = StateComplete
	c.mu.Unlock()

	logger.Info().
		Dur("duration", meta.Duration).
		Int("entries", len(report.Entries)).
		Int("findings", len(findings)).
		Int("recommendations", len(recs)).
		Msg("Session complete")
	return nil
}

// invokeTarget runs the unit of work, converting a panic into an ordinary
// recorded error so adapters still get stopped and reduced.
func invokeTarget(target func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("target panicked: %v", r)
		}
	}()
	return target()
}

func (c *Coordinator) setState(s State, logger zerolog.Logger) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	logger.Debug().Str("state", s.String()).Msg("Session state changed")
}

// Report returns the session's merged report. Valid only in Complete.
func (c *Coordinator) Report() (*profile.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateComplete {
		return nil, ErrSessionNotComplete
	}
	return c.report, nil
}

// Findings returns the pattern matcher's output. Valid only in Complete.
func (c *Coordinator) Findings() ([]analyze.Finding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateComplete {
		return nil, ErrSessionNotComplete
	}
	return c.findings, nil
}

// Recommendations returns the ranked recommendations. Valid only in Complete.
func (c *Coordinator) Recommendations() ([]analyze.Recommendation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateComplete {
		return nil, ErrSessionNotComplete
	}
	return c.recs, nil
}
