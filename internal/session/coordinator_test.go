package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perflens/perflens/internal/adapter"
	"github.com/perflens/perflens/internal/analyze"
	"github.com/perflens/perflens/internal/profile"
	"github.com/perflens/perflens/internal/testutil"
	"github.com/perflens/perflens/internal/workload"
)

// brokenAdapter fails on demand to exercise partial-session handling.
type brokenAdapter struct {
	kind      profile.Kind
	startErr  error
	stopErr   error
	started   bool
	stopped   bool
}

func (b *brokenAdapter) Kind() profile.Kind { return b.kind }

func (b *brokenAdapter) Start() error {
	b.started = true
	return b.startErr
}

func (b *brokenAdapter) Stop() ([]adapter.RawEvent, error) {
	b.stopped = true
	if b.stopErr != nil {
		return nil, b.stopErr
	}
	return nil, nil
}

func TestRunRejectsZeroAdapters(t *testing.T) {
	coord := New(testutil.NewTestLogger(t))

	ran := false
	err := coord.Run(func() error {
		ran = true
		return nil
	})

	assert.ErrorIs(t, err, profile.ErrNoAdapters)
	assert.False(t, ran, "the target must never run without adapters")
	assert.Equal(t, StateIdle, coord.State())
}

func TestRunRejectsConcurrentSession(t *testing.T) {
	first := New(testutil.NewTestLogger(t))
	second := New(testutil.NewTestLogger(t))

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		ct := adapter.NewCallTimer()
		done <- first.Run(func() error {
			close(started)
			<-release
			return nil
		}, ct)
	}()

	<-started
	err := second.Run(func() error { return nil }, adapter.NewCallTimer())
	assert.ErrorIs(t, err, ErrSessionInProgress,
		"instrumentation is process-global, so a second coordinator is rejected too")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateComplete, first.State())
}

func TestAccessorsBeforeCompletion(t *testing.T) {
	coord := New(testutil.NewTestLogger(t))

	_, err := coord.Report()
	assert.ErrorIs(t, err, ErrSessionNotComplete)
	_, err = coord.Findings()
	assert.ErrorIs(t, err, ErrSessionNotComplete)
	_, err = coord.Recommendations()
	assert.ErrorIs(t, err, ErrSessionNotComplete)
}

func TestTargetErrorStillProducesReport(t *testing.T) {
	coord := New(testutil.NewTestLogger(t))
	ct := adapter.NewCallTimer()

	err := coord.Run(func() error {
		defer ct.Probe().Enter("app.Partial")()
		return errors.New("database unreachable")
	}, ct)
	require.NoError(t, err, "a failing target is a valid profiling result")

	report, err := coord.Report()
	require.NoError(t, err)
	assert.Equal(t, "database unreachable", report.Meta.TargetError)

	_, ok := report.Lookup(profile.Location{Function: "app.Partial"})
	assert.True(t, ok, "events up to the failure point survive")
}

func TestTargetPanicIsRecovered(t *testing.T) {
	coord := New(testutil.NewTestLogger(t))

	err := coord.Run(func() error {
		panic("boom")
	}, adapter.NewCallTimer())
	require.NoError(t, err)

	report, err := coord.Report()
	require.NoError(t, err)
	assert.Contains(t, report.Meta.TargetError, "target panicked")
	assert.Contains(t, report.Meta.TargetError, "boom")
}

func TestAdapterStartFailureIsPartial(t *testing.T) {
	coord := New(testutil.NewTestLogger(t))
	ct := adapter.NewCallTimer()
	broken := &brokenAdapter{kind: profile.KindLineTime, startErr: errors.New("hook rejected")}

	err := coord.Run(func() error {
		defer ct.Probe().Enter("app.Work")()
		return nil
	}, ct, broken)
	require.NoError(t, err, "one healthy adapter keeps the session alive")

	report, err := coord.Report()
	require.NoError(t, err)
	assert.Equal(t, []profile.Kind{profile.KindCallTime, profile.KindLineTime}, report.Meta.Adapters)
	assert.Equal(t, []profile.Kind{profile.KindLineTime}, report.Meta.Failed)

	_, ok := report.Lookup(profile.Location{Function: "app.Work"})
	assert.True(t, ok)
}

func TestAllAdaptersFailing(t *testing.T) {
	coord := New(testutil.NewTestLogger(t))
	startBroken := &brokenAdapter{kind: profile.KindCallTime, startErr: errors.New("no start")}
	stopBroken := &brokenAdapter{kind: profile.KindLineTime, stopErr: errors.New("no stop")}

	err := coord.Run(func() error { return nil }, startBroken, stopBroken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all adapters failed")
	assert.Equal(t, StateFailed, coord.State())

	var adapterErr *AdapterError
	assert.ErrorAs(t, err, &adapterErr)

	_, rerr := coord.Report()
	assert.ErrorIs(t, rerr, ErrSessionNotComplete)
}

func TestAdvisoryTimeoutFlagsSession(t *testing.T) {
	coord := New(testutil.NewTestLogger(t), WithTimeout(time.Millisecond))

	err := coord.Run(func() error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}, adapter.NewCallTimer())
	require.NoError(t, err, "the timeout is advisory, never an interruption")

	report, err := coord.Report()
	require.NoError(t, err)
	assert.True(t, report.Meta.TimedOut)
	assert.GreaterOrEqual(t, report.Meta.Duration, 20*time.Millisecond)
}

func TestRunIsRepeatable(t *testing.T) {
	coord := New(testutil.NewTestLogger(t))

	for i := 0; i < 2; i++ {
		ct := adapter.NewCallTimer()
		err := coord.Run(func() error {
			defer ct.Probe().Enter("app.Work")()
			return nil
		}, ct)
		require.NoError(t, err)
		assert.Equal(t, StateComplete, coord.State())
	}
}

func TestFibonacciScenario(t *testing.T) {
	coord := New(testutil.NewTestLogger(t))
	ct := adapter.NewCallTimer()

	err := coord.Run(func() error {
		workload.Fibonacci(ct.Probe(), 25)
		return nil
	}, ct)
	require.NoError(t, err)

	report, err := coord.Report()
	require.NoError(t, err)
	e, ok := report.Lookup(profile.Location{Function: "workload.Fibonacci"})
	require.True(t, ok)
	s := e.Stat(profile.KindCallTime)
	require.NotNil(t, s)
	assert.Equal(t, int64(242785), s.Hits, "fib(25) makes 2*fib(26)-1 calls")
	assert.True(t, s.Recursive)
	assert.LessOrEqual(t, s.Percent, 100.0)

	findings, err := coord.Findings()
	require.NoError(t, err)
	var recursion *analyze.Finding
	for i := range findings {
		if findings[i].Pattern == analyze.PatternExponentialRecursion {
			recursion = &findings[i]
			break
		}
	}
	require.NotNil(t, recursion, "naive Fibonacci must be flagged as exponential recursion")
	assert.Equal(t, analyze.ConfidenceHigh, recursion.Confidence)

	recs, err := coord.Recommendations()
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, "Memoize recursive workload.Fibonacci", recs[0].Title)
	assert.Equal(t, analyze.SeverityCritical, recs[0].Severity)
}

func TestMemoryGrowthScenario(t *testing.T) {
	coord := New(testutil.NewTestLogger(t))
	hw := adapter.NewHeapWatch(2*time.Millisecond, testutil.NewTestLogger(t))

	var sink [][]byte
	err := coord.Run(func() error {
		// Three paced rounds of retained appends, 4 MiB total, so the
		// sampler observes a strictly rising allocation series.
		for round := 0; round < 3; round++ {
			sink = append(sink, workload.Grow(350, 4096)...)
			time.Sleep(5 * time.Millisecond)
		}
		return nil
	}, hw)
	require.NoError(t, err)
	require.NotEmpty(t, sink)

	report, err := coord.Report()
	require.NoError(t, err)
	e, ok := report.Lookup(adapter.HeapLocation)
	require.True(t, ok)
	s := e.Stat(profile.KindAlloc)
	require.NotNil(t, s)
	require.GreaterOrEqual(t, len(s.Series), 3)

	findings, err := coord.Findings()
	require.NoError(t, err)
	var growth *analyze.Finding
	for i := range findings {
		if findings[i].Pattern == analyze.PatternUnboundedGrowth {
			growth = &findings[i]
			break
		}
	}
	require.NotNil(t, growth, "a retained append loop must be flagged as unbounded growth")
	assert.GreaterOrEqual(t, growth.Evidence["samples"], 3.0)
	assert.GreaterOrEqual(t, growth.Evidence["growth_bytes"], float64(1<<20))
}

func TestStateStringCoverage(t *testing.T) {
	states := map[State]string{
		StateIdle:     "idle",
		StateRunning:  "running",
		StateReducing: "reducing",
		StateMerged:   "merged",
		StateMatched:  "matched",
		StateComplete: "complete",
		StateFailed:   "failed",
		State(99):     "unknown",
	}
	for s, want := range states {
		assert.Equal(t, want, s.String())
	}
}
