package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perflens/perflens/internal/profile"
	"github.com/perflens/perflens/internal/testutil"
)

func TestHeapWatchSamples(t *testing.T) {
	hw := NewHeapWatch(5*time.Millisecond, testutil.NewTestLogger(t))
	require.NoError(t, hw.Start())
	assert.Error(t, hw.Start(), "double start is rejected")

	// Allocate something observable while the sampler runs.
	sink := make([][]byte, 0, 64)
	for i := 0; i < 64; i++ {
		sink = append(sink, make([]byte, 64<<10))
		time.Sleep(time.Millisecond / 2)
	}
	_ = sink

	events, err := hw.Stop()
	require.NoError(t, err)

	var heap []RawEvent
	for _, ev := range events {
		assert.Equal(t, profile.KindAlloc, ev.Kind)
		assert.Equal(t, EventSample, ev.Type)
		if ev.Loc == HeapLocation {
			heap = append(heap, ev)
		}
	}
	require.GreaterOrEqual(t, len(heap), 2, "baseline plus final sample at minimum")

	// Cumulative allocation counters never decrease.
	for i := 1; i < len(heap); i++ {
		assert.GreaterOrEqual(t, heap[i].Value, heap[i-1].Value)
		assert.GreaterOrEqual(t, heap[i].Nanos, heap[i-1].Nanos)
		assert.GreaterOrEqual(t, heap[i].Freed, int64(0))
	}
	last := heap[len(heap)-1]
	first := heap[0]
	assert.Greater(t, last.Value, first.Value, "allocations during the session are visible")

	_, err = hw.Stop()
	assert.Error(t, err, "stop on a stopped watcher is rejected")
}
