package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perflens/perflens/internal/profile"
)

func TestLineTimerSpans(t *testing.T) {
	lt := NewLineTimer()
	require.NoError(t, lt.Start())

	for i := 0; i < 3; i++ {
		end := lt.Span("app.Scan", 12)
		end()
	}
	lt.Span("app.Scan", 14)()

	events, err := lt.Stop()
	require.NoError(t, err)
	require.Len(t, events, 4)

	for _, ev := range events {
		assert.Equal(t, profile.KindLineTime, ev.Kind)
		assert.Equal(t, EventSpan, ev.Type)
		assert.Equal(t, "app.Scan", ev.Loc.Function)
		assert.GreaterOrEqual(t, ev.Value, int64(0))
	}
	assert.Equal(t, 12, events[0].Loc.Line)
	assert.Equal(t, 14, events[3].Loc.Line)
}

func TestLineTimerNoOpWhileStopped(t *testing.T) {
	lt := NewLineTimer()
	lt.Span("app.Scan", 12)()

	require.NoError(t, lt.Start())
	events, err := lt.Stop()
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = lt.Stop()
	assert.Error(t, err)
}
