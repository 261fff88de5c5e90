package export

import (
	"bytes"
	"testing"
	"time"

	pprof "github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perflens/perflens/internal/profile"
	"github.com/perflens/perflens/internal/testutil"
)

func timingReport(t *testing.T) *profile.Report {
	t.Helper()
	meta := profile.Meta{
		SessionID: "export-test",
		StartedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Duration:  time.Second,
		Adapters:  []profile.Kind{profile.KindCallTime, profile.KindLineTime},
	}
	stats := map[profile.Kind][]*profile.Stat{
		profile.KindCallTime: {{
			Location: profile.Location{Function: "app.Handler"},
			Kind:     profile.KindCallTime,
			Total:    5_000_000, Self: 3_000_000, Hits: 120,
			PerHit: 41666, Percent: 60,
		}},
		profile.KindLineTime: {
			{
				Location: profile.Location{Function: "app.Scan"},
				Kind:     profile.KindLineTime,
				Total:    2_000_000, Self: 2_000_000, Hits: 10,
				PerHit: 200_000, Percent: 40,
			},
			{
				Location: profile.Location{Function: "app.Scan", Line: 46},
				Kind:     profile.KindLineTime,
				Total:    1_500_000, Self: 1_500_000, Hits: 100,
				PerHit: 15_000, Percent: 75,
			},
		},
	}
	r, err := profile.Merge(meta, stats, testutil.NewTestLogger(t))
	require.NoError(t, err)
	return r
}

func TestPprofExport(t *testing.T) {
	r := timingReport(t)

	p, err := Pprof(r)
	require.NoError(t, err)
	require.NoError(t, p.CheckValid())

	assert.Equal(t, r.Meta.StartedAt.UnixNano(), p.TimeNanos)
	assert.Equal(t, time.Second.Nanoseconds(), p.DurationNanos)
	require.Len(t, p.SampleType, 2)
	assert.Equal(t, "calls", p.SampleType[0].Type)
	assert.Equal(t, "self_time", p.SampleType[1].Type)

	// One flat sample per function, plus one per instrumented line.
	require.Len(t, p.Sample, 3)

	byName := make(map[string][]int64)
	for _, s := range p.Sample {
		line := s.Location[0].Line[0]
		key := line.Function.Name
		if line.Line > 0 {
			key = profile.Location{Function: key, Line: int(line.Line)}.String()
		}
		byName[key] = s.Value
	}
	assert.Equal(t, []int64{120, 3_000_000}, byName["app.Handler"])
	assert.Equal(t, []int64{10, 2_000_000}, byName["app.Scan"])
	assert.Equal(t, []int64{100, 1_500_000}, byName["app.Scan:46"])

	// Functions are deduplicated: app.Scan appears once.
	assert.Len(t, p.Function, 2)
}

func TestPprofExportNoTimingData(t *testing.T) {
	meta := profile.Meta{
		SessionID: "alloc-only",
		StartedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Adapters:  []profile.Kind{profile.KindAlloc},
	}
	r, err := profile.Merge(meta, map[profile.Kind][]*profile.Stat{
		profile.KindAlloc: {{
			Location: profile.Location{Function: "runtime.heap"},
			Kind:     profile.KindAlloc,
			Total:    1 << 20, Self: 1 << 20, Hits: 3, PerHit: 349525, Percent: 100,
			Series: []int64{0, 1 << 19, 1 << 20},
		}},
	}, testutil.NewTestLogger(t))
	require.NoError(t, err)

	_, err = Pprof(r)
	assert.ErrorIs(t, err, ErrNoTimingData)
}

func TestWritePprofRoundTrip(t *testing.T) {
	r := timingReport(t)

	var buf bytes.Buffer
	require.NoError(t, WritePprof(&buf, r))

	parsed, err := pprof.Parse(&buf)
	require.NoError(t, err)
	require.NoError(t, parsed.CheckValid())
	assert.Len(t, parsed.Sample, 3)
}
