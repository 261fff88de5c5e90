package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perflens/perflens/internal/analyze"
	"github.com/perflens/perflens/internal/profile"
	"github.com/perflens/perflens/internal/testutil"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.duckdb"), testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testReport(t *testing.T, sessionID string) *profile.Report {
	t.Helper()
	meta := profile.Meta{
		SessionID:   sessionID,
		StartedAt:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Duration:    125 * time.Millisecond,
		Adapters:    profile.Kinds(),
		Failed:      []profile.Kind{profile.KindLineTime},
		TargetError: "flaky dependency",
	}
	stats := map[profile.Kind][]*profile.Stat{
		profile.KindCallTime: {{
			Location: profile.Location{Function: "workload.Fibonacci"},
			Kind:     profile.KindCallTime,
			Total:    9_000_000, Self: 9_000_000, Hits: 242785,
			PerHit: 37.1, Percent: 96.0,
			Recursive: true, MaxDepth: 25, CallPaths: 25,
		}},
		profile.KindAlloc: {{
			Location: profile.Location{Function: "runtime.heap"},
			Kind:     profile.KindAlloc,
			Total:    20 << 20, Self: 20 << 20, Hits: 4,
			PerHit: float64(5 << 20), Percent: 100,
			Series:     []int64{1 << 20, 8 << 20, 14 << 20, 21 << 20},
			FreeSeries: []int64{0, 1024, 2048, 4096},
		}},
	}
	r, err := profile.Merge(meta, stats, testutil.NewTestLogger(t))
	require.NoError(t, err)
	return r
}

func testRecs() []analyze.Recommendation {
	return []analyze.Recommendation{
		{
			Title:       "Memoize recursive workload.Fibonacci",
			Description: "Add memoization for intermediate results.",
			Targets:     []profile.Location{{Function: "workload.Fibonacci"}},
			Severity:    analyze.SeverityCritical,
			Impact:      analyze.ImpactHigh,
		},
		{
			Title:       "Bound memory growth",
			Description: "Release references as you go.",
			Targets:     []profile.Location{{Function: "runtime.heap"}},
			Severity:    analyze.SeverityWarning,
			Impact:      analyze.ImpactModerate,
		},
	}
}

func TestSaveAndLoadSession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	original := testReport(t, "session-1")

	require.NoError(t, s.SaveSession(ctx, original, testRecs()))

	loaded, err := s.LoadReport(ctx, "session-1")
	require.NoError(t, err)

	wantJSON, err := profile.Encode(original)
	require.NoError(t, err)
	gotJSON, err := profile.Encode(loaded)
	require.NoError(t, err)
	assert.Equal(t, string(wantJSON), string(gotJSON), "persistence round trip is exact")

	recs, err := s.LoadRecommendations(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, testRecs(), recs, "recommendation order survives persistence")
}

func TestLoadMissingSession(t *testing.T) {
	s := testStore(t)
	_, err := s.LoadReport(context.Background(), "no-such-session")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSaveSessionReplaces(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	report := testReport(t, "session-1")

	require.NoError(t, s.SaveSession(ctx, report, testRecs()))
	require.NoError(t, s.SaveSession(ctx, report, testRecs()[:1]))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].Recommendations)
}

func TestListSessionsOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	older := testReport(t, "session-old")
	older.Meta.StartedAt = time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC)
	newer := testReport(t, "session-new")

	require.NoError(t, s.SaveSession(ctx, older, nil))
	require.NoError(t, s.SaveSession(ctx, newer, testRecs()))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, "session-new", sessions[0].SessionID)
	assert.Equal(t, "session-old", sessions[1].SessionID)

	info := sessions[0]
	assert.Equal(t, profile.Kinds(), info.Adapters)
	assert.Equal(t, []profile.Kind{profile.KindLineTime}, info.Failed)
	assert.Equal(t, "flaky dependency", info.TargetError)
	assert.Equal(t, 125*time.Millisecond, info.Duration)
	assert.Equal(t, 2, info.Entries)
	assert.Equal(t, 2, info.Recommendations)
}
