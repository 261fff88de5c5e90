package analyze

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/perflens/perflens/internal/profile"
)

// Thresholds holds the documented trigger levels for every pattern rule.
// They are deliberately explicit so false-positive behavior is testable
// instead of buried in heuristics.
type Thresholds struct {
	// RecursionFanout is the minimum hits-per-distinct-call-path ratio before
	// a self-recursive location counts as exponential.
	RecursionFanout float64 `yaml:"recursion_fanout"`
	// GrowthBytes is the minimum unreclaimed allocation growth across the
	// session before growth counts as unbounded.
	GrowthBytes int64 `yaml:"growth_bytes"`
	// GrowthSamples is the minimum number of monotonically increasing
	// allocation samples required as evidence.
	GrowthSamples int `yaml:"growth_samples"`
	// RedundantCalls is the minimum invocation count of one (function,
	// call-site) pair before batching is suggested.
	RedundantCalls int64 `yaml:"redundant_calls"`
	// TightLoopShare is the minimum fraction of calls that must come from a
	// single call site to treat the calls as a loop body.
	TightLoopShare float64 `yaml:"tight_loop_share"`
	// CostSpread is the maximum per-call cost coefficient of variation still
	// considered "similar per-hit cost".
	CostSpread float64 `yaml:"cost_spread"`
	// LineDominancePct is the percentage of a function's statement time one
	// line must exceed to dominate it.
	LineDominancePct float64 `yaml:"line_dominance_pct"`
	// QuadraticFactor scales the hits(outer)^2 bound for the nested-loop
	// rule; 1.0 means a strict multiplicative relationship.
	QuadraticFactor float64 `yaml:"quadratic_factor"`
}

// DefaultThresholds returns the calibrated defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RecursionFanout:  100,
		GrowthBytes:      1 << 20, // 1 MiB
		GrowthSamples:    3,
		RedundantCalls:   50,
		TightLoopShare:   0.9,
		CostSpread:       0.5,
		LineDominancePct: 40,
		QuadraticFactor:  1.0,
	}
}

// Validate rejects threshold values under which a rule could never fire or
// would fire on everything.
func (t Thresholds) Validate() error {
	if t.RecursionFanout <= 0 {
		return fmt.Errorf("recursion_fanout must be positive, got %g", t.RecursionFanout)
	}
	if t.GrowthBytes <= 0 {
		return fmt.Errorf("growth_bytes must be positive, got %d", t.GrowthBytes)
	}
	if t.GrowthSamples < 2 {
		return fmt.Errorf("growth_samples must be at least 2, got %d", t.GrowthSamples)
	}
	if t.RedundantCalls <= 0 {
		return fmt.Errorf("redundant_calls must be positive, got %d", t.RedundantCalls)
	}
	if t.TightLoopShare <= 0 || t.TightLoopShare > 1 {
		return fmt.Errorf("tight_loop_share must be in (0, 1], got %g", t.TightLoopShare)
	}
	if t.CostSpread < 0 {
		return fmt.Errorf("cost_spread must not be negative, got %g", t.CostSpread)
	}
	if t.LineDominancePct <= 0 || t.LineDominancePct >= 100 {
		return fmt.Errorf("line_dominance_pct must be in (0, 100), got %g", t.LineDominancePct)
	}
	if t.QuadraticFactor <= 0 {
		return fmt.Errorf("quadratic_factor must be positive, got %g", t.QuadraticFactor)
	}
	return nil
}

// Matcher evaluates the pattern catalogue against a report. Stateless and
// deterministic: the same report always produces the same findings in the
// same order.
type Matcher struct {
	th     Thresholds
	logger zerolog.Logger
}

// NewMatcher creates a matcher with the given thresholds.
func NewMatcher(th Thresholds, logger zerolog.Logger) *Matcher {
	return &Matcher{th: th, logger: logger.With().Str("component", "matcher").Logger()}
}

// Match scans the report with every rule independently; several patterns may
// fire on the same location. Findings come out grouped by pattern priority,
// then in report (descending badness) order.
func (m *Matcher) Match(r *profile.Report) []Finding {
	var findings []Finding
	findings = append(findings, m.matchRecursion(r)...)
	findings = append(findings, m.matchGrowth(r)...)
	findings = append(findings, m.matchRedundantCalls(r)...)
	findings = append(findings, m.matchLineDominance(r)...)
	findings = append(findings, m.matchQuadratic(r)...)

	m.logger.Debug().
		Str("session_id", r.Meta.SessionID).
		Int("findings", len(findings)).
		Msg("Pattern scan complete")
	return findings
}

// matchRecursion flags locations that recurse into themselves while their
// hit count dwarfs the number of distinct call paths reaching them: the
// signature of exponential fan-out, where the same frames are recomputed over
// and over instead of growing new call paths.
func (m *Matcher) matchRecursion(r *profile.Report) []Finding {
	var out []Finding
	for _, e := range r.Entries {
		s := e.Stat(profile.KindCallTime)
		if s == nil || !s.Recursive {
			continue
		}
		paths := s.CallPaths
		if paths < 1 {
			paths = 1
		}
		ratio := float64(s.Hits) / float64(paths)
		if ratio < m.th.RecursionFanout {
			continue
		}
		out = append(out, Finding{
			Pattern:   PatternExponentialRecursion,
			Locations: []profile.Location{e.Location},
			Evidence: map[string]float64{
				"hit_count":    float64(s.Hits),
				"call_paths":   float64(paths),
				"fanout_ratio": ratio,
				"max_depth":    float64(s.MaxDepth),
				"self_percent": s.Percent,
			},
			Confidence: confidenceFor(ratio, m.th.RecursionFanout),
		})
	}
	return out
}

// matchGrowth flags allocation series that only ever go up while frees fail
// to keep pace: allocations accumulate with no corresponding deallocation.
func (m *Matcher) matchGrowth(r *profile.Report) []Finding {
	var out []Finding
	for _, e := range r.Entries {
		s := e.Stat(profile.KindAlloc)
		if s == nil || len(s.Series) < m.th.GrowthSamples {
			continue
		}
		if !monotonic(s.Series) {
			continue
		}
		growth := s.Series[len(s.Series)-1] - s.Series[0]
		if growth < m.th.GrowthBytes {
			continue
		}
		var freedGrowth int64
		if n := len(s.FreeSeries); n >= 2 {
			freedGrowth = s.FreeSeries[n-1] - s.FreeSeries[0]
		}
		// Reclaimed memory keeping pace with allocation is churn, not growth.
		if freedGrowth*2 >= growth {
			continue
		}
		out = append(out, Finding{
			Pattern:   PatternUnboundedGrowth,
			Locations: []profile.Location{e.Location},
			Evidence: map[string]float64{
				"samples":      float64(len(s.Series)),
				"first_bytes":  float64(s.Series[0]),
				"last_bytes":   float64(s.Series[len(s.Series)-1]),
				"growth_bytes": float64(growth),
				"freed_bytes":  float64(freedGrowth),
			},
			Confidence: confidenceFor(float64(growth), float64(m.th.GrowthBytes)),
		})
	}
	return out
}

// matchRedundantCalls flags functions invoked many times from one dominant
// call site with near-identical per-call cost: the shape of a tight loop
// issuing the same operation row by row, the classic batching candidate.
func (m *Matcher) matchRedundantCalls(r *profile.Report) []Finding {
	var out []Finding
	for _, e := range r.Entries {
		s := e.Stat(profile.KindCallTime)
		if s == nil || s.Recursive {
			continue
		}
		if s.Hits < m.th.RedundantCalls {
			continue
		}
		if s.TopCallerShare < m.th.TightLoopShare {
			continue
		}
		if s.CostCV > m.th.CostSpread {
			continue
		}
		out = append(out, Finding{
			Pattern:   PatternRedundantCalls,
			Locations: []profile.Location{e.Location},
			Evidence: map[string]float64{
				"hit_count":    float64(s.Hits),
				"per_hit_ns":   s.PerHit,
				"caller_share": s.TopCallerShare,
				"cost_cv":      s.CostCV,
				"self_percent": s.Percent,
			},
			Confidence: confidenceFor(float64(s.Hits), float64(m.th.RedundantCalls)),
		})
	}
	return out
}

// matchLineDominance flags single statements that eat an outsized share of
// their enclosing function's statement time.
func (m *Matcher) matchLineDominance(r *profile.Report) []Finding {
	var out []Finding
	for _, e := range r.Entries {
		fnStat := e.Stat(profile.KindLineTime)
		for _, line := range e.Lines {
			if line.Percent <= m.th.LineDominancePct {
				continue
			}
			var fnPercent float64
			if fnStat != nil {
				fnPercent = fnStat.Percent
			}
			out = append(out, Finding{
				Pattern:   PatternLineDominance,
				Locations: []profile.Location{line.Location, e.Location},
				Evidence: map[string]float64{
					"line_percent": line.Percent,
					"line_ns":      float64(line.Total),
					"hit_count":    float64(line.Hits),
					"self_percent": fnPercent,
				},
				Confidence: confidenceFor(line.Percent, m.th.LineDominancePct),
			})
		}
	}
	return out
}

// matchQuadratic flags statements whose hit count scales multiplicatively
// with the outer-loop iteration count of their enclosing function: an inner
// loop doing O(n^2)-or-worse work relative to the outer iteration.
func (m *Matcher) matchQuadratic(r *profile.Report) []Finding {
	var out []Finding
	for _, e := range r.Entries {
		invocations := outerIterations(e)
		if invocations < 2 {
			continue
		}
		bound := float64(invocations) * float64(invocations) * m.th.QuadraticFactor
		for _, line := range e.Lines {
			if float64(line.Hits) < bound {
				continue
			}
			out = append(out, Finding{
				Pattern:   PatternQuadraticSuspect,
				Locations: []profile.Location{line.Location, e.Location},
				Evidence: map[string]float64{
					"line_hits":    float64(line.Hits),
					"outer_hits":   float64(invocations),
					"factor":       float64(line.Hits) / float64(invocations),
					"line_percent": line.Percent,
				},
				Confidence: confidenceFor(float64(line.Hits), bound),
			})
		}
	}
	return out
}

// outerIterations estimates the outer-loop iteration count of a function from
// its statement evidence: the rollup's least-hit-line proxy, or the least-hit
// line directly when no rollup survived the merge. The call timer's invocation
// count is deliberately ignored here - a function called once that loops n
// times still has an outer count of n, and the line evidence is what carries
// it. Which other adapters ran must not change what the statement evidence
// says.
func outerIterations(e *profile.Entry) int64 {
	if s := e.Stat(profile.KindLineTime); s != nil {
		return s.Hits
	}
	var least int64
	for _, line := range e.Lines {
		if least == 0 || line.Hits < least {
			least = line.Hits
		}
	}
	return least
}

func monotonic(series []int64) bool {
	for i := 1; i < len(series); i++ {
		if series[i] < series[i-1] {
			return false
		}
	}
	return true
}
