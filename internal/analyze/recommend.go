package analyze

import (
	"fmt"
	"sort"

	"github.com/perflens/perflens/internal/profile"
)

// Severity ranks how urgently a recommendation should be acted on.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Impact is the qualitative payoff tier of applying a recommendation.
type Impact int

const (
	ImpactLow Impact = iota
	ImpactModerate
	ImpactHigh
)

func (i Impact) String() string {
	switch i {
	case ImpactHigh:
		return "high"
	case ImpactModerate:
		return "moderate"
	default:
		return "low"
	}
}

// Recommendation is one ranked, human-actionable suggestion derived from one
// or more findings.
type Recommendation struct {
	Title       string
	Description string
	Targets     []profile.Location
	Severity    Severity
	Impact      Impact
}

// Synthesize converts findings into deduplicated, ranked recommendations.
// Pure transform: same findings in, same recommendations out. Multiple
// findings with the same pattern and primary location collapse into one
// recommendation (the strongest wins).
func Synthesize(findings []Finding) []Recommendation {
	type key struct {
		pattern PatternKind
		loc     profile.Location
	}
	type ranked struct {
		rec   Recommendation
		prio  int
		order int
	}

	seen := make(map[key]int)
	var out []ranked
	for i, f := range findings {
		k := key{pattern: f.Pattern, loc: f.Primary()}
		rec := render(f)
		if idx, dup := seen[k]; dup {
			if rec.Severity > out[idx].rec.Severity ||
				(rec.Severity == out[idx].rec.Severity && rec.Impact > out[idx].rec.Impact) {
				out[idx].rec = rec
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, ranked{rec: rec, prio: patternPriority[f.Pattern], order: i})
	}

	// Stable ordering: severity, then impact, then pattern priority, then
	// first-seen order, so equally ranked recommendations keep report order.
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.rec.Severity != b.rec.Severity {
			return a.rec.Severity > b.rec.Severity
		}
		if a.rec.Impact != b.rec.Impact {
			return a.rec.Impact > b.rec.Impact
		}
		if a.prio != b.prio {
			return a.prio < b.prio
		}
		return a.order < b.order
	})

	recs := make([]Recommendation, len(out))
	for i, r := range out {
		recs[i] = r.rec
	}
	return recs
}

// render instantiates the canned template for a finding's pattern,
// parameterized by its evidence.
func render(f Finding) Recommendation {
	loc := f.Primary()
	ev := f.Evidence

	var title, desc string
	share := ev["self_percent"]

	switch f.Pattern {
	case PatternExponentialRecursion:
		title = fmt.Sprintf("Memoize recursive %s", loc.Function)
		desc = fmt.Sprintf(
			"%s recursed into itself %.0f times across only %.0f distinct call paths "+
				"(fan-out ratio %.0f, max depth %.0f), which is the signature of exponential "+
				"recomputation. Add memoization for intermediate results, or rewrite "+
				"iteratively with a lookup table.",
			loc.Function, ev["hit_count"], ev["call_paths"], ev["fanout_ratio"], ev["max_depth"])
	case PatternUnboundedGrowth:
		title = "Bound memory growth"
		desc = fmt.Sprintf(
			"Allocations grew monotonically by %.1f MB across %.0f samples while only "+
				"%.1f MB was reclaimed. Look for collections that accumulate per iteration "+
				"without eviction; process in batches or release references as you go.",
			ev["growth_bytes"]/(1<<20), ev["samples"], ev["freed_bytes"]/(1<<20))
		share = growthShare(ev["growth_bytes"])
	case PatternRedundantCalls:
		title = fmt.Sprintf("Batch repeated calls to %s", loc.Function)
		desc = fmt.Sprintf(
			"%s was invoked %.0f times, %.0f%% of them from a single call site, each "+
				"costing about %.0f ns. Repeated identical calls in a tight loop usually "+
				"batch into one bulk operation or a cached result.",
			loc.Function, ev["hit_count"], ev["caller_share"]*100, ev["per_hit_ns"])
	case PatternLineDominance:
		title = fmt.Sprintf("Optimize dominant statement %s", loc)
		desc = fmt.Sprintf(
			"One statement accounts for %.1f%% of the time spent in its enclosing "+
				"function (%.0f hits). Optimizing this single line moves the whole "+
				"function; consider a cheaper operation or hoisting it out of the loop.",
			ev["line_percent"], ev["hit_count"])
	case PatternQuadraticSuspect:
		title = fmt.Sprintf("Reduce nested-loop work at %s", loc)
		desc = fmt.Sprintf(
			"This statement executed %.0f times against %.0f outer invocations "+
				"(factor %.0f), a multiplicative blow-up consistent with O(n²) or worse. "+
				"An index, set lookup, or single-pass restructuring usually removes the "+
				"inner scan.",
			ev["line_hits"], ev["outer_hits"], ev["factor"])
		share = ev["line_percent"]
	}

	return Recommendation{
		Title:       title,
		Description: desc,
		Targets:     f.Locations,
		Severity:    severityFor(f.Confidence, share),
		Impact:      impactFor(share),
	}
}

// severityFor applies the fixed grading rule: critical needs high confidence
// and a dominant time share; anything at least medium-confidence warns.
func severityFor(c Confidence, sharePercent float64) Severity {
	if c == ConfidenceHigh && sharePercent > 30 {
		return SeverityCritical
	}
	if c >= ConfidenceMedium {
		return SeverityWarning
	}
	return SeverityInfo
}

func impactFor(sharePercent float64) Impact {
	switch {
	case sharePercent > 30:
		return ImpactHigh
	case sharePercent > 10:
		return ImpactModerate
	default:
		return ImpactLow
	}
}

// growthShare maps allocation growth onto the 0-100 scale the severity and
// impact rules grade time shares on: 64 MB of unreclaimed growth is treated
// as dominating a session the way a 100% time share would.
func growthShare(growthBytes float64) float64 {
	share := growthBytes / float64(64<<20) * 100
	if share > 100 {
		share = 100
	}
	return share
}
