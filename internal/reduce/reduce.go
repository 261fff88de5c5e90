// Package reduce turns an adapter's raw event stream into the normalized
// per-location statistics that feed the report merger. Reduction is a pure
// function of the stream: it holds no state across sessions and each
// adapter's stream reduces independently.
package reduce

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/perflens/perflens/internal/adapter"
	"github.com/perflens/perflens/internal/profile"
)

// Events reduces one adapter's stream for one session. Events whose kind does
// not match are skipped; locations that would surface with a zero hit count
// are dropped with a diagnostic instead of producing a divide by zero.
func Events(kind profile.Kind, events []adapter.RawEvent, logger zerolog.Logger) []*profile.Stat {
	switch kind {
	case profile.KindCallTime:
		return reduceCalls(events, logger)
	case profile.KindLineTime:
		return reduceSpans(events, logger)
	case profile.KindAlloc:
		return reduceSamples(events, logger)
	default:
		logger.Warn().Str("kind", string(kind)).Msg("Unknown adapter kind, nothing to reduce")
		return nil
	}
}

// callAgg accumulates per-location call-timing measurements.
type callAgg struct {
	loc profile.Location

	hits       int64
	selfNanos  int64
	outerTotal int64 // cumulative time of outermost activations only
	sumCost    float64
	sumCostSq  float64
	maxDepth   int
	recursive  bool
	paths      map[uint64]struct{}
	callers    map[string]int64
}

// frame is one live activation on a reconstructed call stack.
type frame struct {
	fn         string
	enterNanos int64
	childNanos int64
	depth      int // recursion depth of fn at entry; 1 = outermost
}

// reduceCalls rebuilds per-goroutine call stacks from entry/exit pairs, the
// same way the colony's call tree builder pairs uprobe events, and folds them
// into per-location totals.
//
// Recursive cycles are resolved by attributing cumulative time to the
// outermost frame at each location: a depth-30 binary recursion therefore
// reports at most the wall time of its outermost call, never a naive sum of
// every nested activation.
func reduceCalls(events []adapter.RawEvent, logger zerolog.Logger) []*profile.Stat {
	byTrack := make(map[int64][]adapter.RawEvent)
	var tracks []int64
	for _, ev := range events {
		if ev.Kind != profile.KindCallTime {
			continue
		}
		if _, ok := byTrack[ev.Track]; !ok {
			tracks = append(tracks, ev.Track)
		}
		byTrack[ev.Track] = append(byTrack[ev.Track], ev)
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i] < tracks[j] })

	aggs := make(map[profile.Location]*callAgg)
	order := make([]profile.Location, 0)
	aggFor := func(loc profile.Location) *callAgg {
		if a, ok := aggs[loc]; ok {
			return a
		}
		a := &callAgg{
			loc:     loc,
			paths:   make(map[uint64]struct{}),
			callers: make(map[string]int64),
		}
		aggs[loc] = a
		order = append(order, loc)
		return a
	}

	for _, track := range tracks {
		trackEvents := byTrack[track]
		sort.SliceStable(trackEvents, func(i, j int) bool {
			return trackEvents[i].Nanos < trackEvents[j].Nanos
		})

		var stack []*frame
		depthOf := make(map[string]int)
		var lastNanos int64

		closeFrame := func(f *frame, exitNanos int64) {
			total := exitNanos - f.enterNanos
			if total < 0 {
				total = 0
			}
			self := total - f.childNanos
			if self < 0 {
				self = 0
			}
			a := aggFor(profile.Location{Function: f.fn})
			a.selfNanos += self
			if f.depth == 1 {
				a.outerTotal += total
			}
			a.sumCost += float64(total)
			a.sumCostSq += float64(total) * float64(total)
			depthOf[f.fn]--
			if len(stack) > 0 {
				stack[len(stack)-1].childNanos += total
			}
		}

		for _, ev := range trackEvents {
			lastNanos = ev.Nanos
			switch ev.Type {
			case adapter.EventEnter:
				depthOf[ev.Loc.Function]++
				depth := depthOf[ev.Loc.Function]
				a := aggFor(ev.Loc.FunctionOnly())
				a.hits++
				a.callers[ev.Caller]++
				a.paths[ev.PathHash] = struct{}{}
				if depth > a.maxDepth {
					a.maxDepth = depth
				}
				if depth > 1 {
					a.recursive = true
				}
				stack = append(stack, &frame{fn: ev.Loc.Function, enterNanos: ev.Nanos, depth: depth})
			case adapter.EventExit:
				if len(stack) == 0 || stack[len(stack)-1].fn != ev.Loc.Function {
					// Unmatched exit; adapter output is malformed here.
					logger.Debug().
						Str("location", ev.Loc.String()).
						Int64("track", track).
						Msg("Skipping unmatched exit event")
					continue
				}
				f := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				closeFrame(f, ev.Nanos)
			}
		}

		// Frames still open when the stream ends belong to a target that
		// raised mid-execution. Close them at the last observed timestamp so
		// the partial profile still accounts for them.
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			closeFrame(f, lastNanos)
		}
	}

	var totalSelf int64
	for _, a := range aggs {
		totalSelf += a.selfNanos
	}

	stats := make([]*profile.Stat, 0, len(order))
	for _, loc := range order {
		a := aggs[loc]
		if a.hits == 0 {
			logger.Warn().Str("location", loc.String()).Msg("Dropping location with zero hit count")
			continue
		}
		var topShare float64
		for _, n := range a.callers {
			if share := float64(n) / float64(a.hits); share > topShare {
				topShare = share
			}
		}
		stats = append(stats, &profile.Stat{
			Location:       loc,
			Kind:           profile.KindCallTime,
			Total:          a.outerTotal,
			Self:           a.selfNanos,
			Hits:           a.hits,
			PerHit:         float64(a.outerTotal) / float64(a.hits),
			Percent:        percentOf(a.selfNanos, totalSelf),
			Recursive:      a.recursive,
			MaxDepth:       a.maxDepth,
			CallPaths:      int64(len(a.paths)),
			TopCallerShare: topShare,
			CostCV:         variationCoefficient(a.sumCost, a.sumCostSq, a.hits),
		})
	}
	return stats
}

// reduceSpans folds statement spans into per-line stats plus one
// function-level rollup per instrumented function. Line stats report their
// share of the enclosing function's statement time; rollups report their
// share of the adapter total, so each view sums to at most 100%.
func reduceSpans(events []adapter.RawEvent, logger zerolog.Logger) []*profile.Stat {
	type lineAgg struct {
		loc   profile.Location
		total int64
		hits  int64
	}
	lines := make(map[profile.Location]*lineAgg)
	var lineOrder []profile.Location
	for _, ev := range events {
		if ev.Kind != profile.KindLineTime || ev.Type != adapter.EventSpan {
			continue
		}
		a, ok := lines[ev.Loc]
		if !ok {
			a = &lineAgg{loc: ev.Loc}
			lines[ev.Loc] = a
			lineOrder = append(lineOrder, ev.Loc)
		}
		a.total += ev.Value
		a.hits++
	}

	funcTotal := make(map[string]int64)
	// A statement runs at most once per invocation, so the least-hit line is
	// the closest available proxy for the function's invocation count.
	funcHits := make(map[string]int64)
	var funcOrder []string
	var grandTotal int64
	for _, loc := range lineOrder {
		a := lines[loc]
		if _, ok := funcTotal[loc.Function]; !ok {
			funcOrder = append(funcOrder, loc.Function)
		}
		funcTotal[loc.Function] += a.total
		if h, ok := funcHits[loc.Function]; !ok || a.hits < h {
			funcHits[loc.Function] = a.hits
		}
		grandTotal += a.total
	}

	stats := make([]*profile.Stat, 0, len(lineOrder)+len(funcOrder))
	for _, fn := range funcOrder {
		total := funcTotal[fn]
		hits := funcHits[fn]
		if hits == 0 {
			logger.Warn().Str("location", fn).Msg("Dropping function with zero hit count")
			continue
		}
		stats = append(stats, &profile.Stat{
			Location: profile.Location{Function: fn},
			Kind:     profile.KindLineTime,
			Total:    total,
			Self:     total,
			Hits:     hits,
			PerHit:   float64(total) / float64(hits),
			Percent:  percentOf(total, grandTotal),
		})
	}
	for _, loc := range lineOrder {
		a := lines[loc]
		if a.hits == 0 {
			logger.Warn().Str("location", loc.String()).Msg("Dropping line with zero hit count")
			continue
		}
		stats = append(stats, &profile.Stat{
			Location: a.loc,
			Kind:     profile.KindLineTime,
			Total:    a.total,
			Self:     a.total,
			Hits:     a.hits,
			PerHit:   float64(a.total) / float64(a.hits),
			Percent:  percentOf(a.total, funcTotal[loc.Function]),
		})
	}
	return stats
}

// reduceSamples folds periodic allocation observations into one stat per
// pseudo-location, preserving the full sample series for growth analysis.
func reduceSamples(events []adapter.RawEvent, logger zerolog.Logger) []*profile.Stat {
	type sampleAgg struct {
		loc    profile.Location
		series []int64
		freed  []int64
	}
	aggs := make(map[profile.Location]*sampleAgg)
	var order []profile.Location

	sorted := make([]adapter.RawEvent, 0, len(events))
	for _, ev := range events {
		if ev.Kind != profile.KindAlloc || ev.Type != adapter.EventSample {
			continue
		}
		sorted = append(sorted, ev)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Nanos < sorted[j].Nanos })

	for _, ev := range sorted {
		a, ok := aggs[ev.Loc]
		if !ok {
			a = &sampleAgg{loc: ev.Loc}
			aggs[ev.Loc] = a
			order = append(order, ev.Loc)
		}
		a.series = append(a.series, ev.Value)
		a.freed = append(a.freed, ev.Freed)
	}

	var totalGrowth int64
	growth := func(series []int64) int64 {
		if len(series) < 2 {
			return 0
		}
		return series[len(series)-1] - series[0]
	}
	for _, a := range aggs {
		if g := growth(a.series); g > 0 {
			totalGrowth += g
		}
	}

	stats := make([]*profile.Stat, 0, len(order))
	for _, loc := range order {
		a := aggs[loc]
		n := int64(len(a.series))
		if n == 0 {
			logger.Warn().Str("location", loc.String()).Msg("Dropping sample location with zero hit count")
			continue
		}
		g := growth(a.series)
		stats = append(stats, &profile.Stat{
			Location:   loc,
			Kind:       profile.KindAlloc,
			Total:      g,
			Self:       g,
			Hits:       n,
			PerHit:     float64(g) / float64(n),
			Percent:    percentOf(max64(g, 0), totalGrowth),
			Series:     a.series,
			FreeSeries: a.freed,
		})
	}
	return stats
}

func percentOf(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// variationCoefficient computes stddev/mean of per-call cost from running
// sums; near zero means every call cost about the same.
func variationCoefficient(sum, sumSq float64, n int64) float64 {
	if n == 0 || sum <= 0 {
		return 0
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance) / mean
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
