package profile

import (
	"sort"
	"time"
)

// Stat is the reduced per-location statistic for one adapter within one
// session. Values are nanoseconds for the timing kinds and bytes for the
// allocation kind.
type Stat struct {
	Location Location `json:"location"`
	Kind     Kind     `json:"kind"`

	// Total is the cumulative measured value. For the call-timing kind
	// recursive activations are attributed to the outermost frame only, so
	// Total never double counts a recursive descent.
	Total int64 `json:"total"`
	// Self is the portion of Total spent in the location itself, excluding
	// attributed child locations. Equal to Total for leaf-style kinds.
	Self int64 `json:"self"`
	// Hits is the number of observations (calls, spans, or samples).
	Hits int64 `json:"hits"`
	// PerHit is Total divided by Hits.
	PerHit float64 `json:"per_hit"`
	// Percent is the location's self share of the adapter's total within the
	// session. Line-granularity stats are the exception: their Percent is the
	// share of the enclosing function's statement time.
	Percent float64 `json:"percent"`

	// Call-timing shape signals, used by the pattern matcher.
	Recursive      bool    `json:"recursive,omitempty"`
	MaxDepth       int     `json:"max_depth,omitempty"`
	CallPaths      int64   `json:"call_paths,omitempty"`
	TopCallerShare float64 `json:"top_caller_share,omitempty"`
	// CostCV is the coefficient of variation of per-call cost, a proxy for
	// "every call does the same amount of work".
	CostCV float64 `json:"cost_cv,omitempty"`

	// Allocation sample series (cumulative values in sample order), present
	// only on allocation-kind stats.
	Series     []int64 `json:"series,omitempty"`
	FreeSeries []int64 `json:"free_series,omitempty"`
}

// Meta carries per-session metadata attached to a report.
type Meta struct {
	SessionID string        `json:"session_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	// Adapters lists the kinds that were enabled for the session.
	Adapters []Kind `json:"adapters"`
	// Failed lists adapters that crashed or returned malformed output. Their
	// data is absent from the report; the session itself is still valid.
	Failed []Kind `json:"failed,omitempty"`
	// TargetError records a failure raised by the profiled unit of work. The
	// report still covers everything observed up to the failure point.
	TargetError string `json:"target_error,omitempty"`
	// TimedOut marks sessions whose advisory timeout elapsed before the
	// target returned.
	TimedOut bool `json:"timed_out,omitempty"`
}

// Entry is one report row: a function-granularity location with the stats
// each adapter contributed for it. A missing kind means that adapter never
// observed the location, not that it measured zero.
type Entry struct {
	Location Location       `json:"location"`
	Stats    map[Kind]*Stat `json:"stats"`
	// Lines holds the statement-timing stats for individual lines of the
	// function, ordered by line number.
	Lines []*Stat `json:"lines,omitempty"`
}

// Stat returns the function-level stat for the given kind, or nil.
func (e *Entry) Stat(k Kind) *Stat {
	return e.Stats[k]
}

// MaxSelf returns the highest self value reported for the entry by any
// adapter, the "badness" used to order report entries. Nanoseconds and bytes
// are compared as raw magnitudes: the ordering only has to be deterministic
// and surface entries that dominate some adapter's view, not rank the kinds
// against each other on a common scale - per-kind ranking goes through
// Top, which never mixes kinds.
func (e *Entry) MaxSelf() int64 {
	var max int64
	for _, s := range e.Stats {
		if s.Self > max {
			max = s.Self
		}
	}
	return max
}

// Report is the unified result of one profiling session. Entries are ordered
// by descending maximum self value so top-N hotspot queries are stable.
// A report is read-only once returned by the merger.
type Report struct {
	Meta    Meta     `json:"meta"`
	Entries []*Entry `json:"entries"`

	index map[Location]*Entry
}

// Lookup finds the entry for a location. Line-level locations fall back to
// their function-granularity identity.
func (r *Report) Lookup(loc Location) (*Entry, bool) {
	e, ok := r.index[loc.FunctionOnly()]
	return e, ok
}

// Top returns up to n entries that carry a stat of the given kind, in report
// order (descending self value).
func (r *Report) Top(kind Kind, n int) []*Entry {
	out := make([]*Entry, 0, n)
	for _, e := range r.Entries {
		if e.Stats[kind] == nil {
			continue
		}
		out = append(out, e)
		if len(out) == n {
			break
		}
	}
	return out
}

// reindex rebuilds the location index and restores the canonical entry and
// line ordering. Called by the merger and by deserialization.
func (r *Report) reindex() {
	r.index = make(map[Location]*Entry, len(r.Entries))
	for _, e := range r.Entries {
		sort.Slice(e.Lines, func(i, j int) bool {
			return e.Lines[i].Location.Line < e.Lines[j].Location.Line
		})
		r.index[e.Location] = e
	}
	sort.SliceStable(r.Entries, func(i, j int) bool {
		si, sj := r.Entries[i].MaxSelf(), r.Entries[j].MaxSelf()
		if si != sj {
			return si > sj
		}
		return r.Entries[i].Location.Function < r.Entries[j].Location.Function
	})
}
