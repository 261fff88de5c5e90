package profile

import (
	"encoding/json"
	"fmt"
	"time"
)

// The wire format is a flat record list plus session metadata, so consumers
// (dashboards, persistence) never need to understand the entry nesting.
// Records appear in report order: for each entry, its function-level stats in
// canonical kind order, then its line-level stats. Decoding rebuilds the same
// entry order, which keeps serialize/deserialize an exact round trip.

type reportJSON struct {
	Meta    metaJSON     `json:"meta"`
	Records []recordJSON `json:"records"`
}

type metaJSON struct {
	SessionID  string   `json:"session_id"`
	StartedAt  string   `json:"started_at"`
	DurationNs int64    `json:"duration_ns"`
	Adapters   []Kind   `json:"adapters_enabled"`
	Failed     []Kind   `json:"adapters_failed,omitempty"`
	Error      string   `json:"error,omitempty"`
	TimedOut   bool     `json:"timed_out,omitempty"`
}

type recordJSON struct {
	Function       string  `json:"qualified_name"`
	Line           int     `json:"line,omitempty"`
	Kind           Kind    `json:"adapter_kind"`
	Total          int64   `json:"total_value"`
	Self           int64   `json:"self_value"`
	Hits           int64   `json:"hit_count"`
	PerHit         float64 `json:"per_hit_value"`
	Percent        float64 `json:"percent_of_total"`
	Recursive      bool    `json:"recursive,omitempty"`
	MaxDepth       int     `json:"max_depth,omitempty"`
	CallPaths      int64   `json:"call_paths,omitempty"`
	TopCallerShare float64 `json:"top_caller_share,omitempty"`
	CostCV         float64 `json:"cost_cv,omitempty"`
	Series         []int64 `json:"series,omitempty"`
	FreeSeries     []int64 `json:"free_series,omitempty"`
}

func toRecord(s *Stat) recordJSON {
	return recordJSON{
		Function:       s.Location.Function,
		Line:           s.Location.Line,
		Kind:           s.Kind,
		Total:          s.Total,
		Self:           s.Self,
		Hits:           s.Hits,
		PerHit:         s.PerHit,
		Percent:        s.Percent,
		Recursive:      s.Recursive,
		MaxDepth:       s.MaxDepth,
		CallPaths:      s.CallPaths,
		TopCallerShare: s.TopCallerShare,
		CostCV:         s.CostCV,
		Series:         s.Series,
		FreeSeries:     s.FreeSeries,
	}
}

func (rec recordJSON) toStat() *Stat {
	return &Stat{
		Location:       Location{Function: rec.Function, Line: rec.Line},
		Kind:           rec.Kind,
		Total:          rec.Total,
		Self:           rec.Self,
		Hits:           rec.Hits,
		PerHit:         rec.PerHit,
		Percent:        rec.Percent,
		Recursive:      rec.Recursive,
		MaxDepth:       rec.MaxDepth,
		CallPaths:      rec.CallPaths,
		TopCallerShare: rec.TopCallerShare,
		CostCV:         rec.CostCV,
		Series:         rec.Series,
		FreeSeries:     rec.FreeSeries,
	}
}

// Encode serializes a report to its flat-record JSON form.
func Encode(r *Report) ([]byte, error) {
	out := reportJSON{
		Meta: metaJSON{
			SessionID:  r.Meta.SessionID,
			StartedAt:  r.Meta.StartedAt.UTC().Format(time.RFC3339Nano),
			DurationNs: r.Meta.Duration.Nanoseconds(),
			Adapters:   r.Meta.Adapters,
			Failed:     r.Meta.Failed,
			Error:      r.Meta.TargetError,
			TimedOut:   r.Meta.TimedOut,
		},
	}
	for _, e := range r.Entries {
		for _, kind := range Kinds() {
			if s := e.Stats[kind]; s != nil {
				out.Records = append(out.Records, toRecord(s))
			}
		}
		for _, s := range e.Lines {
			out.Records = append(out.Records, toRecord(s))
		}
	}
	return json.MarshalIndent(out, "", "  ")
}

// Decode reconstructs a report from its flat-record JSON form. The result is
// equal to the encoded report: same location identity, stat values, and entry
// ordering.
func Decode(data []byte) (*Report, error) {
	var in reportJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	startedAt, err := time.Parse(time.RFC3339Nano, in.Meta.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("decode report start time: %w", err)
	}

	report := &Report{
		Meta: Meta{
			SessionID:   in.Meta.SessionID,
			StartedAt:   startedAt,
			Duration:    time.Duration(in.Meta.DurationNs),
			Adapters:    in.Meta.Adapters,
			Failed:      in.Meta.Failed,
			TargetError: in.Meta.Error,
			TimedOut:    in.Meta.TimedOut,
		},
	}

	byFunc := make(map[Location]*Entry)
	for _, rec := range in.Records {
		if !rec.Kind.Valid() {
			return nil, fmt.Errorf("decode report: unknown adapter kind %q", rec.Kind)
		}
		s := rec.toStat()
		key := s.Location.FunctionOnly()
		e, ok := byFunc[key]
		if !ok {
			e = &Entry{Location: key, Stats: make(map[Kind]*Stat)}
			byFunc[key] = e
			report.Entries = append(report.Entries, e)
		}
		if s.Location.IsLine() {
			e.Lines = append(e.Lines, s)
		} else {
			e.Stats[s.Kind] = s
		}
	}

	report.reindex()
	return report, nil
}
