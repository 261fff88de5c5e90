// Package export converts merged reports to the pprof wire format so
// standard tooling (go tool pprof, speedscope) can render them.
package export

import (
	"errors"
	"fmt"
	"io"

	pprof "github.com/google/pprof/profile"

	"github.com/perflens/perflens/internal/profile"
)

// ErrNoTimingData is returned when a report has nothing the pprof format can
// express, which needs at least one call-timing or statement-timing stat.
var ErrNoTimingData = errors.New("report contains no timing data to export")

// Pprof builds a pprof profile from a report's timing stats. Each function
// becomes a flat one-frame sample carrying its hit count and self time;
// instrumented statements become samples at their function plus line number.
func Pprof(r *profile.Report) (*pprof.Profile, error) {
	p := &pprof.Profile{
		TimeNanos:     r.Meta.StartedAt.UnixNano(),
		DurationNanos: r.Meta.Duration.Nanoseconds(),
		PeriodType:    &pprof.ValueType{Type: "cpu", Unit: "nanoseconds"},
		Period:        1,
		SampleType: []*pprof.ValueType{
			{Type: "calls", Unit: "count"},
			{Type: "self_time", Unit: "nanoseconds"},
		},
	}
	m := &pprof.Mapping{ID: 1, File: "perflens"}
	p.Mapping = []*pprof.Mapping{m}

	functions := make(map[string]*pprof.Function)
	fn := func(name string) *pprof.Function {
		if f, ok := functions[name]; ok {
			return f
		}
		f := &pprof.Function{
			ID:   uint64(len(p.Function)) + 1,
			Name: name,
		}
		functions[name] = f
		p.Function = append(p.Function, f)
		return f
	}
	addSample := func(name string, line int64, hits, selfNanos int64) {
		loc := &pprof.Location{
			ID:      uint64(len(p.Location)) + 1,
			Mapping: m,
			Line: []pprof.Line{
				{Function: fn(name), Line: line},
			},
		}
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &pprof.Sample{
			Location: []*pprof.Location{loc},
			Value:    []int64{hits, selfNanos},
		})
	}

	for _, e := range r.Entries {
		if s := e.Stat(profile.KindCallTime); s != nil {
			addSample(e.Location.Function, 0, s.Hits, s.Self)
		} else if s := e.Stat(profile.KindLineTime); s != nil {
			// Statement-only functions still deserve a flat frame.
			addSample(e.Location.Function, 0, s.Hits, s.Self)
		}
		for _, line := range e.Lines {
			addSample(e.Location.Function, int64(line.Location.Line), line.Hits, line.Self)
		}
	}

	if len(p.Sample) == 0 {
		return nil, ErrNoTimingData
	}
	if err := p.CheckValid(); err != nil {
		return nil, fmt.Errorf("build pprof profile: %w", err)
	}
	return p, nil
}

// WritePprof writes the report as a gzip-compressed pprof protobuf.
func WritePprof(w io.Writer, r *profile.Report) error {
	p, err := Pprof(r)
	if err != nil {
		return err
	}
	if err := p.Write(w); err != nil {
		return fmt.Errorf("write pprof profile: %w", err)
	}
	return nil
}
