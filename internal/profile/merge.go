package profile

import (
	"errors"

	"github.com/rs/zerolog"
)

// ErrNoAdapters is returned when a merge (or a session) is attempted with no
// adapters enabled. Any non-empty subset of the three kinds is valid.
var ErrNoAdapters = errors.New("no adapters enabled for session")

// Merge combines the reduced per-adapter stat tables into one report.
//
// Identity is reconciled across adapters by qualified function name: a
// line-level stat and a function-level stat for the same function land in the
// same entry, the line-level one under Entry.Lines. This loses line precision
// for cross-adapter comparisons but is deliberate, not an error.
func Merge(meta Meta, stats map[Kind][]*Stat, logger zerolog.Logger) (*Report, error) {
	if len(stats) == 0 {
		return nil, ErrNoAdapters
	}

	report := &Report{Meta: meta}
	byFunc := make(map[Location]*Entry)

	entryFor := func(loc Location) *Entry {
		key := loc.FunctionOnly()
		if e, ok := byFunc[key]; ok {
			return e
		}
		e := &Entry{Location: key, Stats: make(map[Kind]*Stat)}
		byFunc[key] = e
		report.Entries = append(report.Entries, e)
		return e
	}

	// Walk kinds in canonical order so merging is deterministic regardless of
	// map iteration.
	for _, kind := range Kinds() {
		list, ok := stats[kind]
		if !ok {
			continue
		}
		for _, s := range list {
			if s.Hits == 0 {
				// Malformed reducer output; never surface a zero-hit stat.
				logger.Warn().
					Str("kind", string(kind)).
					Str("location", s.Location.String()).
					Msg("Dropping stat with zero hit count")
				continue
			}
			e := entryFor(s.Location)
			if s.Location.IsLine() {
				e.Lines = append(e.Lines, s)
				continue
			}
			if prev := e.Stats[kind]; prev != nil {
				logger.Warn().
					Str("kind", string(kind)).
					Str("location", s.Location.String()).
					Msg("Duplicate function-level stat, keeping the larger")
				if s.Self <= prev.Self {
					continue
				}
			}
			e.Stats[kind] = s
		}
	}

	report.reindex()

	logger.Debug().
		Str("session_id", meta.SessionID).
		Int("entries", len(report.Entries)).
		Int("adapters", len(stats)).
		Msg("Merged adapter stats into report")

	return report, nil
}
