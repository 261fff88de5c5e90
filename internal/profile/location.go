// Package profile defines the unified data model produced by a profiling
// session: code locations, per-adapter statistics, and the merged report.
package profile

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies one of the instrumentation adapters. The set is closed:
// merging logic reconciles identity across exactly these three sources, so a
// new adapter kind means extending the merger, not registering a plugin.
type Kind string

const (
	// KindCallTime is the call-timing adapter (function entry/exit pairs).
	KindCallTime Kind = "calltime"
	// KindAlloc is the allocation-tracking adapter (periodic heap samples).
	KindAlloc Kind = "alloc"
	// KindLineTime is the statement-timing adapter (per-line spans).
	KindLineTime Kind = "linetime"
)

// Kinds lists all adapter kinds in their canonical merge order.
func Kinds() []Kind {
	return []Kind{KindCallTime, KindAlloc, KindLineTime}
}

// Valid reports whether k is one of the known adapter kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCallTime, KindAlloc, KindLineTime:
		return true
	}
	return false
}

// Location identifies a measurable unit of code: a qualified function name
// plus an optional line number. Line 0 means function granularity, used by
// adapters that cannot resolve line-level identity.
type Location struct {
	Function string `json:"function"`
	Line     int    `json:"line,omitempty"`
}

// FunctionOnly strips the line number, returning the function-granularity
// identity used as the merge key across adapters.
func (l Location) FunctionOnly() Location {
	return Location{Function: l.Function}
}

// IsLine reports whether the location carries line-level resolution.
func (l Location) IsLine() bool {
	return l.Line > 0
}

func (l Location) String() string {
	if l.Line > 0 {
		return fmt.Sprintf("%s:%d", l.Function, l.Line)
	}
	return l.Function
}

// ParseLocation is the inverse of String: "pkg.Func:42" round-trips to
// {pkg.Func, 42}, anything without a trailing line number to function
// granularity.
func ParseLocation(s string) Location {
	if i := strings.LastIndexByte(s, ':'); i > 0 {
		if line, err := strconv.Atoi(s[i+1:]); err == nil && line > 0 {
			return Location{Function: s[:i], Line: line}
		}
	}
	return Location{Function: s}
}
