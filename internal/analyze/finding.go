// Package analyze scans a merged profile report for recurring inefficiency
// signatures and turns them into ranked, human-actionable recommendations.
// Both passes are pure, deterministic views over the report: running them
// twice on the same report yields identical output.
package analyze

import "github.com/perflens/perflens/internal/profile"

// PatternKind names one detectable inefficiency signature.
type PatternKind string

// The catalogue, in priority order. When several patterns compete for the
// same location, the earlier kind outranks the later one.
const (
	PatternExponentialRecursion PatternKind = "exponential_recursion"
	PatternUnboundedGrowth      PatternKind = "unbounded_growth"
	PatternRedundantCalls       PatternKind = "redundant_sequential_calls"
	PatternLineDominance        PatternKind = "line_dominance"
	PatternQuadraticSuspect     PatternKind = "quadratic_suspect"
)

// patternPriority orders kinds for ranking ties; lower is stronger.
var patternPriority = map[PatternKind]int{
	PatternExponentialRecursion: 0,
	PatternUnboundedGrowth:      1,
	PatternRedundantCalls:       2,
	PatternLineDominance:        3,
	PatternQuadraticSuspect:     4,
}

// Confidence grades how cleanly a pattern's thresholds were exceeded.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

// confidenceFor grades an observed value against its trigger threshold:
// barely over is low, 2x over is medium, 10x over is high.
func confidenceFor(observed, threshold float64) Confidence {
	if threshold <= 0 {
		return ConfidenceLow
	}
	ratio := observed / threshold
	switch {
	case ratio >= 10:
		return ConfidenceHigh
	case ratio >= 2:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Finding is one detected signature: the locations involved, the numeric
// signals that triggered the rule, and a graded confidence. Findings are
// never mutated after creation.
type Finding struct {
	Pattern    PatternKind        `json:"pattern"`
	Locations  []profile.Location `json:"locations"`
	Evidence   map[string]float64 `json:"evidence"`
	Confidence Confidence         `json:"confidence"`
}

// Primary returns the finding's first (defining) location.
func (f Finding) Primary() profile.Location {
	if len(f.Locations) == 0 {
		return profile.Location{}
	}
	return f.Locations[0]
}
