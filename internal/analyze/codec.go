package analyze

import (
	"encoding/json"
	"fmt"

	"github.com/perflens/perflens/internal/profile"
)

// Recommendations serialize as a flat list consumers can render directly;
// target locations travel as qualified-name strings.

type recommendationJSON struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	Targets     []string `json:"target_locations"`
	Impact      string   `json:"estimated_impact"`
}

// EncodeRecommendations serializes a recommendation list.
func EncodeRecommendations(recs []Recommendation) ([]byte, error) {
	out := make([]recommendationJSON, len(recs))
	for i, r := range recs {
		targets := make([]string, len(r.Targets))
		for j, loc := range r.Targets {
			targets[j] = loc.String()
		}
		out[i] = recommendationJSON{
			Title:       r.Title,
			Description: r.Description,
			Severity:    r.Severity.String(),
			Targets:     targets,
			Impact:      r.Impact.String(),
		}
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecodeRecommendations is the inverse of EncodeRecommendations; the decoded
// list is equal to the encoded one, ordering included.
func DecodeRecommendations(data []byte) ([]Recommendation, error) {
	var in []recommendationJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode recommendations: %w", err)
	}
	recs := make([]Recommendation, len(in))
	for i, r := range in {
		severity, err := parseSeverity(r.Severity)
		if err != nil {
			return nil, fmt.Errorf("decode recommendations: %w", err)
		}
		impact, err := parseImpact(r.Impact)
		if err != nil {
			return nil, fmt.Errorf("decode recommendations: %w", err)
		}
		targets := make([]profile.Location, len(r.Targets))
		for j, s := range r.Targets {
			targets[j] = profile.ParseLocation(s)
		}
		recs[i] = Recommendation{
			Title:       r.Title,
			Description: r.Description,
			Severity:    severity,
			Targets:     targets,
			Impact:      impact,
		}
	}
	return recs, nil
}

func parseSeverity(s string) (Severity, error) {
	switch s {
	case "critical":
		return SeverityCritical, nil
	case "warning":
		return SeverityWarning, nil
	case "info":
		return SeverityInfo, nil
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

func parseImpact(s string) (Impact, error) {
	switch s {
	case "high":
		return ImpactHigh, nil
	case "moderate":
		return ImpactModerate, nil
	case "low":
		return ImpactLow, nil
	}
	return 0, fmt.Errorf("unknown impact %q", s)
}
