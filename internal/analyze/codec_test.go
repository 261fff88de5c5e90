package analyze

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perflens/perflens/internal/profile"
)

func TestRecommendationsRoundTrip(t *testing.T) {
	recs := Synthesize([]Finding{
		fibFinding(ConfidenceHigh, 97),
		{
			Pattern:   PatternLineDominance,
			Locations: []profile.Location{{Function: "app.Scan", Line: 46}, {Function: "app.Scan"}},
			Evidence: map[string]float64{
				"line_percent": 55,
				"hit_count":    100,
				"self_percent": 12,
			},
			Confidence: ConfidenceMedium,
		},
	})
	require.Len(t, recs, 2)

	data, err := EncodeRecommendations(recs)
	require.NoError(t, err)

	decoded, err := DecodeRecommendations(data)
	require.NoError(t, err)
	assert.Equal(t, recs, decoded, "round trip preserves values and ordering")
}

func TestRecommendationsRoundTripEmpty(t *testing.T) {
	data, err := EncodeRecommendations(nil)
	require.NoError(t, err)

	decoded, err := DecodeRecommendations(data)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestDecodeRecommendationsRejectsUnknownLevels(t *testing.T) {
	_, err := DecodeRecommendations([]byte(`[{"title":"t","description":"d","severity":"fatal","target_locations":[],"estimated_impact":"low"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown severity")

	_, err = DecodeRecommendations([]byte(`[{"title":"t","description":"d","severity":"info","target_locations":[],"estimated_impact":"huge"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown impact")
}
