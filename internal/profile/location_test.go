package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocationString(t *testing.T) {
	tests := []struct {
		name string
		loc  Location
		want string
	}{
		{
			name: "Function granularity",
			loc:  Location{Function: "workload.Fibonacci"},
			want: "workload.Fibonacci",
		},
		{
			name: "Line granularity",
			loc:  Location{Function: "workload.PairScan", Line: 46},
			want: "workload.PairScan:46",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.loc.String())
		})
	}
}

func TestParseLocationRoundTrip(t *testing.T) {
	locs := []Location{
		{Function: "workload.Fibonacci"},
		{Function: "workload.PairScan", Line: 46},
		{Function: "runtime.heap"},
	}
	for _, loc := range locs {
		assert.Equal(t, loc, ParseLocation(loc.String()))
	}
}

func TestParseLocationMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Location
	}{
		{
			name:  "Trailing colon without line",
			input: "pkg.Func:",
			want:  Location{Function: "pkg.Func:"},
		},
		{
			name:  "Non-numeric suffix",
			input: "pkg.Func:abc",
			want:  Location{Function: "pkg.Func:abc"},
		},
		{
			name:  "Zero line stays function granularity",
			input: "pkg.Func:0",
			want:  Location{Function: "pkg.Func:0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLocation(tt.input))
		})
	}
}

func TestFunctionOnly(t *testing.T) {
	loc := Location{Function: "workload.PairScan", Line: 46}
	assert.Equal(t, Location{Function: "workload.PairScan"}, loc.FunctionOnly())
	assert.True(t, loc.IsLine())
	assert.False(t, loc.FunctionOnly().IsLine())
}

func TestKindValid(t *testing.T) {
	for _, k := range Kinds() {
		assert.True(t, k.Valid())
	}
	assert.False(t, Kind("cpu").Valid())
	assert.False(t, Kind("").Valid())
}
