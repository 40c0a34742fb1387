package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBody() string {
	return `{
		"symbol": "NVDA",
		"horizon_days": 30,
		"median_path": [{"day":0,"value":100},{"day":30,"value":110}],
		"bands": {"p50": [{"day":0,"value":100},{"day":30,"value":110}]}
	}`
}

func TestDecodeCanonical(t *testing.T) {
	a, err := Decode([]byte(validBody()))
	require.NoError(t, err)

	assert.Equal(t, "NVDA", a.Symbol)
	assert.Len(t, a.MedianPath, 2)
	assert.True(t, a.WellFormed())
}

func TestDecodeLegacyAliases(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "median alias",
			body: `{"median": [{"day":0,"value":1}], "bands": {"p50": [{"day":0,"value":1}]}}`,
		},
		{
			name: "path_p50 alias",
			body: `{"path_p50": [{"day":0,"value":1}], "bands": {"p50": [{"day":0,"value":1}]}}`,
		},
		{
			name: "percentiles alias for bands",
			body: `{"median_path": [{"day":0,"value":1}], "percentiles": {"p50": [{"day":0,"value":1}]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Decode([]byte(tt.body))
			require.NoError(t, err)
			assert.True(t, a.WellFormed())
			assert.NotEmpty(t, a.MedianPath)
			assert.NotEmpty(t, a.Bands["p50"])
		})
	}
}

func TestWellFormedRejectsIncompleteShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing median path", body: `{"bands": {"p50": [{"day":0,"value":1}]}}`},
		{name: "empty median path", body: `{"median_path": [], "bands": {"p50": [{"day":0,"value":1}]}}`},
		{name: "missing bands", body: `{"median_path": [{"day":0,"value":1}]}`},
		{name: "missing p50 band", body: `{"median_path": [{"day":0,"value":1}], "bands": {"p90": [{"day":0,"value":1}]}}`},
		{name: "empty p50 band", body: `{"median_path": [{"day":0,"value":1}], "bands": {"p50": []}}`},
		{name: "empty object", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Decode([]byte(tt.body))
			require.NoError(t, err, "incomplete shapes still decode; they are just not ready")
			assert.False(t, a.WellFormed())
		})
	}
}

func TestWellFormedNil(t *testing.T) {
	var a *Artifact

	assert.False(t, a.WellFormed())
}

func TestDerivedEstimates(t *testing.T) {
	a := &Artifact{
		MedianPath: []Point{{Day: 0, Value: 100}, {Day: 15, Value: 104}, {Day: 30, Value: 108}},
	}

	assert.InDelta(t, 100, a.SpotEstimate(), 0.001)
	assert.InDelta(t, 108, a.TerminalEstimate(), 0.001)
}

func TestProbabilityUpPrefersBackendNumber(t *testing.T) {
	a := &Artifact{
		MedianPath:     []Point{{Day: 0, Value: 100}},
		HitProbs:       map[string]float64{"p_up": 0.63},
		TerminalValues: []float64{90, 90, 90},
	}

	assert.InDelta(t, 0.63, a.ProbabilityUp(), 0.001)
}

func TestProbabilityUpFromTerminalSamples(t *testing.T) {
	a := &Artifact{
		MedianPath:     []Point{{Day: 0, Value: 100}},
		TerminalValues: []float64{90, 105, 110, 95},
	}

	assert.InDelta(t, 0.5, a.ProbabilityUp(), 0.001)
}
