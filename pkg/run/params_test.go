package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampPaths(t *testing.T) {
	tests := []struct {
		name     string
		in       int
		expected int
	}{
		{name: "below minimum", in: 10, expected: 100},
		{name: "at minimum", in: 100, expected: 100},
		{name: "in range", in: 2000, expected: 2000},
		{name: "at maximum", in: 10000, expected: 10000},
		{name: "above maximum", in: 50000, expected: 10000},
		{name: "zero", in: 0, expected: 100},
		{name: "negative", in: -5, expected: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClampPaths(tt.in))
		})
	}
}

func TestNormalize(t *testing.T) {
	p := Params{Symbol: "  nvda ", Horizon: 30, Paths: 7}
	p.Normalize()

	assert.Equal(t, "NVDA", p.Symbol)
	assert.Equal(t, ModeQuick, p.Mode)
	assert.Equal(t, 100, p.Paths)
}

func TestValidate(t *testing.T) {
	valid := Params{Symbol: "NVDA", Horizon: 30, Paths: 2000, Mode: ModeQuick}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{name: "empty symbol", mutate: func(p *Params) { p.Symbol = "" }},
		{name: "zero horizon", mutate: func(p *Params) { p.Horizon = 0 }},
		{name: "negative horizon", mutate: func(p *Params) { p.Horizon = -1 }},
		{name: "horizon beyond data model cap", mutate: func(p *Params) { p.Horizon = 4000 }},
		{name: "unknown mode", mutate: func(p *Params) { p.Mode = "thorough" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestValidateForRun(t *testing.T) {
	p := Params{Symbol: "NVDA", Horizon: 400, Paths: 2000, Mode: ModeQuick}

	require.NoError(t, p.Validate(), "400 days is inside the data-model cap")
	assert.Error(t, p.ValidateForRun(), "but past the run limit")

	p.Horizon = 365
	assert.NoError(t, p.ValidateForRun())
}

func TestLookback(t *testing.T) {
	quick := Params{Mode: ModeQuick}
	deep := Params{Mode: ModeDeep}

	assert.Less(t, quick.Lookback(), deep.Lookback())
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusFinalized, StatusFailed, StatusAborted} {
		assert.True(t, s.Terminal(), string(s))
	}

	for _, s := range []Status{StatusIdle, StatusTraining, StatusQueued, StatusStreaming, StatusCheckingStatus, StatusFetchingArtifact} {
		assert.False(t, s.Terminal(), string(s))
	}
}
