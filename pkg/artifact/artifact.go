// Package artifact defines the simulation result payload, its normalization
// at the ingestion boundary and the polling fetcher that retrieves it.
package artifact

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Point is one step of a trajectory: day index and value.
type Point struct {
	Day   int     `json:"day"`
	Value float64 `json:"value"`
}

// Artifact is the canonical result payload of a finished run. Older backend
// builds used alternate field names for the trajectory and the bands; those
// are folded into the canonical fields by Decode, never probed elsewhere.
type Artifact struct {
	Symbol         string             `json:"symbol"`
	HorizonDays    int                `json:"horizon_days"`
	MedianPath     []Point            `json:"median_path"`
	Bands          map[string][]Point `json:"bands"`
	TerminalValues []float64          `json:"terminal_values,omitempty"`
	HitProbs       map[string]float64 `json:"hit_probs,omitempty"`
	Drivers        map[string]float64 `json:"drivers,omitempty"`
	Risk           map[string]float64 `json:"risk,omitempty"`
}

// wireArtifact carries the legacy aliases alongside the canonical shape.
type wireArtifact struct {
	Artifact

	Median      []Point            `json:"median,omitempty"`
	PathP50     []Point            `json:"path_p50,omitempty"`
	Percentiles map[string][]Point `json:"percentiles,omitempty"`
}

// Decode parses a response body into a normalized Artifact. A decode error
// means the body was not an artifact at all; shape completeness is a separate
// question answered by WellFormed.
func Decode(raw []byte) (*Artifact, error) {
	var wire wireArtifact

	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}

	a := wire.Artifact

	if len(a.MedianPath) == 0 {
		switch {
		case len(wire.Median) > 0:
			a.MedianPath = wire.Median
		case len(wire.PathP50) > 0:
			a.MedianPath = wire.PathP50
		}
	}

	if len(a.Bands) == 0 && len(wire.Percentiles) > 0 {
		a.Bands = wire.Percentiles
	}

	return &a, nil
}

var wellFormedSchema = map[string]any{
	"type":     "object",
	"required": []string{"median_path", "bands"},
	"properties": map[string]any{
		"median_path": map[string]any{
			"type":     "array",
			"minItems": 1,
		},
		"bands": map[string]any{
			"type":     "object",
			"required": []string{"p50"},
			"properties": map[string]any{
				"p50": map[string]any{
					"type":     "array",
					"minItems": 1,
				},
			},
		},
	},
}

// WellFormed reports whether the artifact satisfies the minimum shape a
// renderer can work with: a non-empty median trajectory and a non-empty p50
// band. Anything less means the backend has not finished writing the result.
func (a *Artifact) WellFormed() bool {
	if a == nil {
		return false
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(wellFormedSchema),
		gojsonschema.NewGoLoader(a),
	)
	if err != nil {
		return false
	}

	return result.Valid()
}

// SpotEstimate is the trajectory's starting value.
func (a *Artifact) SpotEstimate() float64 {
	if len(a.MedianPath) == 0 {
		return 0
	}

	return a.MedianPath[0].Value
}

// TerminalEstimate is the trajectory's final value.
func (a *Artifact) TerminalEstimate() float64 {
	if len(a.MedianPath) == 0 {
		return 0
	}

	return a.MedianPath[len(a.MedianPath)-1].Value
}

// ProbabilityUp derives the chance the subject finishes above its starting
// point: the backend's own number when present, otherwise the share of
// terminal samples above the spot estimate.
func (a *Artifact) ProbabilityUp() float64 {
	for _, key := range []string{"p_up", "up"} {
		if p, ok := a.HitProbs[key]; ok {
			return p
		}
	}

	if len(a.TerminalValues) == 0 {
		return 0
	}

	spot := a.SpotEstimate()
	above := 0

	for _, v := range a.TerminalValues {
		if v > spot {
			above++
		}
	}

	return float64(above) / float64(len(a.TerminalValues))
}
