package run

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Mode string

const (
	ModeQuick Mode = "quick"
	ModeDeep  Mode = "deep"
)

const (
	// Path count clamp bounds. Values outside are clamped, not rejected.
	MinPaths = 100
	MaxPaths = 10000

	// Hard data-model bounds for the horizon, in days.
	MinHorizon = 1
	MaxHorizon = 3650

	// MaxRunHorizon is the longest horizon a run request may carry. The
	// service trains daily models about a year out; longer kickoff
	// requests are rejected locally before any network call.
	MaxRunHorizon = 365

	quickLookbackDays = 365
	deepLookbackDays  = 1825
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Params describes one simulation request as the user issued it.
type Params struct {
	Symbol         string   `json:"symbol"     validate:"required"`
	Horizon        int      `json:"horizon"    validate:"required,min=1,max=3650"`
	Paths          int      `json:"n_paths"`
	Mode           Mode     `json:"mode"       validate:"omitempty,oneof=quick deep"`
	IncludeNews    bool     `json:"include_news"`
	IncludeOptions bool     `json:"include_options"`
	IncludeFutures bool     `json:"include_futures"`
	Handles        []string `json:"handles,omitempty"`
}

// Normalize case-folds the symbol, defaults the mode and clamps the path
// count. Clamping is a silent correction, not a validation failure.
func (p *Params) Normalize() {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))

	if p.Mode == "" {
		p.Mode = ModeQuick
	}

	p.Paths = ClampPaths(p.Paths)
}

// Validate checks the normalized parameters. It never touches the network.
func (p *Params) Validate() error {
	return validate.Struct(p)
}

// ValidateForRun layers the run-level horizon bound on top of Validate.
func (p *Params) ValidateForRun() error {
	if err := p.Validate(); err != nil {
		return err
	}

	if p.Horizon > MaxRunHorizon {
		return fmt.Errorf("horizon %d exceeds the run limit of %d days", p.Horizon, MaxRunHorizon)
	}

	return nil
}

// Lookback maps the run mode to the training window in days.
func (p *Params) Lookback() int {
	if p.Mode == ModeDeep {
		return deepLookbackDays
	}

	return quickLookbackDays
}

func ClampPaths(n int) int {
	switch {
	case n < MinPaths:
		return MinPaths
	case n > MaxPaths:
		return MaxPaths
	default:
		return n
	}
}
