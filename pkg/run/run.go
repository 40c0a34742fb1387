// Package run defines the run entity the orchestrator drives, its parameters
// and the compact summary that survives into history.
package run

import (
	"time"

	"github.com/quantora/simrun/pkg/artifact"
)

type Status string

const (
	StatusIdle             Status = "idle"
	StatusTraining         Status = "training"
	StatusQueued           Status = "queued"
	StatusStreaming        Status = "streaming"
	StatusCheckingStatus   Status = "checking-status"
	StatusFetchingArtifact Status = "fetching-artifact"
	StatusFinalized        Status = "finalized"
	StatusFailed           Status = "failed"
	StatusAborted          Status = "aborted"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinalized, StatusFailed, StatusAborted:
		return true
	default:
		return false
	}
}

// Run is one logical execution attempt. Its fields are mutated only by the
// orchestrator; external observers read it through snapshots.
type Run struct {
	// ID is assigned by the remote service at kickoff; empty before that.
	ID     string
	Params Params
	Status Status

	StartedAt  time.Time
	FinishedAt time.Time

	Artifact *artifact.Artifact

	// Derived once finalized.
	ProbabilityUp float64
	Terminal      float64
	Drivers       map[string]float64
}

// Finalize stores the artifact and derives the display fields.
func (r *Run) Finalize(a *artifact.Artifact, now time.Time) {
	r.Artifact = a
	r.ProbabilityUp = a.ProbabilityUp()
	r.Terminal = a.TerminalEstimate()
	r.Drivers = a.Drivers
	r.FinishedAt = now
	r.Status = StatusFinalized
}

// Summary is the immutable record appended to history when a run finalizes.
type Summary struct {
	RunID         string    `json:"run_id"`
	Symbol        string    `json:"symbol"`
	Horizon       int       `json:"horizon"`
	Paths         int       `json:"n_paths"`
	FinishedAt    time.Time `json:"finished_at"`
	ProbabilityUp float64   `json:"probability_up"`
	Terminal      float64   `json:"terminal"`
}

// Summarize produces the history record for a finalized run.
func (r *Run) Summarize() Summary {
	return Summary{
		RunID:         r.ID,
		Symbol:        r.Params.Symbol,
		Horizon:       r.Params.Horizon,
		Paths:         r.Params.Paths,
		FinishedAt:    r.FinishedAt,
		ProbabilityUp: r.ProbabilityUp,
		Terminal:      r.Terminal,
	}
}
