// Package phases implements the single request/response cycles of the run
// protocol: train, predict, simulate kickoff and the diagnostic status check.
//
// Every executor catches its own failures and reports them through the
// emitter; nothing escapes past this boundary except the kickoff result the
// orchestrator cannot proceed without.
package phases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quantora/simrun/pkg/client"
	"github.com/quantora/simrun/pkg/emitter"
	"github.com/quantora/simrun/pkg/run"
)

const (
	// Predict horizon bounds, in days. Checked locally; a violation never
	// reaches the network.
	MinPredictHorizon = 1
	MaxPredictHorizon = 365
)

type Executor struct {
	client  *client.Client
	emitter *emitter.Emitter
	logger  *slog.Logger
}

func NewExecutor(c *client.Client, em *emitter.Emitter, logger *slog.Logger) *Executor {
	return &Executor{
		client:  c,
		emitter: em,
		logger:  logger.With("module", "phases"),
	}
}

type trainRequest struct {
	Symbol       string `json:"symbol"`
	LookbackDays int    `json:"lookback_days"`
}

type trainResponse struct {
	Status string `json:"status"`
}

// Train warms the model for a symbol over a lookback window. Returns whether
// the phase succeeded.
func (e *Executor) Train(ctx context.Context, symbol string, lookbackDays int) bool {
	var resp trainResponse

	err := e.client.PostJSON(ctx, "/train", trainRequest{Symbol: symbol, LookbackDays: lookbackDays}, &resp)
	if err != nil {
		e.fail(ctx, "Training", err)

		return false
	}

	e.emitter.Log(fmt.Sprintf("Model trained for %s (%dd lookback)", symbol, lookbackDays))

	return true
}

type predictRequest struct {
	Symbol  string `json:"symbol"`
	Horizon int    `json:"horizon"`
}

type predictResponse struct {
	Symbol string  `json:"symbol"`
	ProbUp float64 `json:"prob_up"`
}

// Predict requests the one-shot next-step probability. Returns whether the
// phase succeeded.
func (e *Executor) Predict(ctx context.Context, symbol string, horizon int) bool {
	if horizon < MinPredictHorizon || horizon > MaxPredictHorizon {
		e.emitter.Log(fmt.Sprintf("Prediction horizon must be between %d and %d days, got %d",
			MinPredictHorizon, MaxPredictHorizon, horizon))

		return false
	}

	var resp predictResponse

	err := e.client.PostJSON(ctx, "/predict", predictRequest{Symbol: symbol, Horizon: horizon}, &resp)
	if err != nil {
		e.fail(ctx, "Prediction", err)

		return false
	}

	e.emitter.Log(fmt.Sprintf("Next-step probability for %s: %.2f", symbol, resp.ProbUp))

	return true
}

type kickoffRequest struct {
	Mode           run.Mode `json:"mode"`
	Symbol         string   `json:"symbol"`
	Horizon        int      `json:"horizon"`
	NPaths         int      `json:"n_paths"`
	Timespan       string   `json:"timespan"`
	IncludeNews    bool     `json:"include_news"`
	IncludeOptions bool     `json:"include_options"`
	IncludeFutures bool     `json:"include_futures"`
	Handles        []string `json:"handles,omitempty"`
}

type kickoffResponse struct {
	RunID string `json:"run_id"`
}

// Kickoff starts a run and returns its identifier. This is the one phase
// whose error surfaces to the orchestrator, because nothing downstream can
// happen without the id.
func (e *Executor) Kickoff(ctx context.Context, p run.Params) (string, error) {
	req := kickoffRequest{
		Mode:           p.Mode,
		Symbol:         p.Symbol,
		Horizon:        p.Horizon,
		NPaths:         p.Paths,
		Timespan:       "days",
		IncludeNews:    p.IncludeNews,
		IncludeOptions: p.IncludeOptions,
		IncludeFutures: p.IncludeFutures,
		Handles:        p.Handles,
	}

	var resp kickoffResponse

	if err := e.client.PostJSON(ctx, "/simulate", req, &resp); err != nil {
		e.fail(ctx, "Kickoff", err)

		return "", err
	}

	if resp.RunID == "" {
		err := errors.New("kickoff response carried no run id")
		e.fail(ctx, "Kickoff", err)

		return "", err
	}

	e.emitter.Log("Simulation queued, run id " + resp.RunID)

	return resp.RunID, nil
}

type statusResponse struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Detail   string  `json:"detail,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// StatusCheck performs one diagnostic snapshot request. Failures are logged
// and swallowed; this phase never gates the run.
func (e *Executor) StatusCheck(ctx context.Context, runID string) {
	var resp statusResponse

	err := e.client.GetJSON(ctx, "/simulate/"+runID+"/status", &resp)
	if err != nil {
		e.logger.WarnContext(ctx, "Status check failed", "run_id", runID, "error", err)
		e.emitter.Log("Status check failed: " + err.Error())

		return
	}

	if resp.Status != "" {
		e.emitter.Log(fmt.Sprintf("Run status: %s (%.0f%%)", resp.Status, resp.Progress))
	}

	if resp.Detail != "" {
		e.emitter.Log("Detail: " + resp.Detail)
	}

	if resp.Error != "" {
		e.emitter.Log("Backend reported: " + resp.Error)
	}
}

func (e *Executor) fail(ctx context.Context, phase string, err error) {
	e.logger.ErrorContext(ctx, "Phase failed", "phase", phase, "error", err)

	var httpErr *client.HTTPError

	switch {
	case errors.Is(err, client.ErrHTMLResponse):
		e.emitter.Log(phase + " failed: " + client.ErrHTMLResponse.Error())
	case errors.As(err, &httpErr):
		e.emitter.Log(fmt.Sprintf("%s failed: %s", phase, httpErr.Error()))
	default:
		e.emitter.Log(phase + " failed: " + err.Error())
	}
}
