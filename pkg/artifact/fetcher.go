package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantora/simrun/pkg/client"
	"github.com/quantora/simrun/pkg/emitter"
)

// ErrTimeout reports that the fetch budget elapsed before the backend
// produced a well-formed artifact.
var ErrTimeout = errors.New("timed out waiting for artifact")

const (
	// DefaultBudget is the wall-clock allowance from the first attempt.
	DefaultBudget = 20 * time.Second

	backoffStep = 250 * time.Millisecond
	backoffCap  = 1500 * time.Millisecond
)

// Fetcher polls the artifact endpoint for a run until the result is
// well-formed or the budget elapses. Attempts are strictly sequential; the
// backoff grows linearly and is capped, because the result is usually
// seconds away and short polls keep perceived latency low.
type Fetcher struct {
	client  *client.Client
	emitter *emitter.Emitter
	logger  *slog.Logger
	budget  time.Duration
}

type FetcherOption func(*Fetcher)

// WithBudget overrides the wall-clock budget.
func WithBudget(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.budget = d
	}
}

func NewFetcher(c *client.Client, em *emitter.Emitter, logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:  c,
		emitter: em,
		logger:  logger.With("module", "artifact_fetcher"),
		budget:  DefaultBudget,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch polls the artifact endpoint for runID. HTTP 202 and structurally
// incomplete bodies drive a retry; any other failure is terminal.
func (f *Fetcher) Fetch(ctx context.Context, runID string) (*Artifact, error) {
	path := fmt.Sprintf("/simulate/%s/artifact", runID)
	start := time.Now()

	for attempt := 1; ; attempt++ {
		a, err := f.attempt(ctx, path)
		if err != nil {
			return nil, err
		}

		if a != nil {
			return a, nil
		}

		if elapsed := time.Since(start); elapsed > f.budget {
			f.emitter.Log(fmt.Sprintf("Artifact not available after %s, giving up", elapsed.Round(time.Second)))

			return nil, ErrTimeout
		}

		if err := sleep(ctx, backoff(attempt)); err != nil {
			return nil, err
		}
	}
}

// attempt returns (artifact, nil) on success, (nil, nil) when the result is
// not ready yet and (nil, err) on a terminal failure.
func (f *Fetcher) attempt(ctx context.Context, path string) (*Artifact, error) {
	resp, err := f.client.Request(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusAccepted {
		f.emitter.Log("Artifact pending...")

		return nil, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact body: %w", err)
	}

	if err := client.StatusError(resp.StatusCode, raw); err != nil {
		return nil, err
	}

	if client.IsHTML(raw) {
		return nil, client.ErrHTMLResponse
	}

	a, err := Decode(raw)
	if err != nil || !a.WellFormed() {
		f.logger.DebugContext(ctx, "Artifact body incomplete", "error", err)
		f.emitter.Log("Artifact not complete yet, retrying...")

		return nil, nil
	}

	return a, nil
}

func backoff(attempt int) time.Duration {
	d := backoffStep + time.Duration(attempt)*backoffStep
	if d > backoffCap {
		return backoffCap
	}

	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
