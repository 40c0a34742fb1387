// Package schedule re-runs a simulation on a cron cadence. An overlapping
// tick is rejected by the orchestrator's single-flight guard, not queued.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Callback is invoked on every cron tick.
type Callback func(ctx context.Context)

type Watcher struct {
	expr     string
	cron     *cron.Cron
	callback Callback
	logger   *slog.Logger
}

func NewWatcher(expr string, logger *slog.Logger) (*Watcher, error) {
	if expr == "" {
		return nil, errors.New("watch cron expression is required")
	}

	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	return &Watcher{
		expr:   expr,
		logger: logger.With("module", "schedule_watcher", "cron", expr),
	}, nil
}

func (w *Watcher) Start(ctx context.Context, callback Callback) error {
	w.logger.InfoContext(ctx, "Starting watch schedule")
	w.callback = callback

	w.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	id, err := w.cron.AddFunc(w.expr, func() { w.tick(ctx) })
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	w.logger.InfoContext(ctx, "Watch schedule registered", "entry_id", id)
	w.cron.Start()

	return nil
}

func (w *Watcher) tick(ctx context.Context) {
	w.logger.InfoContext(ctx, "Watch tick")
	w.callback(ctx)
}

// Stop halts scheduling and waits for a running tick to finish.
func (w *Watcher) Stop() {
	if w.cron == nil {
		return
	}

	<-w.cron.Stop().Done()
}
