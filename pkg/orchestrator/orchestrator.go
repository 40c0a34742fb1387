// Package orchestrator sequences a simulation run through its phases:
// train, kickoff, progress stream, status check, artifact fetch, finalize.
// It owns the single-flight guard and is the only writer of run state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/quantora/simrun/pkg/artifact"
	"github.com/quantora/simrun/pkg/emitter"
	"github.com/quantora/simrun/pkg/eventbus"
	"github.com/quantora/simrun/pkg/events"
	"github.com/quantora/simrun/pkg/history"
	"github.com/quantora/simrun/pkg/otelhelper"
	"github.com/quantora/simrun/pkg/phases"
	"github.com/quantora/simrun/pkg/run"
	"github.com/quantora/simrun/pkg/stream"
)

type Orchestrator struct {
	executor *phases.Executor
	stream   *stream.Consumer
	fetcher  *artifact.Fetcher
	emitter  *emitter.Emitter
	history  history.Store
	bus      eventbus.EventPublisher
	tracer   trace.Tracer
	logger   *slog.Logger

	inFlight atomic.Bool

	// current is a copy of the running run's state, refreshed on every
	// transition. Observers never see the live struct the run goroutine
	// mutates.
	mu      sync.Mutex
	current run.Run
	hasRun  bool
}

type Option func(*Orchestrator)

// WithEventBus publishes run lifecycle events on the given publisher.
func WithEventBus(pub eventbus.EventPublisher) Option {
	return func(o *Orchestrator) {
		o.bus = pub
	}
}

// WithTracer records one span per phase on the given tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

func New(
	executor *phases.Executor,
	streamConsumer *stream.Consumer,
	fetcher *artifact.Fetcher,
	em *emitter.Emitter,
	store history.Store,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		executor: executor,
		stream:   streamConsumer,
		fetcher:  fetcher,
		emitter:  em,
		history:  store,
		tracer:   noop.NewTracerProvider().Tracer("simrun"),
		logger:   logger.With("module", "orchestrator"),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// RunSimulation drives one run end to end. It never returns an error: the
// returned run's terminal status and the emitter's log are the outcome. A
// request while another run is in flight is rejected and returns nil with no
// side effect beyond a log line.
func (o *Orchestrator) RunSimulation(ctx context.Context, params run.Params) *run.Run {
	if !o.inFlight.CompareAndSwap(false, true) {
		o.emitter.Log("A run is already in progress, ignoring request")

		return nil
	}
	defer o.inFlight.Store(false)

	params.Normalize()

	r := &run.Run{
		Params:    params,
		Status:    run.StatusIdle,
		StartedAt: time.Now(),
	}

	o.snapshot(r)

	if err := params.ValidateForRun(); err != nil {
		o.emitter.Log(fmt.Sprintf("Invalid run parameters (symbol %q, horizon %d): horizon must be between %d and %d days and the symbol must not be empty",
			params.Symbol, params.Horizon, run.MinHorizon, run.MaxRunHorizon))
		o.logger.WarnContext(ctx, "Rejected run parameters", "error", err)
		r.Status = run.StatusFailed
		o.snapshot(r)

		return r
	}

	o.publish(ctx, r, events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, "", params.Symbol),
		Params:    params,
	})

	o.emitter.Log(fmt.Sprintf("Starting %s simulation for %s: %d days, %d paths",
		params.Mode, params.Symbol, params.Horizon, params.Paths))

	if !o.train(ctx, r) {
		return r
	}

	if !o.kickoff(ctx, r) {
		return r
	}

	if aborted := o.consumeStream(ctx, r); aborted {
		return r
	}

	o.checkStatus(ctx, r)

	a, ok := o.fetchArtifact(ctx, r)
	if !ok {
		return r
	}

	o.finalize(ctx, r, a)

	return r
}

// Abort cancels the progress stream if one is open. It is the only external
// cancellation surface; idempotent and safe while idle.
func (o *Orchestrator) Abort() {
	o.stream.Abort()
}

// InFlight reports whether a run currently holds the guard.
func (o *Orchestrator) InFlight() bool {
	return o.inFlight.Load()
}

// Current returns a snapshot of the most recent run, if any.
func (o *Orchestrator) Current() (run.Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.hasRun {
		return run.Run{}, false
	}

	return o.current, true
}

// snapshot publishes the run's current state for observers.
func (o *Orchestrator) snapshot(r *run.Run) {
	o.mu.Lock()
	o.current = *r
	o.hasRun = true
	o.mu.Unlock()
}

func (o *Orchestrator) train(ctx context.Context, r *run.Run) bool {
	r.Status = run.StatusTraining
	o.snapshot(r)

	spanCtx, span := otelhelper.StartSpan(ctx, o.tracer, "run.train", o.runAttrs(r)...)
	defer span.End()

	// Never simulate against an untrained or stale model.
	if !o.executor.Train(spanCtx, r.Params.Symbol, r.Params.Lookback()) {
		err := fmt.Errorf("training failed for %s", r.Params.Symbol)
		otelhelper.SetError(span, err)
		o.fail(ctx, r, "train", err)

		return false
	}

	o.publishPhase(ctx, r, "train")

	return true
}

func (o *Orchestrator) kickoff(ctx context.Context, r *run.Run) bool {
	spanCtx, span := otelhelper.StartSpan(ctx, o.tracer, "run.kickoff", o.runAttrs(r)...)
	defer span.End()

	runID, err := o.executor.Kickoff(spanCtx, r.Params)
	if err != nil {
		otelhelper.SetError(span, err)
		o.fail(ctx, r, "kickoff", err)

		return false
	}

	r.ID = runID
	r.Status = run.StatusQueued
	o.snapshot(r)
	span.SetAttributes(attribute.String(otelhelper.RunIDKey, runID))

	o.publishPhase(ctx, r, "kickoff")

	return true
}

// consumeStream runs the progress stream to its natural end. The stream is
// best-effort: its errors are logged and the run proceeds regardless. Only
// an explicit abort ends the run here. Returns whether the run was aborted.
func (o *Orchestrator) consumeStream(ctx context.Context, r *run.Run) bool {
	r.Status = run.StatusStreaming
	o.snapshot(r)

	spanCtx, span := otelhelper.StartSpan(ctx, o.tracer, "run.stream", o.runAttrs(r)...)
	defer span.End()

	err := o.stream.Consume(spanCtx, r.ID)

	switch {
	case err == nil:
		o.publishPhase(ctx, r, "stream")
	case errors.Is(err, context.Canceled):
		otelhelper.SetError(span, err)
		r.Status = run.StatusAborted
		o.snapshot(r)
		o.emitter.Log("Run aborted")
		o.publish(ctx, r, events.RunAborted{
			BaseEvent: events.NewBaseEvent(events.RunAbortedEvent, r.ID, r.Params.Symbol),
		})

		return true
	default:
		otelhelper.SetError(span, err)
		o.logger.WarnContext(ctx, "Stream failed, continuing to artifact fetch", "run_id", r.ID, "error", err)
	}

	return false
}

func (o *Orchestrator) checkStatus(ctx context.Context, r *run.Run) {
	r.Status = run.StatusCheckingStatus
	o.snapshot(r)

	spanCtx, span := otelhelper.StartSpan(ctx, o.tracer, "run.status", o.runAttrs(r)...)
	defer span.End()

	o.executor.StatusCheck(spanCtx, r.ID)
}

func (o *Orchestrator) fetchArtifact(ctx context.Context, r *run.Run) (*artifact.Artifact, bool) {
	r.Status = run.StatusFetchingArtifact
	o.snapshot(r)

	spanCtx, span := otelhelper.StartSpan(ctx, o.tracer, "run.artifact", o.runAttrs(r)...)
	defer span.End()

	a, err := o.fetcher.Fetch(spanCtx, r.ID)
	if err != nil {
		otelhelper.SetError(span, err)
		o.fail(ctx, r, "artifact", err)

		return nil, false
	}

	o.publishPhase(ctx, r, "artifact")

	return a, true
}

func (o *Orchestrator) finalize(ctx context.Context, r *run.Run, a *artifact.Artifact) {
	r.Finalize(a, time.Now())
	o.snapshot(r)

	o.emitter.Progress(100)
	o.emitter.Log(fmt.Sprintf("Run %s complete: %s over %d days, P(up) %.2f, terminal %.2f",
		r.ID, r.Params.Symbol, r.Params.Horizon, r.ProbabilityUp, r.Terminal))

	summary := r.Summarize()

	if err := o.history.Append(ctx, summary); err != nil {
		// History is a convenience record; a finalized run stays finalized.
		o.logger.WarnContext(ctx, "Failed to append run history", "run_id", r.ID, "error", err)
	}

	o.publish(ctx, r, events.RunFinished{
		BaseEvent: events.NewBaseEvent(events.RunFinishedEvent, r.ID, r.Params.Symbol),
		Summary:   summary,
		Duration:  r.FinishedAt.Sub(r.StartedAt),
	})
}

func (o *Orchestrator) fail(ctx context.Context, r *run.Run, phase string, err error) {
	r.Status = run.StatusFailed
	o.snapshot(r)
	o.logger.ErrorContext(ctx, "Run failed", "phase", phase, "run_id", r.ID, "error", err)

	o.publish(ctx, r, events.RunFailed{
		BaseEvent: events.NewBaseEvent(events.RunFailedEvent, r.ID, r.Params.Symbol),
		Phase:     phase,
		Error:     err.Error(),
	})
}

func (o *Orchestrator) publishPhase(ctx context.Context, r *run.Run, phase string) {
	o.publish(ctx, r, events.RunPhaseCompleted{
		BaseEvent: events.NewBaseEvent(events.RunPhaseCompletedEvent, r.ID, r.Params.Symbol),
		Phase:     phase,
	})
}

func (o *Orchestrator) publish(ctx context.Context, r *run.Run, event eventbus.Event) {
	if o.bus == nil {
		return
	}

	key := r.ID
	if key == "" {
		key = r.Params.Symbol
	}

	if err := o.bus.Publish(ctx, key, event); err != nil {
		o.logger.WarnContext(ctx, "Failed to publish run event", "event_type", event.GetType(), "error", err)
	}
}

func (o *Orchestrator) runAttrs(r *run.Run) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(otelhelper.SymbolKey, r.Params.Symbol),
		attribute.Int(otelhelper.HorizonKey, r.Params.Horizon),
		attribute.Int(otelhelper.PathsKey, r.Params.Paths),
		attribute.String(otelhelper.ModeKey, string(r.Params.Mode)),
		attribute.String(otelhelper.PhaseKey, string(r.Status)),
	}

	if r.ID != "" {
		attrs = append(attrs, attribute.String(otelhelper.RunIDKey, r.ID))
	}

	return attrs
}
