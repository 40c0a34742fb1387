package main

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantora/simrun/pkg/artifact"
)

const defaultRunDuration = 3 * time.Second

// stubRun is one fake in-flight simulation. Progress is a pure function of
// elapsed time, so no background goroutine is needed.
type stubRun struct {
	ID        string
	Symbol    string
	Horizon   int
	Paths     int
	StartedAt time.Time
	Duration  time.Duration
}

func (r *stubRun) progress(now time.Time) float64 {
	p := float64(now.Sub(r.StartedAt)) / float64(r.Duration) * 100

	return math.Min(100, p)
}

func (r *stubRun) done(now time.Time) bool {
	return r.progress(now) >= 100
}

func (r *stubRun) status(now time.Time) string {
	switch {
	case r.done(now):
		return "finished"
	case r.progress(now) < 10:
		return "queued"
	default:
		return "running"
	}
}

type runTable struct {
	mu   sync.Mutex
	runs map[string]*stubRun
}

func newRunTable() *runTable {
	return &runTable{runs: make(map[string]*stubRun)}
}

func (t *runTable) create(symbol string, horizon, paths int, duration time.Duration) *stubRun {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := &stubRun{
		ID:        uuid.New().String()[:8],
		Symbol:    symbol,
		Horizon:   horizon,
		Paths:     paths,
		StartedAt: time.Now(),
		Duration:  duration,
	}

	t.runs[r.ID] = r

	return r
}

func (t *runTable) get(id string) (*stubRun, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.runs[id]

	return r, ok
}

// synthesize builds a deterministic artifact for a finished run: a flat-ish
// random walk seeded from the symbol, with p10/p50/p90 bands.
func synthesize(r *stubRun) *artifact.Artifact {
	seed := 0.0
	for _, ch := range r.Symbol {
		seed += float64(ch)
	}

	spot := 50 + math.Mod(seed, 400)
	drift := math.Sin(seed) * 0.002

	median := make([]artifact.Point, r.Horizon+1)
	low := make([]artifact.Point, r.Horizon+1)
	high := make([]artifact.Point, r.Horizon+1)

	for day := 0; day <= r.Horizon; day++ {
		value := spot * math.Exp(drift*float64(day))
		spread := spot * 0.02 * math.Sqrt(float64(day))

		median[day] = artifact.Point{Day: day, Value: round2(value)}
		low[day] = artifact.Point{Day: day, Value: round2(value - spread)}
		high[day] = artifact.Point{Day: day, Value: round2(value + spread)}
	}

	terminal := median[len(median)-1].Value
	samples := make([]float64, 0, 200)

	for i := range 200 {
		offset := math.Sin(seed+float64(i)) * spot * 0.05
		samples = append(samples, round2(terminal+offset))
	}

	return &artifact.Artifact{
		Symbol:      r.Symbol,
		HorizonDays: r.Horizon,
		MedianPath:  median,
		Bands: map[string][]artifact.Point{
			"p10": low,
			"p50": median,
			"p90": high,
		},
		TerminalValues: samples,
		HitProbs: map[string]float64{
			"p_up": round2(0.5 + drift*100),
		},
		Drivers: map[string]float64{
			"momentum": 0.4,
			"news":     0.35,
			"macro":    0.25,
		},
		Risk: map[string]float64{
			"var_95": round2(spot * 0.08),
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
