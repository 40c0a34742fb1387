// Package emitter provides the rate-limited, de-duplicating sink for run
// observability: a capped log line buffer and a progress scalar.
package emitter

import (
	"sync"
	"time"
)

const (
	// DefaultCapacity is how many log lines are retained before the oldest
	// are evicted.
	DefaultCapacity = 50

	// DefaultInterval is the minimum spacing between emissions per signal.
	DefaultInterval = 150 * time.Millisecond
)

// Emitter throttles two independent signals: log lines and progress. Calls
// inside the throttle window are not dropped; the latest value is deferred
// and fires at the window boundary (trailing edge, last write wins).
//
// The log signal additionally collapses a line identical to the previous one
// and caps retained lines FIFO.
type Emitter struct {
	interval time.Duration
	capacity int
	now      func() time.Time

	mu sync.Mutex

	lines      []string
	logLast    time.Time
	logPending bool
	logNext    string
	logTimer   *time.Timer

	progress      float64
	progLast      time.Time
	progPending   bool
	progNext      float64
	progTimer     *time.Timer
	closed        bool
	lineListeners []func(string)
}

type Option func(*Emitter)

func WithInterval(d time.Duration) Option {
	return func(e *Emitter) {
		e.interval = d
	}
}

func WithCapacity(n int) Option {
	return func(e *Emitter) {
		if n > 0 {
			e.capacity = n
		}
	}
}

// WithClock overrides the time source. Tests use this to make window
// arithmetic deterministic.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		e.now = now
	}
}

// WithLineListener registers a callback invoked for every line that enters
// the buffer. Listeners must not call back into the emitter.
func WithLineListener(fn func(string)) Option {
	return func(e *Emitter) {
		e.lineListeners = append(e.lineListeners, fn)
	}
}

func New(opts ...Option) *Emitter {
	e := &Emitter{
		interval: DefaultInterval,
		capacity: DefaultCapacity,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Log appends a line, subject to throttling and consecutive-duplicate
// collapsing.
func (e *Emitter) Log(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	now := e.now()
	if elapsed := now.Sub(e.logLast); elapsed >= e.interval {
		// A deferred line is superseded by this newer one; flushing it
		// afterwards would reorder the signal.
		if e.logPending {
			e.logPending = false
			e.logTimer.Stop()
		}

		e.logLast = now
		e.appendLocked(msg)

		return
	}

	e.logNext = msg
	if !e.logPending {
		e.logPending = true
		e.logTimer = time.AfterFunc(e.interval-now.Sub(e.logLast), e.flushLog)
	}
}

func (e *Emitter) flushLog() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.logPending || e.closed {
		return
	}

	e.logPending = false
	e.logLast = e.now()
	e.appendLocked(e.logNext)
}

func (e *Emitter) appendLocked(msg string) {
	// A stream echoing the same status every heartbeat must not fill the
	// buffer with copies.
	if n := len(e.lines); n > 0 && e.lines[n-1] == msg {
		return
	}

	e.lines = append(e.lines, msg)
	if len(e.lines) > e.capacity {
		e.lines = e.lines[len(e.lines)-e.capacity:]
	}

	for _, fn := range e.lineListeners {
		fn(msg)
	}
}

// Progress records a progress value in [0, 100], subject to throttling.
// Values are not required to be monotonic; the backend may re-report.
func (e *Emitter) Progress(value float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	value = clampProgress(value)

	now := e.now()
	if elapsed := now.Sub(e.progLast); elapsed >= e.interval {
		if e.progPending {
			e.progPending = false
			e.progTimer.Stop()
		}

		e.progLast = now
		e.progress = value

		return
	}

	e.progNext = value
	if !e.progPending {
		e.progPending = true
		e.progTimer = time.AfterFunc(e.interval-now.Sub(e.progLast), e.flushProgress)
	}
}

func (e *Emitter) flushProgress() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.progPending || e.closed {
		return
	}

	e.progPending = false
	e.progLast = e.now()
	e.progress = e.progNext
}

// Lines returns a snapshot of the retained log lines, oldest first.
func (e *Emitter) Lines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, len(e.lines))
	copy(out, e.lines)

	return out
}

// CurrentProgress returns the last emitted progress value.
func (e *Emitter) CurrentProgress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.progress
}

// Flush forces any deferred log line or progress value out immediately.
func (e *Emitter) Flush() {
	e.mu.Lock()

	if e.logPending {
		e.logPending = false
		e.logLast = e.now()
		e.appendLocked(e.logNext)
	}

	if e.progPending {
		e.progPending = false
		e.progLast = e.now()
		e.progress = e.progNext
	}

	e.mu.Unlock()
}

// Close flushes pending values and stops the internal timers. The emitter
// drops further writes after Close.
func (e *Emitter) Close() {
	e.Flush()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true

	if e.logTimer != nil {
		e.logTimer.Stop()
	}

	if e.progTimer != nil {
		e.progTimer.Stop()
	}
}

func clampProgress(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
