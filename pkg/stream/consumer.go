// Package stream consumes the server-sent-event channel carrying interim
// progress for an in-flight run.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/quantora/simrun/pkg/client"
	"github.com/quantora/simrun/pkg/emitter"
)

// Event is one status push from the backend.
type Event struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Detail   string  `json:"detail,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Consumer opens the event stream for a run and translates pushes into
// throttled log lines and progress updates. The stream is a best-effort
// progress channel: its failure never fails the run.
//
// The *client.Client passed in must not carry a global timeout, or the
// stream dies with it.
type Consumer struct {
	client  *client.Client
	emitter *emitter.Emitter
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewConsumer(c *client.Client, em *emitter.Emitter, logger *slog.Logger) *Consumer {
	return &Consumer{
		client:  c,
		emitter: em,
		logger:  logger.With("module", "stream_consumer"),
	}
}

// Consume opens the stream scoped to runID and blocks until it closes,
// errors or is aborted. The underlying connection is released on every exit
// path. Returns nil on natural close, the context error when aborted, and
// the transport error otherwise.
func (s *Consumer) Consume(parent context.Context, runID string) error {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	defer s.Abort()

	resp, err := s.client.Request(ctx, http.MethodGet, "/simulate/"+runID+"/stream", nil, map[string]string{
		"Accept":        "text/event-stream",
		"Cache-Control": "no-cache",
	})
	if err != nil {
		s.emitter.Log("Stream error: " + err.Error())

		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		err := client.StatusError(resp.StatusCode, raw)
		s.emitter.Log("Stream error: " + err.Error())

		return err
	}

	s.emitter.Log("Connected to run stream")
	s.logger.InfoContext(ctx, "Stream opened", "run_id", runID)

	err = s.readLoop(resp.Body)

	switch {
	case ctx.Err() != nil:
		s.emitter.Log("Run stream aborted")

		return ctx.Err()
	case err != nil:
		s.emitter.Log("Stream error: " + err.Error())

		return err
	default:
		s.emitter.Log("Run stream closed")

		return nil
	}
}

func (s *Consumer) readLoop(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data []string

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if len(data) > 0 {
				s.handlePayload(strings.Join(data, "\n"))
				data = data[:0]
			}

			continue
		}

		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimSpace(rest))
		}
		// event:, id:, retry: and comment lines carry nothing we consume.
	}

	if len(data) > 0 {
		s.handlePayload(strings.Join(data, "\n"))
	}

	return scanner.Err()
}

// handlePayload parses one event payload. Malformed payloads are dropped;
// a broken heartbeat must not kill the stream.
func (s *Consumer) handlePayload(payload string) {
	var ev Event

	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		s.logger.Debug("Dropping malformed stream payload", "error", err)

		return
	}

	if ev.Status == "" {
		return
	}

	s.emitter.Progress(ev.Progress)
	s.emitter.Log(formatEvent(ev))
}

func formatEvent(ev Event) string {
	line := fmt.Sprintf("%s | %.0f%%", ev.Status, ev.Progress)

	if ev.Detail != "" {
		line += " | " + ev.Detail
	}

	if ev.Error != "" {
		line += " | error: " + ev.Error
	}

	return line
}

// Abort cancels the open stream. It is idempotent and a no-op when no
// stream is open.
func (s *Consumer) Abort() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
