// Package events defines the run lifecycle notifications published on the
// event bus so external consumers can follow runs without polling.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/quantora/simrun/pkg/run"
)

type EventType string

// Topic carries every run lifecycle event.
const Topic = "simrun.runs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent        EventType = "run.started"
	RunPhaseCompletedEvent EventType = "run.phase.completed"
	RunFinishedEvent       EventType = "run.finished"
	RunFailedEvent         EventType = "run.failed"
	RunAbortedEvent        EventType = "run.aborted"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
	Symbol    string    `json:"symbol"`
}

func NewBaseEvent(eventType EventType, runID, symbol string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Symbol:    symbol,
	}
}

type RunStarted struct {
	BaseEvent

	Params run.Params `json:"params"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunPhaseCompleted struct {
	BaseEvent

	Phase string `json:"phase"`
}

func (e RunPhaseCompleted) GetType() EventType {
	return RunPhaseCompletedEvent
}

type RunFinished struct {
	BaseEvent

	Summary  run.Summary   `json:"summary"`
	Duration time.Duration `json:"duration"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}

type RunFailed struct {
	BaseEvent

	Phase string `json:"phase"`
	Error string `json:"error"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

type RunAborted struct {
	BaseEvent
}

func (e RunAborted) GetType() EventType {
	return RunAbortedEvent
}
