// Package events defines event types and structures for step transition notifications.
package events

import (
	"time"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const Topic = "stepwise.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Record lifecycle events.
	StepTransitionedEvent EventType = "step.transitioned"
	StepCompletedEvent    EventType = "step.completed"
	ProcessCancelledEvent EventType = "process.cancelled"

	// Configuration events.
	ProcessChangedEvent EventType = "process.changed"
)

// Operation names the engine operation that produced an event.
type Operation string

const (
	OperationStart    Operation = "start"
	OperationNext     Operation = "next"
	OperationPrevious Operation = "previous"
	OperationComplete Operation = "complete"
	OperationCancel   Operation = "cancel"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StepTransitioned is published once a record's process field has moved and
// the change is committed.
type StepTransitioned struct {
	BaseEvent

	Record    models.RecordRef `json:"record"`
	Field     string           `json:"field"`
	Operation Operation        `json:"operation"`
	From      string           `json:"from"`
	To        string           `json:"to"`
}

func (s StepTransitioned) GetType() EventType {
	return StepTransitionedEvent
}

// StepCompleted is published when a step's data is committed without moving.
type StepCompleted struct {
	BaseEvent

	Record models.RecordRef `json:"record"`
	Field  string           `json:"field"`
	Step   string           `json:"step"`
}

func (s StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type ProcessCancelled struct {
	BaseEvent

	Record models.RecordRef `json:"record"`
	Field  string           `json:"field"`
	Step   string           `json:"step"`
}

func (p ProcessCancelled) GetType() EventType {
	return ProcessCancelledEvent
}

// ProcessChanged is published when the steps of a process are edited, so
// cached views can be dropped.
type ProcessChanged struct {
	BaseEvent

	Model string `json:"model"`
	Field string `json:"field"`
}

func (p ProcessChanged) GetType() EventType {
	return ProcessChangedEvent
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]any),
	}
}
