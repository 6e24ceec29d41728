package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent(StepTransitionedEvent)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, StepTransitionedEvent, event.Type)
	assert.False(t, event.Timestamp.IsZero())
	assert.NotNil(t, event.Metadata)
}

func TestStepTransitioned_JSON(t *testing.T) {
	event := StepTransitioned{
		BaseEvent: NewBaseEvent(StepTransitionedEvent),
		Record:    models.RecordRef{Model: "subscription", ID: "42"},
		Field:     "state",
		Operation: OperationNext,
		From:      "draft",
		To:        "review",
	}

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, "step.transitioned", decoded["type"])
	assert.Equal(t, "next", decoded["operation"])
	assert.Equal(t, "draft", decoded["from"])
	assert.Equal(t, "review", decoded["to"])
	assert.Equal(t, map[string]any{"model": "subscription", "id": "42"}, decoded["record"])
	assert.Equal(t, StepTransitionedEvent, event.GetType())
}
