package process

import (
	"encoding/json"
	"fmt"
	"slices"
)

// History holds the undo stacks of every process field of a record. It is
// persisted on the record as a JSON object mapping field names to the
// technical names visited, oldest first.
type History struct {
	stacks map[string][]string
}

// DecodeHistory parses a persisted history. An empty blob is an empty history.
func DecodeHistory(blob string) (*History, error) {
	h := &History{stacks: map[string][]string{}}

	if blob == "" {
		return h, nil
	}

	if err := json.Unmarshal([]byte(blob), &h.stacks); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}

	if h.stacks == nil {
		h.stacks = map[string][]string{}
	}

	return h, nil
}

// Encode serializes the history. Empty stacks are dropped and keys are
// written in sorted order, so equal histories encode to equal strings.
func (h *History) Encode() (string, error) {
	stacks := make(map[string][]string, len(h.stacks))

	for field, stack := range h.stacks {
		if len(stack) > 0 {
			stacks[field] = stack
		}
	}

	data, err := json.Marshal(stacks)
	if err != nil {
		return "", fmt.Errorf("failed to encode history: %w", err)
	}

	return string(data), nil
}

// Push records name as the latest step left on field.
func (h *History) Push(field, name string) {
	h.stacks[field] = append(h.stacks[field], name)
}

// Pop removes and returns the latest step left on field.
func (h *History) Pop(field string) (string, error) {
	stack := h.stacks[field]
	if len(stack) == 0 {
		return "", &EmptyHistoryError{Field: field}
	}

	name := stack[len(stack)-1]
	h.stacks[field] = stack[:len(stack)-1]

	return name, nil
}

// Len returns the depth of the stack of field.
func (h *History) Len(field string) int {
	return len(h.stacks[field])
}

// Stack returns a copy of the stack of field, oldest first.
func (h *History) Stack(field string) []string {
	return slices.Clone(h.stacks[field])
}
