package models

import (
	"slices"
	"time"
)

// StepDescriptor is a node of a per-(model, field) step graph.
type StepDescriptor struct {
	ID            string            `json:"id"`
	OwnerModel    string            `json:"owner_model"    validate:"required"`
	ProcessField  string            `json:"process_field"  validate:"required"`
	TechnicalName string            `json:"technical_name" validate:"required,max=128"`
	DisplayName   string            `json:"display_name"   validate:"required"`
	IsVirtual     bool              `json:"is_virtual"`
	NextSteps     []string          `json:"next_steps"` // Ordered, the first entry is the default successor
	ViewFragment  string            `json:"view_fragment,omitempty"`
	Buttons       ButtonSet         `json:"buttons"`
	Hooks         []*HookDescriptor `json:"hooks,omitempty" validate:"dive"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// IsTerminal reports whether the step has no successor.
func (s *StepDescriptor) IsTerminal() bool {
	return len(s.NextSteps) == 0
}

// ProcessKey returns the graph the step belongs to.
func (s *StepDescriptor) ProcessKey() ProcessKey {
	return ProcessKey{Model: s.OwnerModel, Field: s.ProcessField}
}

// HooksOf returns the hooks bound to kind, in configured order.
func (s *StepDescriptor) HooksOf(kind RuleKind) []*HookDescriptor {
	hooks := make([]*HookDescriptor, 0, len(s.Hooks))

	for _, hook := range s.Hooks {
		if hook.RuleKind == kind {
			hooks = append(hooks, hook)
		}
	}

	slices.SortStableFunc(hooks, func(a, b *HookDescriptor) int {
		return a.Sequence - b.Sequence
	})

	return hooks
}
