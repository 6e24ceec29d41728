// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/stepwise/pkg/models"
	"github.com/google/uuid"
)

// CreateTestProcess creates a test Process with default values that can be overridden.
func CreateTestProcess(model, field, initial string, overrides ...func(*models.Process)) *models.Process {
	process := &models.Process{
		OwnerModel:   model,
		ProcessField: field,
		DisplayName:  "Test Process",
		InitialStep:  initial,
	}

	for _, override := range overrides {
		override(process)
	}

	return process
}

// WithOverride appends a view override to the process.
func WithOverride(target string, op models.MergeOp, fragment string) func(*models.Process) {
	return func(p *models.Process) {
		p.Overrides = append(p.Overrides, models.ViewOverride{Target: target, Op: op, Fragment: fragment})
	}
}

// CreateTestStep creates a test StepDescriptor of the (model, field)
// process with default values that can be overridden.
func CreateTestStep(model, field, name string, overrides ...func(*models.StepDescriptor)) *models.StepDescriptor {
	step := &models.StepDescriptor{
		ID:            uuid.New().String(),
		OwnerModel:    model,
		ProcessField:  field,
		TechnicalName: name,
		DisplayName:   name,
		NextSteps:     []string{},
		Buttons:       models.NewButtonSet(models.ButtonNext, models.ButtonNext, models.ButtonPrevious),
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// WithNext sets the successors of the step, in order.
func WithNext(next ...*models.StepDescriptor) func(*models.StepDescriptor) {
	return func(s *models.StepDescriptor) {
		s.NextSteps = make([]string, 0, len(next))
		for _, step := range next {
			s.NextSteps = append(s.NextSteps, step.ID)
		}
	}
}

// WithVirtual marks the step as virtual.
func WithVirtual() func(*models.StepDescriptor) {
	return func(s *models.StepDescriptor) {
		s.IsVirtual = true
	}
}

// WithDisplayName sets the step display name.
func WithDisplayName(name string) func(*models.StepDescriptor) {
	return func(s *models.StepDescriptor) {
		s.DisplayName = name
	}
}

// WithFragment sets the step view fragment.
func WithFragment(fragment string) func(*models.StepDescriptor) {
	return func(s *models.StepDescriptor) {
		s.ViewFragment = fragment
	}
}

// WithButtons replaces the step buttons.
func WithButtons(def models.Button, enabled ...models.Button) func(*models.StepDescriptor) {
	return func(s *models.StepDescriptor) {
		s.Buttons = models.NewButtonSet(def, enabled...)
	}
}

// WithCodeHook binds a registered method to the step.
func WithCodeHook(kind models.RuleKind, method string, sequence int) func(*models.StepDescriptor) {
	return withHook(kind, models.ImplementationCode, method, sequence)
}

// WithRuleHook binds a rule to the step.
func WithRuleHook(kind models.RuleKind, rule string, sequence int) func(*models.StepDescriptor) {
	return withHook(kind, models.ImplementationRule, rule, sequence)
}

func withHook(kind models.RuleKind, impl models.ImplementationKind, reference string, sequence int) func(*models.StepDescriptor) {
	return func(s *models.StepDescriptor) {
		s.Hooks = append(s.Hooks, &models.HookDescriptor{
			ID:                 uuid.New().String(),
			StepID:             s.ID,
			RuleKind:           kind,
			ImplementationKind: impl,
			Reference:          reference,
			Sequence:           sequence,
		})
	}
}

// CreateTestRecord creates a test Record with the given attributes.
func CreateTestRecord(model, id string, overrides ...func(*models.Record)) *models.Record {
	record := models.NewRecord(model, id)

	for _, override := range overrides {
		override(record)
	}

	return record
}

// WithState sets a process field of the record.
func WithState(field, step string) func(*models.Record) {
	return func(r *models.Record) {
		r.SetField(field, step)
	}
}

// WithAttribute sets a domain attribute of the record.
func WithAttribute(name string, value any) func(*models.Record) {
	return func(r *models.Record) {
		r.Set(name, value)
	}
}

// WithHistory sets the serialized history of the record.
func WithHistory(history string) func(*models.Record) {
	return func(r *models.Record) {
		r.History = history
	}
}
