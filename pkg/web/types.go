package web

import (
	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/process"
)

// CreateStepRequest represents the request body for adding a step to a process.
type CreateStepRequest struct {
	TechnicalName string        `json:"technical_name" validate:"required,max=128"`
	DisplayName   string        `json:"display_name"`
	IsVirtual     bool          `json:"is_virtual"`
	NextSteps     []string      `json:"next_steps"`
	ViewFragment  string        `json:"view_fragment"`
	Buttons       []string      `json:"buttons"        validate:"dive,oneof=next previous check complete cancel suspend"`
	DefaultButton string        `json:"default_button" validate:"omitempty,oneof=next previous check complete cancel suspend"`
	Hooks         []HookRequest `json:"hooks"          validate:"dive"`
}

// HookRequest represents a hook of a CreateStepRequest.
type HookRequest struct {
	RuleKind           string `json:"rule_kind"           validate:"required,oneof=step_over before check update validate after"`
	ImplementationKind string `json:"implementation_kind" validate:"required,oneof=code rule"`
	Reference          string `json:"reference"           validate:"required"`
	Sequence           int    `json:"sequence"`
}

// UpdateRecordRequest represents the request body for editing record attributes.
// A null value removes the attribute.
type UpdateRecordRequest struct {
	Attributes map[string]any `json:"attributes" validate:"required"`
}

// TransitionResponse is returned by the navigation endpoints.
type TransitionResponse struct {
	Model  string         `json:"model"`
	ID     string         `json:"id"`
	Field  string         `json:"field"`
	From   string         `json:"from"`
	To     string         `json:"to"`
	Moved  bool           `json:"moved"`
	Record *models.Record `json:"record,omitempty"`
}

// StepDescriptor converts the request into a step of no process yet. The
// request must have been validated.
func (r *CreateStepRequest) StepDescriptor() *models.StepDescriptor {
	enabled := make([]models.Button, 0, len(r.Buttons))
	for _, name := range r.Buttons {
		enabled = append(enabled, models.Button(name))
	}

	step := &models.StepDescriptor{
		TechnicalName: r.TechnicalName,
		DisplayName:   r.DisplayName,
		IsVirtual:     r.IsVirtual,
		NextSteps:     r.NextSteps,
		ViewFragment:  r.ViewFragment,
		Buttons:       models.NewButtonSet(models.Button(r.DefaultButton), enabled...),
		Hooks:         make([]*models.HookDescriptor, 0, len(r.Hooks)),
	}

	for _, hook := range r.Hooks {
		step.Hooks = append(step.Hooks, &models.HookDescriptor{
			RuleKind:           models.RuleKind(hook.RuleKind),
			ImplementationKind: models.ImplementationKind(hook.ImplementationKind),
			Reference:          hook.Reference,
			Sequence:           hook.Sequence,
		})
	}

	return step
}

// NewTransitionResponse transforms an engine transition into its API form.
func NewTransitionResponse(transition *process.Transition) TransitionResponse {
	response := TransitionResponse{
		Field:  transition.Field,
		From:   transition.From,
		To:     transition.To,
		Moved:  transition.Moved(),
		Record: transition.Record,
	}

	if transition.Record != nil {
		response.Model = transition.Record.Model
		response.ID = transition.Record.ID
	}

	return response
}
