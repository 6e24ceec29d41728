package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/stepwise/pkg/eventbus"
	"github.com/dukex/stepwise/pkg/events"
	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/persistence"
	"github.com/dukex/stepwise/pkg/process"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ViewInvalidator drops the composed views of a process.
type ViewInvalidator interface {
	Invalidate(ctx context.Context, model, field string) error
}

// Process manages step configuration.
type Process struct {
	persistence persistence.Persistence
	views       ViewInvalidator
	publisher   eventbus.EventPublisher
	validate    *validator.Validate
	logger      *slog.Logger
}

// ProcessOption configures a Process service.
type ProcessOption func(*Process)

// WithChangePublisher announces step edits with a ProcessChanged event, so
// that other instances drop their cached views too.
func WithChangePublisher(publisher eventbus.EventPublisher) ProcessOption {
	return func(p *Process) {
		p.publisher = publisher
	}
}

// NewProcess creates a process service. views may be nil.
func NewProcess(logger *slog.Logger, persistence persistence.Persistence, views ViewInvalidator, opts ...ProcessOption) *Process {
	service := &Process{
		persistence: persistence,
		views:       views,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "process_service"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// HealthCheck checks the health of the persistence layer.
func (p *Process) HealthCheck(ctx context.Context) (string, bool) {
	if p.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := p.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Processes lists the configured processes.
func (p *Process) Processes(ctx context.Context) ([]*models.Process, error) {
	processes, err := p.persistence.Processes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	return processes, nil
}

// Steps lists the steps of a process. The process must exist.
func (p *Process) Steps(ctx context.Context, model, field string) ([]*models.StepDescriptor, error) {
	if _, err := p.persistence.Process(ctx, model, field); err != nil {
		return nil, err
	}

	steps, err := p.persistence.Steps(ctx, model, field)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps of %s.%s: %w", model, field, err)
	}

	return steps, nil
}

// Step fetches a step by id.
func (p *Process) Step(ctx context.Context, id string) (*models.StepDescriptor, error) {
	return p.persistence.StepByID(ctx, id)
}

// CreateStep adds a step to the (model, field) process. The resulting graph
// must stay valid: unique technical names and successors inside the graph.
func (p *Process) CreateStep(ctx context.Context, model, field string, step *models.StepDescriptor) (*models.StepDescriptor, error) {
	if step == nil {
		return nil, NewValidationError("CreateStep", "invalid_step", "step cannot be nil", ErrInvalidRequest)
	}

	step.OwnerModel = model
	step.ProcessField = field

	if step.DisplayName == "" {
		step.DisplayName = step.TechnicalName
	}

	if step.NextSteps == nil {
		step.NextSteps = []string{}
	}

	if err := p.validate.Struct(step); err != nil {
		return nil, NewValidationError("CreateStep", "invalid_step", err.Error(), ErrInvalidStep)
	}

	definition, err := p.persistence.Process(ctx, model, field)
	if err != nil {
		return nil, err
	}

	existing, err := p.persistence.Steps(ctx, model, field)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps of %s.%s: %w", model, field, err)
	}

	if slices.ContainsFunc(existing, func(s *models.StepDescriptor) bool { return s.TechnicalName == step.TechnicalName }) {
		return nil, &ServiceError{Op: "CreateStep", Code: "duplicate_step", Message: step.TechnicalName, Err: ErrDuplicateStep}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate step id: %w", err)
	}

	step.ID = id.String()
	step.CreatedAt = time.Now().UTC()
	step.UpdatedAt = step.CreatedAt

	for _, hook := range step.Hooks {
		hook.ID = ""
		hook.StepID = step.ID
	}

	if _, err := process.NewGraph(definition, append(slices.Clone(existing), step)); err != nil {
		return nil, NewValidationError("CreateStep", "invalid_step", err.Error(), ErrInvalidStep)
	}

	if err := p.persistence.SaveStep(ctx, step); err != nil {
		return nil, fmt.Errorf("failed to save step: %w", err)
	}

	p.invalidate(ctx, model, field)

	p.logger.InfoContext(ctx, "Step created", "process", definition.Key().String(), "step", step.TechnicalName, "id", step.ID)

	return step, nil
}

// DeleteStep removes a step. It is refused while another step lists it as a
// successor or a record sits in it. Records with an empty process field sit
// in the initial step, so the initial step is never free.
func (p *Process) DeleteStep(ctx context.Context, id string) error {
	step, err := p.persistence.StepByID(ctx, id)
	if err != nil {
		return err
	}

	definition, err := p.persistence.Process(ctx, step.OwnerModel, step.ProcessField)
	if err != nil {
		return err
	}

	if step.TechnicalName == definition.InitialStep {
		return &ServiceError{
			Op:      "DeleteStep",
			Code:    "step_in_use",
			Message: "initial step of " + definition.Key().String(),
			Err:     persistence.ErrStepInUse,
		}
	}

	siblings, err := p.persistence.Steps(ctx, step.OwnerModel, step.ProcessField)
	if err != nil {
		return fmt.Errorf("failed to list steps of %s: %w", step.ProcessKey(), err)
	}

	for _, sibling := range siblings {
		if sibling.ID != id && slices.Contains(sibling.NextSteps, id) {
			return &ServiceError{Op: "DeleteStep", Code: "step_referenced", Message: "successor of " + sibling.TechnicalName, Err: ErrStepReferenced}
		}
	}

	if err := p.persistence.DeleteStep(ctx, id); err != nil {
		return err
	}

	p.invalidate(ctx, step.OwnerModel, step.ProcessField)

	p.logger.InfoContext(ctx, "Step deleted", "process", step.ProcessKey().String(), "step", step.TechnicalName, "id", id)

	return nil
}

func (p *Process) invalidate(ctx context.Context, model, field string) {
	if p.views != nil {
		if err := p.views.Invalidate(ctx, model, field); err != nil {
			p.logger.WarnContext(ctx, "Failed to invalidate views", "model", model, "field", field, "error", err)
		}
	}

	if p.publisher == nil {
		return
	}

	err := p.publisher.Publish(ctx, models.ProcessKey{Model: model, Field: field}.String(), events.ProcessChanged{
		BaseEvent: events.NewBaseEvent(events.ProcessChangedEvent),
		Model:     model,
		Field:     field,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish process change", "model", model, "field", field, "error", err)
	}
}
