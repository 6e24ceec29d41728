package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stepwise/pkg/eventbus"
	"github.com/dukex/stepwise/pkg/events"
	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/otelhelper"
	"github.com/dukex/stepwise/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// CancelHandler is called when the cancel button is pressed on a step.
type CancelHandler func(ctx context.Context, record *models.Record, step *models.StepDescriptor) error

// Transition describes the outcome of an engine operation.
type Transition struct {
	Record *models.Record
	Field  string
	From   string
	To     string
}

// Moved reports whether the process field changed.
func (t *Transition) Moved() bool {
	return t.From != t.To
}

// HistoryEntry is an entry of the history picker of a record.
type HistoryEntry struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Current     bool   `json:"current"`
}

// Engine moves records between the steps of their processes.
//
// Every operation loads the record inside a unit of work, runs the hooks of
// the steps involved and saves the record only when all of them succeed.
type Engine struct {
	registry  *Registry
	hooks     *Dispatcher
	uow       persistence.UnitOfWork
	logger    *slog.Logger
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	onCancel  CancelHandler
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher publishes an event after every committed operation.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

// WithTracer traces every operation with tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithCancelHandler sets the handler run by Cancel.
func WithCancelHandler(handler CancelHandler) Option {
	return func(e *Engine) {
		e.onCancel = handler
	}
}

// NewEngine creates a transition engine.
func NewEngine(
	logger *slog.Logger,
	registry *Registry,
	hooks *Dispatcher,
	uow persistence.UnitOfWork,
	opts ...Option,
) *Engine {
	engine := &Engine{
		registry: registry,
		hooks:    hooks,
		uow:      uow,
		logger:   logger,
		tracer:   noop.NewTracerProvider().Tracer("stepwise"),
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Start places a record without a value for field on the initial step of
// the process, running its before hooks. Records already in a step are
// returned unchanged.
func (e *Engine) Start(ctx context.Context, ref models.RecordRef, field string) (*Transition, error) {
	ctx, span := e.startSpan(ctx, "Start", ref, field)
	defer span.End()

	graph, err := e.registry.Graph(ctx, ref.Model, field)
	if err != nil {
		failSpan(span, err)

		return nil, err
	}

	var result *Transition

	err = e.uow.Within(ctx, func(ctx context.Context, records persistence.RecordRepository) error {
		record, err := records.Load(ctx, ref)
		if err != nil {
			return err
		}

		if current := record.Field(field); current != "" {
			result = &Transition{Record: record, Field: field, From: current, To: current}

			return nil
		}

		initial, err := graph.Initial()
		if err != nil {
			return err
		}

		if err := e.hooks.Run(ctx, initial, models.RuleKindBefore, record); err != nil {
			return err
		}

		record.SetField(field, initial.TechnicalName)

		if err := records.Save(ctx, record); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}

		result = &Transition{Record: record, Field: field, To: initial.TechnicalName}

		return nil
	})
	if err != nil {
		failSpan(span, err)

		return nil, err
	}

	if result.Moved() {
		e.publishTransition(ctx, events.OperationStart, result)
	}

	return result, nil
}

// Next validates the current step and moves the record to its successor.
//
// The current step runs its check, update, validate and after hooks. The
// successor is the first answer of its step_over hooks, or the first
// declared successor when none answers. Virtual successors are passed
// through after running their own hooks. The successor's before hooks run
// last, then the step left is pushed on the history.
func (e *Engine) Next(ctx context.Context, ref models.RecordRef, field string) (*Transition, error) {
	return e.next(ctx, ref, field, "")
}

// NextFrom is Next for a record expected to sit in step. A record found in
// another step is left untouched and ErrStepChanged is returned.
func (e *Engine) NextFrom(ctx context.Context, ref models.RecordRef, field, step string) (*Transition, error) {
	return e.next(ctx, ref, field, step)
}

func (e *Engine) next(ctx context.Context, ref models.RecordRef, field, expected string) (*Transition, error) {
	ctx, span := e.startSpan(ctx, "Next", ref, field)
	defer span.End()

	graph, err := e.registry.Graph(ctx, ref.Model, field)
	if err != nil {
		failSpan(span, err)

		return nil, err
	}

	var result *Transition

	err = e.uow.Within(ctx, func(ctx context.Context, records persistence.RecordRepository) error {
		record, err := records.Load(ctx, ref)
		if err != nil {
			return err
		}

		current, err := e.current(graph, record, field)
		if err != nil {
			return err
		}

		if expected != "" && current.TechnicalName != expected {
			return fmt.Errorf("%w: %s is in %s, not %s", ErrStepChanged, ref, current.TechnicalName, expected)
		}

		history, err := DecodeHistory(record.History)
		if err != nil {
			return err
		}

		if err := e.runChain(ctx, current, record, leaveKinds...); err != nil {
			return err
		}

		target, err := e.selectNext(ctx, graph, current, record)
		if err != nil {
			return err
		}

		if err := e.hooks.Run(ctx, target, models.RuleKindBefore, record); err != nil {
			return err
		}

		history.Push(field, current.TechnicalName)

		if record.History, err = history.Encode(); err != nil {
			return err
		}

		record.SetField(field, target.TechnicalName)

		if err := records.Save(ctx, record); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}

		result = &Transition{Record: record, Field: field, From: current.TechnicalName, To: target.TechnicalName}

		return nil
	})
	if err != nil {
		failSpan(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.NextStepKey, result.To))

	e.logger.InfoContext(ctx, "Record moved to next step",
		"model", ref.Model,
		"record", ref.ID,
		"field", field,
		"from", result.From,
		"to", result.To)

	e.publishTransition(ctx, events.OperationNext, result)

	return result, nil
}

// Previous moves the record back to the last step recorded in its history.
// Only the before hooks of that step run.
func (e *Engine) Previous(ctx context.Context, ref models.RecordRef, field string) (*Transition, error) {
	ctx, span := e.startSpan(ctx, "Previous", ref, field)
	defer span.End()

	graph, err := e.registry.Graph(ctx, ref.Model, field)
	if err != nil {
		failSpan(span, err)

		return nil, err
	}

	var result *Transition

	err = e.uow.Within(ctx, func(ctx context.Context, records persistence.RecordRepository) error {
		record, err := records.Load(ctx, ref)
		if err != nil {
			return err
		}

		history, err := DecodeHistory(record.History)
		if err != nil {
			return err
		}

		name, err := history.Pop(field)
		if err != nil {
			return err
		}

		target, err := graph.Resolve(name)
		if err != nil {
			return err
		}

		if err := e.hooks.Run(ctx, target, models.RuleKindBefore, record); err != nil {
			return err
		}

		if record.History, err = history.Encode(); err != nil {
			return err
		}

		from := record.Field(field)
		record.SetField(field, target.TechnicalName)

		if err := records.Save(ctx, record); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}

		result = &Transition{Record: record, Field: field, From: from, To: target.TechnicalName}

		return nil
	})
	if err != nil {
		failSpan(span, err)

		return nil, err
	}

	e.logger.InfoContext(ctx, "Record moved to previous step",
		"model", ref.Model,
		"record", ref.ID,
		"field", field,
		"from", result.From,
		"to", result.To)

	e.publishTransition(ctx, events.OperationPrevious, result)

	return result, nil
}

// Check runs the check hooks of the current step. Nothing is saved.
func (e *Engine) Check(ctx context.Context, ref models.RecordRef, field string) error {
	ctx, span := e.startSpan(ctx, "Check", ref, field)
	defer span.End()

	graph, err := e.registry.Graph(ctx, ref.Model, field)
	if err != nil {
		failSpan(span, err)

		return err
	}

	err = e.uow.Within(ctx, func(ctx context.Context, records persistence.RecordRepository) error {
		record, err := records.Load(ctx, ref)
		if err != nil {
			return err
		}

		current, err := e.current(graph, record, field)
		if err != nil {
			return err
		}

		return e.hooks.Run(ctx, current, models.RuleKindCheck, record)
	})
	if err != nil {
		failSpan(span, err)

		return err
	}

	return nil
}

// Complete validates and saves the domain data of the current step without
// leaving it. The step must enable the complete button.
func (e *Engine) Complete(ctx context.Context, ref models.RecordRef, field string) (*Transition, error) {
	ctx, span := e.startSpan(ctx, "Complete", ref, field)
	defer span.End()

	graph, err := e.registry.Graph(ctx, ref.Model, field)
	if err != nil {
		failSpan(span, err)

		return nil, err
	}

	var result *Transition

	err = e.uow.Within(ctx, func(ctx context.Context, records persistence.RecordRepository) error {
		record, err := records.Load(ctx, ref)
		if err != nil {
			return err
		}

		current, err := e.current(graph, record, field)
		if err != nil {
			return err
		}

		if !IsEnabled(current, models.ButtonComplete) {
			return fmt.Errorf("%w: %s on %s", ErrButtonDisabled, models.ButtonComplete, current.TechnicalName)
		}

		if err := e.runChain(ctx, current, record, leaveKinds...); err != nil {
			return err
		}

		record.SetField(field, current.TechnicalName)

		if err := records.Save(ctx, record); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}

		result = &Transition{Record: record, Field: field, From: current.TechnicalName, To: current.TechnicalName}

		return nil
	})
	if err != nil {
		failSpan(span, err)

		return nil, err
	}

	e.publish(ctx, ref, events.StepCompleted{
		BaseEvent: events.NewBaseEvent(events.StepCompletedEvent),
		Record:    ref,
		Field:     field,
		Step:      result.To,
	})

	return result, nil
}

// Cancel hands the record to the configured cancel handler. The process
// field is left untouched and nothing is saved.
func (e *Engine) Cancel(ctx context.Context, ref models.RecordRef, field string) error {
	ctx, span := e.startSpan(ctx, "Cancel", ref, field)
	defer span.End()

	graph, err := e.registry.Graph(ctx, ref.Model, field)
	if err != nil {
		failSpan(span, err)

		return err
	}

	var step string

	err = e.uow.Within(ctx, func(ctx context.Context, records persistence.RecordRepository) error {
		record, err := records.Load(ctx, ref)
		if err != nil {
			return err
		}

		current, err := e.current(graph, record, field)
		if err != nil {
			return err
		}

		step = current.TechnicalName

		if e.onCancel == nil {
			return nil
		}

		return e.onCancel(ctx, record, current)
	})
	if err != nil {
		failSpan(span, err)

		return err
	}

	e.publish(ctx, ref, events.ProcessCancelled{
		BaseEvent: events.NewBaseEvent(events.ProcessCancelledEvent),
		Record:    ref,
		Field:     field,
		Step:      step,
	})

	return nil
}

// Buttons returns the buttons offered on the record's current step.
func (e *Engine) Buttons(ctx context.Context, ref models.RecordRef, field string) (ButtonState, error) {
	var state ButtonState

	err := e.inspect(ctx, ref, field, func(graph *Graph, record *models.Record, current *models.StepDescriptor) error {
		history, err := DecodeHistory(record.History)
		if err != nil {
			return err
		}

		state = buttonState(current, history, field)

		return nil
	})

	return state, err
}

// Current returns the step the record sits in, the initial step when the
// field is still empty.
func (e *Engine) Current(ctx context.Context, ref models.RecordRef, field string) (*models.StepDescriptor, error) {
	var step *models.StepDescriptor

	err := e.inspect(ctx, ref, field, func(graph *Graph, record *models.Record, current *models.StepDescriptor) error {
		step = current

		return nil
	})

	return step, err
}

// HistorySelection lists the steps visited by the record, oldest first,
// followed by its current step.
func (e *Engine) HistorySelection(ctx context.Context, ref models.RecordRef, field string) ([]HistoryEntry, error) {
	var entries []HistoryEntry

	err := e.inspect(ctx, ref, field, func(graph *Graph, record *models.Record, current *models.StepDescriptor) error {
		history, err := DecodeHistory(record.History)
		if err != nil {
			return err
		}

		stack := history.Stack(field)
		entries = make([]HistoryEntry, 0, len(stack)+1)

		for _, name := range stack {
			entry := HistoryEntry{Name: name, DisplayName: name}
			if step, err := graph.Resolve(name); err == nil {
				entry.DisplayName = step.DisplayName
			}

			entries = append(entries, entry)
		}

		entries = append(entries, HistoryEntry{
			Name:        current.TechnicalName,
			DisplayName: current.DisplayName,
			Current:     true,
		})

		return nil
	})

	return entries, err
}

var leaveKinds = []models.RuleKind{
	models.RuleKindCheck,
	models.RuleKindUpdate,
	models.RuleKindValidate,
	models.RuleKindAfter,
}

var virtualKinds = []models.RuleKind{
	models.RuleKindBefore,
	models.RuleKindCheck,
	models.RuleKindUpdate,
	models.RuleKindValidate,
	models.RuleKindAfter,
}

func (e *Engine) inspect(
	ctx context.Context,
	ref models.RecordRef,
	field string,
	fn func(graph *Graph, record *models.Record, current *models.StepDescriptor) error,
) error {
	graph, err := e.registry.Graph(ctx, ref.Model, field)
	if err != nil {
		return err
	}

	return e.uow.Within(ctx, func(ctx context.Context, records persistence.RecordRepository) error {
		record, err := records.Load(ctx, ref)
		if err != nil {
			return err
		}

		current, err := e.current(graph, record, field)
		if err != nil {
			return err
		}

		return fn(graph, record, current)
	})
}

func (e *Engine) current(graph *Graph, record *models.Record, field string) (*models.StepDescriptor, error) {
	name := record.Field(field)
	if name == "" {
		return graph.Initial()
	}

	return graph.Resolve(name)
}

func (e *Engine) runChain(ctx context.Context, step *models.StepDescriptor, record *models.Record, kinds ...models.RuleKind) error {
	for _, kind := range kinds {
		if err := e.hooks.Run(ctx, step, kind, record); err != nil {
			return err
		}
	}

	return nil
}

// selectNext walks from step to the next non virtual step.
func (e *Engine) selectNext(ctx context.Context, graph *Graph, step *models.StepDescriptor, record *models.Record) (*models.StepDescriptor, error) {
	visited := map[string]bool{}

	for {
		target, err := e.successor(ctx, graph, step, record)
		if err != nil {
			return nil, err
		}

		if !target.IsVirtual {
			return target, nil
		}

		if visited[target.ID] {
			definition := graph.Process()

			return nil, newConfigurationError("Next", definition.OwnerModel, definition.ProcessField, target.TechnicalName, ErrVirtualCycle)
		}

		visited[target.ID] = true

		if err := e.runChain(ctx, target, record, virtualKinds...); err != nil {
			return nil, err
		}

		step = target
	}
}

func (e *Engine) successor(ctx context.Context, graph *Graph, step *models.StepDescriptor, record *models.Record) (*models.StepDescriptor, error) {
	if step.IsTerminal() {
		return nil, newConfigurationError("Next", step.OwnerModel, step.ProcessField, step.TechnicalName, ErrNoSuccessor)
	}

	name, err := e.hooks.SelectNext(ctx, step, record)
	if err != nil {
		return nil, err
	}

	if name == "" {
		return graph.byID[step.NextSteps[0]], nil
	}

	target, ok := graph.byName[name]
	if !ok || !graph.isSuccessor(step, target) {
		return nil, newConfigurationError("Next", step.OwnerModel, step.ProcessField, step.TechnicalName,
			fmt.Errorf("%w: %s", ErrInvalidSuccessor, name))
	}

	return target, nil
}

//nolint:spancheck // spans are ended by the callers
func (e *Engine) startSpan(ctx context.Context, op string, ref models.RecordRef, field string) (context.Context, trace.Span) {
	return otelhelper.StartSpan(ctx, e.tracer, "process."+op,
		attribute.String(otelhelper.ModelKey, ref.Model),
		attribute.String(otelhelper.RecordIDKey, ref.ID),
		attribute.String(otelhelper.FieldKey, field),
		attribute.String(otelhelper.OperationKey, op),
	)
}

func failSpan(span trace.Span, err error) {
	var validation *ValidationError
	if errors.As(err, &validation) {
		otelhelper.SetRejected(span, validation.Messages)

		return
	}

	otelhelper.SetError(span, err)
}

func (e *Engine) publishTransition(ctx context.Context, op events.Operation, result *Transition) {
	ref := result.Record.Ref()

	e.publish(ctx, ref, events.StepTransitioned{
		BaseEvent: events.NewBaseEvent(events.StepTransitionedEvent),
		Record:    ref,
		Field:     result.Field,
		Operation: op,
		From:      result.From,
		To:        result.To,
	})
}

func (e *Engine) publish(ctx context.Context, ref models.RecordRef, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, ref.String(), event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"model", ref.Model,
			"record", ref.ID,
			"error", err)
	}
}
