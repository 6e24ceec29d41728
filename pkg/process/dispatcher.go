package process

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/stepwise/pkg/models"
)

// RuleEvaluator evaluates hooks implemented as external rules. For step_over
// hooks the returned string is the selected successor; other kinds ignore it.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, ruleID string, record *models.Record) (string, error)
	// Selects reports whether ruleID names a successor, and whether it is
	// registered at all.
	Selects(ruleID string) (selects, ok bool)
}

// Dispatcher runs the hooks bound to a step.
type Dispatcher struct {
	methods *MethodRegistry
	rules   RuleEvaluator
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher. rules may be nil when no rule hooks are
// configured.
func NewDispatcher(logger *slog.Logger, methods *MethodRegistry, rules RuleEvaluator) *Dispatcher {
	return &Dispatcher{
		methods: methods,
		rules:   rules,
		logger:  logger,
	}
}

// Run executes the hooks of kind on step, in configured order. The first
// failing hook stops the chain and its error is returned as is.
func (d *Dispatcher) Run(ctx context.Context, step *models.StepDescriptor, kind models.RuleKind, record *models.Record) error {
	for _, hook := range step.HooksOf(kind) {
		d.logger.DebugContext(ctx, "Running hook",
			"step", step.TechnicalName,
			"kind", kind,
			"reference", hook.Reference,
			"record", record.ID)

		var err error

		switch hook.ImplementationKind {
		case models.ImplementationCode:
			var method Method

			method, err = d.method(step, hook)
			if err != nil {
				return err
			}

			err = method.Call(ctx, record)
		case models.ImplementationRule:
			if d.rules == nil {
				return newConfigurationError("Run", step.OwnerModel, step.ProcessField, step.TechnicalName, ErrNoRuleEvaluator)
			}

			_, err = d.rules.Evaluate(ctx, hook.Reference, record)
		default:
			return newConfigurationError("Run", step.OwnerModel, step.ProcessField, step.TechnicalName,
				fmt.Errorf("unknown implementation kind %q", hook.ImplementationKind))
		}

		if err != nil {
			d.logger.InfoContext(ctx, "Hook failed",
				"step", step.TechnicalName,
				"kind", kind,
				"reference", hook.Reference,
				"record", record.ID,
				"error", err)

			return err
		}
	}

	return nil
}

// SelectNext runs the step_over hooks of step. The first hook naming a
// successor wins; an empty result means no hook expressed a choice.
func (d *Dispatcher) SelectNext(ctx context.Context, step *models.StepDescriptor, record *models.Record) (string, error) {
	for _, hook := range step.HooksOf(models.RuleKindStepOver) {
		var (
			next string
			err  error
		)

		switch hook.ImplementationKind {
		case models.ImplementationCode:
			var method Method

			method, err = d.method(step, hook)
			if err != nil {
				return "", err
			}

			next, err = method.Select(ctx, record)
		case models.ImplementationRule:
			if d.rules == nil {
				return "", newConfigurationError("SelectNext", step.OwnerModel, step.ProcessField, step.TechnicalName, ErrNoRuleEvaluator)
			}

			next, err = d.rules.Evaluate(ctx, hook.Reference, record)
		default:
			return "", newConfigurationError("SelectNext", step.OwnerModel, step.ProcessField, step.TechnicalName,
				fmt.Errorf("unknown implementation kind %q", hook.ImplementationKind))
		}

		if err != nil {
			return "", err
		}

		if next != "" {
			return next, nil
		}
	}

	return "", nil
}

// Validate checks that every code hook of graph references a method
// registered for the owner model with the matching rule kind, and that every
// rule hook references a registered rule: a successor choice for step_over
// hooks, a check for the others.
func (d *Dispatcher) Validate(graph *Graph) error {
	for _, step := range graph.Steps() {
		for _, hook := range step.Hooks {
			switch hook.ImplementationKind {
			case models.ImplementationCode:
				if _, err := d.method(step, hook); err != nil {
					return err
				}
			case models.ImplementationRule:
				if d.rules == nil {
					return newConfigurationError("Validate", step.OwnerModel, step.ProcessField, step.TechnicalName, ErrNoRuleEvaluator)
				}

				selects, ok := d.rules.Selects(hook.Reference)
				if !ok {
					return newConfigurationError("Validate", step.OwnerModel, step.ProcessField, step.TechnicalName,
						fmt.Errorf("%w: %s", ErrRuleNotFound, hook.Reference))
				}

				if selects != (hook.RuleKind == models.RuleKindStepOver) {
					return newConfigurationError("Validate", step.OwnerModel, step.ProcessField, step.TechnicalName,
						fmt.Errorf("%w: %s on a %s hook", ErrRuleKind, hook.Reference, hook.RuleKind))
				}
			}
		}
	}

	return nil
}

func (d *Dispatcher) method(step *models.StepDescriptor, hook *models.HookDescriptor) (Method, error) {
	method, ok := d.methods.Lookup(step.OwnerModel, hook.Reference)
	if !ok {
		return Method{}, newConfigurationError("Dispatch", step.OwnerModel, step.ProcessField, step.TechnicalName,
			fmt.Errorf("%w: %s", ErrMethodNotFound, hook.Reference))
	}

	if method.Kind != hook.RuleKind {
		return Method{}, newConfigurationError("Dispatch", step.OwnerModel, step.ProcessField, step.TechnicalName,
			fmt.Errorf("%w: %s is a %s method, hook is %s", ErrMethodKind, hook.Reference, method.Kind, hook.RuleKind))
	}

	return method, nil
}
