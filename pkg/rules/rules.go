// Package rules evaluates hooks implemented as declarative rules instead of
// registered methods.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/process"
	"github.com/xeipuuv/gojsonschema"
)

// Kind is the type of a rule.
type Kind string

const (
	// KindSchema validates the record attributes against a JSON Schema.
	KindSchema Kind = "schema"
	// KindChoice picks one of two successors from an attribute.
	KindChoice Kind = "choice"
)

// ErrInvalidRule is returned when a definition cannot be compiled.
var ErrInvalidRule = errors.New("invalid rule")

// Definition is the declarative form of a rule.
type Definition struct {
	ID          string         `json:"id"                  validate:"required" yaml:"id"`
	Kind        Kind           `json:"kind"                validate:"required,oneof=schema choice" yaml:"kind"`
	Description string         `json:"description"         yaml:"description"`
	Schema      map[string]any `json:"schema,omitempty"    yaml:"schema,omitempty"`
	Attribute   string         `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	Operator    Operator       `json:"operator,omitempty"  yaml:"operator,omitempty"`
	Value       any            `json:"value,omitempty"     yaml:"value,omitempty"`
	IfTrue      string         `json:"if_true,omitempty"   yaml:"if_true,omitempty"`
	IfFalse     string         `json:"if_false,omitempty"  yaml:"if_false,omitempty"`
}

type rule interface {
	evaluate(record *models.Record) (string, error)
}

// Engine holds compiled rules by id. It implements process.RuleEvaluator.
type Engine struct {
	mu     sync.RWMutex
	rules  map[string]rule
	kinds  map[string]Kind
	logger *slog.Logger
}

var _ process.RuleEvaluator = (*Engine)(nil)

// NewEngine creates an engine with no rules.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{
		rules:  make(map[string]rule),
		kinds:  make(map[string]Kind),
		logger: logger.With("module", "rules"),
	}
}

// Register compiles definition and makes it available under its id,
// replacing any previous rule with the same id.
func (e *Engine) Register(definition Definition) error {
	compiled, err := compile(definition)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrInvalidRule, definition.ID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules[definition.ID] = compiled
	e.kinds[definition.ID] = definition.Kind

	e.logger.Debug("rule registered", "rule", definition.ID, "kind", definition.Kind)

	return nil
}

// IDs returns the registered rule ids, sorted.
func (e *Engine) IDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return slices.Sorted(maps.Keys(e.rules))
}

// Kind returns the kind of the rule ruleID.
func (e *Engine) Kind(ruleID string) (Kind, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	kind, ok := e.kinds[ruleID]

	return kind, ok
}

// Selects reports whether ruleID is a choice rule.
func (e *Engine) Selects(ruleID string) (bool, bool) {
	kind, ok := e.Kind(ruleID)

	return kind == KindChoice, ok
}

// Evaluate runs the rule ruleID against record. Schema rules return an empty
// string or a process.ValidationError; choice rules return the selected step.
func (e *Engine) Evaluate(ctx context.Context, ruleID string, record *models.Record) (string, error) {
	e.mu.RLock()
	compiled, ok := e.rules[ruleID]
	e.mu.RUnlock()

	if !ok {
		return "", &process.ConfigurationError{
			Op:    "Evaluate",
			Model: record.Model,
			Err:   fmt.Errorf("%w: %s", process.ErrRuleNotFound, ruleID),
		}
	}

	result, err := compiled.evaluate(record)
	if err != nil {
		e.logger.DebugContext(ctx, "rule rejected record", "rule", ruleID, "record", record.ID, "error", err)

		return "", err
	}

	return result, nil
}

func compile(definition Definition) (rule, error) {
	switch definition.Kind {
	case KindSchema:
		if len(definition.Schema) == 0 {
			return nil, errors.New("schema rule without schema")
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(definition.Schema))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema: %w", err)
		}

		return &schemaRule{schema: schema}, nil
	case KindChoice:
		if definition.Attribute == "" {
			return nil, errors.New("choice rule without attribute")
		}

		if definition.IfTrue == "" && definition.IfFalse == "" {
			return nil, errors.New("choice rule selects no step")
		}

		return &choiceRule{
			attribute: definition.Attribute,
			operator:  definition.Operator,
			value:     definition.Value,
			ifTrue:    definition.IfTrue,
			ifFalse:   definition.IfFalse,
		}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", definition.Kind)
	}
}

type schemaRule struct {
	schema *gojsonschema.Schema
}

func (r *schemaRule) evaluate(record *models.Record) (string, error) {
	attributes := record.Attributes
	if attributes == nil {
		attributes = map[string]any{}
	}

	result, err := r.schema.Validate(gojsonschema.NewGoLoader(attributes))
	if err != nil {
		return "", fmt.Errorf("failed to validate attributes: %w", err)
	}

	if result.Valid() {
		return "", nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, resultError := range result.Errors() {
		messages = append(messages, resultError.String())
	}

	return "", process.NewValidationError(messages...)
}

type choiceRule struct {
	attribute string
	operator  Operator
	value     any
	ifTrue    string
	ifFalse   string
}

func (r *choiceRule) evaluate(record *models.Record) (string, error) {
	value, _ := record.Get(r.attribute)

	var (
		matched bool
		err     error
	)

	if r.operator == "" {
		matched, err = Truthy(value)
	} else {
		matched, err = Compare(r.operator, value, r.value)
	}

	if err != nil {
		return "", fmt.Errorf("attribute %s: %w", r.attribute, err)
	}

	if matched {
		return r.ifTrue, nil
	}

	return r.ifFalse, nil
}
