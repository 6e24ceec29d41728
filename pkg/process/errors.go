package process

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration failures. They are wrapped in a ConfigurationError.
var (
	ErrProcessNotFound  = errors.New("process not found")
	ErrStepNotFound     = errors.New("step not found")
	ErrDuplicateStep    = errors.New("duplicate step technical name")
	ErrDanglingStep     = errors.New("successor does not exist")
	ErrNoSuccessor      = errors.New("step has no successor")
	ErrInvalidSuccessor = errors.New("selected step is not a successor")
	ErrVirtualCycle     = errors.New("virtual steps form a cycle")
	ErrMethodNotFound   = errors.New("hook method not registered")
	ErrMethodKind       = errors.New("hook method bound to another rule kind")
	ErrNoRuleEvaluator  = errors.New("no rule evaluator configured")
	ErrRuleNotFound     = errors.New("rule not found")
	ErrRuleKind         = errors.New("rule does not fit the hook kind")
)

var (
	// ErrEmptyHistory is matched by every EmptyHistoryError.
	ErrEmptyHistory = errors.New("no previous step")

	// ErrButtonDisabled rejects an action whose button the step does not offer.
	ErrButtonDisabled = errors.New("button disabled on step")

	// ErrStepChanged rejects a transition expected from another step.
	ErrStepChanged = errors.New("record is not in the expected step")
)

// ConfigurationError reports step or hook configuration that cannot be
// executed. It is fatal for the transition that hit it.
type ConfigurationError struct {
	Op    string
	Model string
	Field string
	Step  string
	Err   error
}

func (e *ConfigurationError) Error() string {
	target := e.Model + "." + e.Field
	if e.Step != "" {
		target += "/" + e.Step
	}

	return fmt.Sprintf("%s: configuration error on %s: %v", e.Op, target, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func newConfigurationError(op, model, field, step string, err error) *ConfigurationError {
	return &ConfigurationError{Op: op, Model: model, Field: field, Step: step, Err: err}
}

// ValidationError is raised by check and validate hooks. It carries the
// user-facing messages collected by the hook.
type ValidationError struct {
	Messages []string
}

// NewValidationError creates a validation error from messages.
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return "validation failed"
	}

	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// EmptyHistoryError is returned when going back from a step that has no
// recorded predecessor.
type EmptyHistoryError struct {
	Field string
}

func (e *EmptyHistoryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, ErrEmptyHistory)
}

func (e *EmptyHistoryError) Is(target error) bool {
	return target == ErrEmptyHistory
}

// HookExecutionError lets hooks attach their name to a failure. The engine
// itself never wraps hook errors.
type HookExecutionError struct {
	Hook string
	Err  error
}

func (e *HookExecutionError) Error() string {
	return fmt.Sprintf("hook %s failed: %v", e.Hook, e.Err)
}

func (e *HookExecutionError) Unwrap() error {
	return e.Err
}

// IsConfigurationError checks if err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError

	return errors.As(err, &target)
}

// IsValidationError checks if err carries a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError

	return errors.As(err, &target)
}

// IsEmptyHistory checks if err reports an empty history.
func IsEmptyHistory(err error) bool {
	return errors.Is(err, ErrEmptyHistory)
}

// IsStepChanged checks if err reports a record found outside the expected step.
func IsStepChanged(err error) bool {
	return errors.Is(err, ErrStepChanged)
}

// IsButtonDisabled checks if err reports a button not offered on the step.
func IsButtonDisabled(err error) bool {
	return errors.Is(err, ErrButtonDisabled)
}

// ValidationMessages returns the messages of a ValidationError in err's chain.
func ValidationMessages(err error) []string {
	var target *ValidationError
	if errors.As(err, &target) {
		return target.Messages
	}

	return nil
}
