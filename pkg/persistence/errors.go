// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrProcessNotFound indicates no process is declared for a (model, field) pair.
	ErrProcessNotFound = errors.New("process not found")

	// ErrStepNotFound indicates a step was not found by the given identifier.
	ErrStepNotFound = errors.New("step not found")

	// ErrStepInUse indicates a step cannot be removed while records sit in it.
	ErrStepInUse = errors.New("step in use by records")

	// ErrRecordNotFound indicates a business record was not found.
	ErrRecordNotFound = errors.New("record not found")
)

// ProcessError wraps process-related errors with additional context.
type ProcessError struct {
	Op    string // Operation being performed (e.g., "Process", "SaveProcess")
	Model string
	Field string
	Err   error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s operation failed for process %s.%s: %v", e.Op, e.Model, e.Field, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for process errors.
func (e *ProcessError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewProcessError creates a new process error with context.
func NewProcessError(op, model, field string, err error) *ProcessError {
	return &ProcessError{Op: op, Model: model, Field: field, Err: err}
}

// StepError wraps step-related errors with additional context.
type StepError struct {
	Op     string
	StepID string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s operation failed for step %s: %v", e.Op, e.StepID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStepError creates a new step error with context.
func NewStepError(op, stepID string, err error) *StepError {
	return &StepError{Op: op, StepID: stepID, Err: err}
}

// RecordError wraps record-related errors with additional context.
type RecordError struct {
	Op    string
	Model string
	ID    string
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s operation failed for record %s/%s: %v", e.Op, e.Model, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRecordError creates a new record error with context.
func NewRecordError(op, model, id string, err error) *RecordError {
	return &RecordError{Op: op, Model: model, ID: id, Err: err}
}

// IsProcessNotFound checks if an error indicates a process was not found.
func IsProcessNotFound(err error) bool {
	return errors.Is(err, ErrProcessNotFound)
}

// IsStepNotFound checks if an error indicates a step was not found.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}

// IsStepInUse checks if an error indicates a step is still referenced by records.
func IsStepInUse(err error) bool {
	return errors.Is(err, ErrStepInUse)
}

// IsRecordNotFound checks if an error indicates a record was not found.
func IsRecordNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}
