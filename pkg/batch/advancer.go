// Package batch advances records in bulk, on demand or on a cron schedule.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/process"
)

// Lister finds the records sitting in a step.
type Lister interface {
	ListByState(ctx context.Context, model, field, step string) ([]models.RecordRef, error)
}

// Stepper moves one record to its next step, provided it still sits in step.
type Stepper interface {
	NextFrom(ctx context.Context, ref models.RecordRef, field, step string) (*process.Transition, error)
}

// Job selects the records a batch run advances.
type Job struct {
	Name  string `json:"name"  validate:"required" yaml:"name"`
	Model string `json:"model" validate:"required" yaml:"model"`
	Field string `json:"field" validate:"required" yaml:"field"`
	Step  string `json:"step"  validate:"required" yaml:"step"`
	Cron  string `json:"cron"  yaml:"cron"`
}

// Failure is a record a run could not advance.
type Failure struct {
	Ref models.RecordRef
	Err error
}

// Report summarizes a run.
type Report struct {
	Job      string
	Selected int
	Advanced int
	// Skipped counts records that left the step after being listed.
	Skipped  int
	Failures []Failure
}

// Failed returns the number of records left in place.
func (r *Report) Failed() int {
	return len(r.Failures)
}

// Advancer runs Next on every record of a step. Each record is its own unit
// of work: a failing record is reported and the run goes on.
type Advancer struct {
	records Lister
	engine  Stepper
	logger  *slog.Logger
}

// NewAdvancer creates an advancer.
func NewAdvancer(logger *slog.Logger, records Lister, engine Stepper) *Advancer {
	return &Advancer{
		records: records,
		engine:  engine,
		logger:  logger.With("module", "batch"),
	}
}

// Advance runs job once. The error is only set when the records could not be
// listed or ctx ended the run early; per record failures are in the report.
func (a *Advancer) Advance(ctx context.Context, job Job) (*Report, error) {
	logger := a.logger.With("job", job.Name, "model", job.Model, "field", job.Field, "step", job.Step)

	refs, err := a.records.ListByState(ctx, job.Model, job.Field, job.Step)
	if err != nil {
		return nil, fmt.Errorf("failed to list records of job %s: %w", job.Name, err)
	}

	report := &Report{Job: job.Name, Selected: len(refs)}

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("job %s interrupted: %w", job.Name, err)
		}

		transition, err := a.engine.NextFrom(ctx, ref, job.Field, job.Step)
		if process.IsStepChanged(err) {
			logger.DebugContext(ctx, "Record left the step, skipped", "record", ref.ID)
			report.Skipped++

			continue
		}

		if err != nil {
			level := slog.LevelWarn
			if !isBusinessError(err) {
				level = slog.LevelError
			}

			logger.Log(ctx, level, "Failed to advance record", "record", ref.ID, "error", err)
			report.Failures = append(report.Failures, Failure{Ref: ref, Err: err})

			continue
		}

		logger.DebugContext(ctx, "Record advanced", "record", ref.ID, "to", transition.To)
		report.Advanced++
	}

	logger.InfoContext(ctx, "Batch run finished",
		"selected", report.Selected,
		"advanced", report.Advanced,
		"skipped", report.Skipped,
		"failed", report.Failed())

	return report, nil
}

// isBusinessError reports failures raised by hooks on purpose.
func isBusinessError(err error) bool {
	var hookErr *process.HookExecutionError

	return process.IsValidationError(err) || errors.As(err, &hookErr)
}
