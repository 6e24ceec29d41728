package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/persistence"
	"github.com/google/uuid"
)

// StepRepository handles step file operations.
type StepRepository struct {
	root    string
	records *RecordRepository
}

// NewStepRepository creates a new step repository. records is consulted
// before deleting a step.
func NewStepRepository(root string, records *RecordRepository) *StepRepository {
	return &StepRepository{root: root, records: records}
}

// GetByProcess returns the steps of (model, field), ordered by technical name.
func (sr *StepRepository) GetByProcess(ctx context.Context, model, field string) ([]*models.StepDescriptor, error) {
	all, err := sr.getAll(ctx)
	if err != nil {
		return nil, err
	}

	steps := make([]*models.StepDescriptor, 0)

	for _, step := range all {
		if step.OwnerModel == model && step.ProcessField == field {
			steps = append(steps, step)
		}
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].TechnicalName < steps[j].TechnicalName
	})

	return steps, nil
}

// GetByID returns a step by id.
func (sr *StepRepository) GetByID(_ context.Context, id string) (*models.StepDescriptor, error) {
	var step models.StepDescriptor

	err := readJSON(sr.path(id), &step)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewStepError("StepByID", id, persistence.ErrStepNotFound)
		}

		return nil, persistence.NewStepError("StepByID", id, err)
	}

	return &step, nil
}

// Save creates or replaces a step, assigning ids to the step and its hooks.
func (sr *StepRepository) Save(_ context.Context, step *models.StepDescriptor) error {
	now := time.Now().UTC()

	if step.CreatedAt.IsZero() {
		step.CreatedAt = now
	}

	step.UpdatedAt = now

	if step.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate step ID: %w", err)
		}

		step.ID = id.String()
	}

	for _, hook := range step.Hooks {
		hook.StepID = step.ID

		if hook.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("failed to generate hook ID: %w", err)
			}

			hook.ID = id.String()
		}
	}

	return writeJSON(sr.path(step.ID), step)
}

// Delete removes a step. Steps still holding records are kept.
func (sr *StepRepository) Delete(ctx context.Context, id string) error {
	step, err := sr.GetByID(ctx, id)
	if err != nil {
		return err
	}

	refs, err := sr.records.ListByState(ctx, step.OwnerModel, step.ProcessField, step.TechnicalName)
	if err != nil {
		return persistence.NewStepError("DeleteStep", id, err)
	}

	if len(refs) > 0 {
		return persistence.NewStepError("DeleteStep", id, persistence.ErrStepInUse)
	}

	if err := os.Remove(sr.path(id)); err != nil {
		return persistence.NewStepError("DeleteStep", id, err)
	}

	return nil
}

func (sr *StepRepository) getAll(_ context.Context) ([]*models.StepDescriptor, error) {
	jsonFiles, err := fs.Glob(os.DirFS(sr.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list step files: %w", err)
	}

	steps := make([]*models.StepDescriptor, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		var step models.StepDescriptor

		if err := readJSON(filepath.Join(sr.dir(), file), &step); err != nil {
			return nil, fmt.Errorf("failed to load step %s: %w", file, err)
		}

		steps = append(steps, &step)
	}

	return steps, nil
}

func (sr *StepRepository) dir() string {
	return filepath.Join(sr.root, "steps")
}

func (sr *StepRepository) path(id string) string {
	return filepath.Join(sr.dir(), fileName(id))
}
