package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/persistence"
	"github.com/dukex/stepwise/pkg/process"
	"github.com/google/uuid"
)

// Store is the configuration side of persistence.
type Store interface {
	persistence.ProcessRepository
	persistence.StepRepository
}

// Result counts what an import changed.
type Result struct {
	Processes int
	Created   int
	Updated   int
}

// Importer writes catalogs into a Store.
type Importer struct {
	store  Store
	logger *slog.Logger
}

// NewImporter creates an importer.
func NewImporter(logger *slog.Logger, store Store) *Importer {
	return &Importer{
		store:  store,
		logger: logger.With("module", "catalog"),
	}
}

// Import saves every process of catalog. Steps already stored under the same
// technical name keep their id so that records and references stay valid;
// stored steps missing from the catalog are left untouched.
func (i *Importer) Import(ctx context.Context, catalog *Catalog) (*Result, error) {
	result := &Result{}

	for _, declared := range catalog.Processes {
		existing, err := i.store.Steps(ctx, declared.Model, declared.Field)
		if err != nil {
			return nil, fmt.Errorf("failed to load steps of %s.%s: %w", declared.Model, declared.Field, err)
		}

		definition, steps, created, err := Resolve(declared, existing)
		if err != nil {
			return nil, err
		}

		if _, err := process.NewGraph(definition, steps); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
		}

		if err := i.store.SaveProcess(ctx, definition); err != nil {
			return nil, fmt.Errorf("failed to save process %s: %w", definition.Key(), err)
		}

		for _, step := range steps {
			if err := i.store.SaveStep(ctx, step); err != nil {
				return nil, fmt.Errorf("failed to save step %s of %s: %w", step.TechnicalName, definition.Key(), err)
			}
		}

		result.Processes++
		result.Created += created
		result.Updated += len(steps) - created

		i.logger.InfoContext(ctx, "Process imported",
			"process", definition.Key().String(),
			"steps", len(steps),
			"created", created)
	}

	return result, nil
}

// Resolve converts a declared process into models, reusing the ids of
// existing steps with the same technical name. It returns the number of new
// steps.
func Resolve(declared Process, existing []*models.StepDescriptor) (*models.Process, []*models.StepDescriptor, int, error) {
	ids := make(map[string]string, len(declared.Steps))

	for _, step := range existing {
		ids[step.TechnicalName] = step.ID
	}

	created := 0

	for _, step := range declared.Steps {
		if _, ok := ids[step.Name]; ok {
			continue
		}

		id, err := uuid.NewV7()
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to generate step id: %w", err)
		}

		ids[step.Name] = id.String()
		created++
	}

	displayName := declared.DisplayName
	if displayName == "" {
		displayName = declared.Model + "." + declared.Field
	}

	definition := &models.Process{
		OwnerModel:   declared.Model,
		ProcessField: declared.Field,
		DisplayName:  displayName,
		InitialStep:  declared.InitialStep,
		Overrides:    declared.Overrides,
	}

	steps := make([]*models.StepDescriptor, 0, len(declared.Steps))

	for _, step := range declared.Steps {
		descriptor, err := step.descriptor(declared, ids)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("%w: process %s: %w", ErrInvalidCatalog, definition.Key(), err)
		}

		steps = append(steps, descriptor)
	}

	return definition, steps, created, nil
}

func (s Step) descriptor(declared Process, ids map[string]string) (*models.StepDescriptor, error) {
	buttons, err := s.Buttons.set()
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", s.Name, err)
	}

	next := make([]string, 0, len(s.Next))

	for _, name := range s.Next {
		id, ok := ids[name]
		if !ok {
			return nil, fmt.Errorf("step %s: successor %s is not declared", s.Name, name)
		}

		next = append(next, id)
	}

	displayName := s.DisplayName
	if displayName == "" {
		displayName = s.Name
	}

	descriptor := &models.StepDescriptor{
		ID:            ids[s.Name],
		OwnerModel:    declared.Model,
		ProcessField:  declared.Field,
		TechnicalName: s.Name,
		DisplayName:   displayName,
		IsVirtual:     s.Virtual,
		NextSteps:     next,
		ViewFragment:  s.Fragment,
		Buttons:       buttons,
		Hooks:         make([]*models.HookDescriptor, 0, len(s.Hooks)),
	}

	for _, hook := range s.Hooks {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate hook id: %w", err)
		}

		hookDescriptor := hook.descriptor()
		hookDescriptor.ID = id.String()
		hookDescriptor.StepID = descriptor.ID

		descriptor.Hooks = append(descriptor.Hooks, hookDescriptor)
	}

	return descriptor, nil
}
