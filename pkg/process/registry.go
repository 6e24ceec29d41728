// Package process implements the data-driven step engine: step graphs, hook
// dispatch, navigation history and the transition state machine.
package process

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/persistence"
)

// StepGraphProvider supplies process definitions and their steps.
type StepGraphProvider interface {
	Process(ctx context.Context, model, field string) (*models.Process, error)
	Steps(ctx context.Context, model, field string) ([]*models.StepDescriptor, error)
}

// Registry resolves step descriptors of the configured processes.
type Registry struct {
	provider StepGraphProvider
	logger   *slog.Logger
}

// NewRegistry creates a registry reading from provider.
func NewRegistry(logger *slog.Logger, provider StepGraphProvider) *Registry {
	return &Registry{
		provider: provider,
		logger:   logger,
	}
}

// Graph loads and indexes the step graph of (model, field).
func (r *Registry) Graph(ctx context.Context, model, field string) (*Graph, error) {
	definition, err := r.provider.Process(ctx, model, field)
	if err != nil {
		if persistence.IsProcessNotFound(err) {
			return nil, newConfigurationError("Graph", model, field, "", ErrProcessNotFound)
		}

		return nil, fmt.Errorf("failed to load process %s.%s: %w", model, field, err)
	}

	steps, err := r.provider.Steps(ctx, model, field)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps of %s.%s: %w", model, field, err)
	}

	return NewGraph(definition, steps)
}

// Resolve returns the step named name. A missing step is a configuration
// error, never a reason to create one.
func (r *Registry) Resolve(ctx context.Context, model, field, name string) (*models.StepDescriptor, error) {
	graph, err := r.Graph(ctx, model, field)
	if err != nil {
		return nil, err
	}

	return graph.Resolve(name)
}

// ReachableFrom returns the closure of steps connected to the named step.
func (r *Registry) ReachableFrom(ctx context.Context, model, field, name string) ([]*models.StepDescriptor, error) {
	graph, err := r.Graph(ctx, model, field)
	if err != nil {
		return nil, err
	}

	step, err := graph.Resolve(name)
	if err != nil {
		return nil, err
	}

	return graph.ReachableFrom(step), nil
}

// Graph is an indexed, read-only step graph.
type Graph struct {
	definition   *models.Process
	steps        []*models.StepDescriptor
	byID         map[string]*models.StepDescriptor
	byName       map[string]*models.StepDescriptor
	predecessors map[string][]*models.StepDescriptor
}

// NewGraph indexes steps. Duplicate technical names and successors pointing
// outside the graph are configuration errors.
func NewGraph(definition *models.Process, steps []*models.StepDescriptor) (*Graph, error) {
	model, field := definition.OwnerModel, definition.ProcessField

	graph := &Graph{
		definition:   definition,
		steps:        steps,
		byID:         make(map[string]*models.StepDescriptor, len(steps)),
		byName:       make(map[string]*models.StepDescriptor, len(steps)),
		predecessors: make(map[string][]*models.StepDescriptor),
	}

	for _, step := range steps {
		if _, exists := graph.byName[step.TechnicalName]; exists {
			return nil, newConfigurationError("NewGraph", model, field, step.TechnicalName, ErrDuplicateStep)
		}

		graph.byName[step.TechnicalName] = step
		graph.byID[step.ID] = step
	}

	for _, step := range steps {
		for _, nextID := range step.NextSteps {
			if _, ok := graph.byID[nextID]; !ok {
				return nil, newConfigurationError("NewGraph", model, field, step.TechnicalName,
					fmt.Errorf("%w: %s", ErrDanglingStep, nextID))
			}

			graph.predecessors[nextID] = append(graph.predecessors[nextID], step)
		}
	}

	return graph, nil
}

// Process returns the process definition.
func (g *Graph) Process() *models.Process {
	return g.definition
}

// Steps returns every step of the graph.
func (g *Graph) Steps() []*models.StepDescriptor {
	return g.steps
}

// Resolve returns the step with the given technical name.
func (g *Graph) Resolve(name string) (*models.StepDescriptor, error) {
	step, ok := g.byName[name]
	if !ok {
		return nil, newConfigurationError("Resolve", g.definition.OwnerModel, g.definition.ProcessField, name, ErrStepNotFound)
	}

	return step, nil
}

// Initial returns the step records start in.
func (g *Graph) Initial() (*models.StepDescriptor, error) {
	return g.Resolve(g.definition.InitialStep)
}

// Successors returns the steps reachable in one transition, in configured
// order.
func (g *Graph) Successors(step *models.StepDescriptor) []*models.StepDescriptor {
	successors := make([]*models.StepDescriptor, 0, len(step.NextSteps))
	for _, id := range step.NextSteps {
		successors = append(successors, g.byID[id])
	}

	return successors
}

// Predecessors returns the steps declaring step as a successor.
func (g *Graph) Predecessors(step *models.StepDescriptor) []*models.StepDescriptor {
	return g.predecessors[step.ID]
}

// ReachableFrom returns every step connected to step through successor or
// predecessor edges, step first, in breadth-first order. Predecessors are
// followed so that a step inserted before another one is picked up without
// touching the latter.
func (g *Graph) ReachableFrom(step *models.StepDescriptor) []*models.StepDescriptor {
	seen := map[string]bool{step.ID: true}
	queue := []*models.StepDescriptor{step}
	closure := make([]*models.StepDescriptor, 0, len(g.steps))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		closure = append(closure, current)

		neighbours := append(g.Successors(current), g.Predecessors(current)...)
		for _, next := range neighbours {
			if seen[next.ID] {
				continue
			}

			seen[next.ID] = true
			queue = append(queue, next)
		}
	}

	return closure
}

func (g *Graph) isSuccessor(step *models.StepDescriptor, candidate *models.StepDescriptor) bool {
	for _, id := range step.NextSteps {
		if id == candidate.ID {
			return true
		}
	}

	return false
}
