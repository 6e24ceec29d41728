package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/stepwise/pkg/catalog"
	"github.com/dukex/stepwise/pkg/persistence"
	"github.com/dukex/stepwise/pkg/process"
	"github.com/dukex/stepwise/pkg/rules"
)

// Stack is the transition engine with the collaborators it is built from.
type Stack struct {
	Persistence persistence.Persistence
	Rules       *rules.Engine
	Registry    *process.Registry
	Dispatcher  *process.Dispatcher
	Engine      *process.Engine
}

// NewStack builds an engine over store dispatching to methods and to the
// rules later registered on Stack.Rules.
func NewStack(logger *slog.Logger, store persistence.Persistence, methods *process.MethodRegistry, opts ...process.Option) *Stack {
	ruleEngine := rules.NewEngine(logger)
	registry := process.NewRegistry(logger.With("module", "step_registry"), store)
	dispatcher := process.NewDispatcher(logger.With("module", "hook_dispatcher"), methods, ruleEngine)

	return &Stack{
		Persistence: store,
		Rules:       ruleEngine,
		Registry:    registry,
		Dispatcher:  dispatcher,
		Engine:      process.NewEngine(logger.With("module", "transition_engine"), registry, dispatcher, store, opts...),
	}
}

// RegisterRules registers the rules of the catalog at path. Rules live in
// memory only, so every process evaluating rule hooks registers them.
func (s *Stack) RegisterRules(path string) error {
	loaded, err := catalog.LoadFile(path)
	if err != nil {
		return err
	}

	return s.register(loaded)
}

func (s *Stack) register(loaded *catalog.Catalog) error {
	for _, definition := range loaded.Rules {
		if err := s.Rules.Register(definition); err != nil {
			return fmt.Errorf("failed to register rule %s: %w", definition.ID, err)
		}
	}

	return nil
}

// LoadCatalog registers the rules of the catalog at path, imports its
// processes and checks that every imported hook resolves.
func (s *Stack) LoadCatalog(ctx context.Context, logger *slog.Logger, path string) (*catalog.Catalog, *catalog.Result, error) {
	loaded, err := catalog.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}

	if err := s.register(loaded); err != nil {
		return nil, nil, err
	}

	result, err := catalog.NewImporter(logger, s.Persistence).Import(ctx, loaded)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to import catalog %s: %w", path, err)
	}

	for _, declared := range loaded.Processes {
		graph, err := s.Registry.Graph(ctx, declared.Model, declared.Field)
		if err != nil {
			return nil, nil, err
		}

		if err := s.Dispatcher.Validate(graph); err != nil {
			return nil, nil, err
		}
	}

	return loaded, result, nil
}
