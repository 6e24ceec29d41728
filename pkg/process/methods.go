package process

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dukex/stepwise/pkg/models"
)

// HookFunc is a hook implementation for before, check, update, validate and
// after points.
type HookFunc func(ctx context.Context, record *models.Record) error

// SelectFunc is a step_over implementation. It returns the technical name of
// the successor to go to, or an empty string to leave the choice to others.
type SelectFunc func(ctx context.Context, record *models.Record) (string, error)

// Method is a named hook implementation registered for an owner model.
type Method struct {
	Name            string
	Kind            models.RuleKind
	FancyName       string
	LongDescription string
	Call            HookFunc
	Select          SelectFunc
}

// HookHandler is implemented by business object types exposing hooks.
type HookHandler interface {
	Model() string
	Methods() []Method
}

type methodKey struct {
	model string
	name  string
}

// MethodRegistry maps (owner model, method name) to hook implementations.
type MethodRegistry struct {
	mu      sync.RWMutex
	methods map[methodKey]Method
}

// NewMethodRegistry creates a registry populated with handlers.
func NewMethodRegistry(handlers ...HookHandler) (*MethodRegistry, error) {
	registry := &MethodRegistry{methods: make(map[methodKey]Method)}

	for _, handler := range handlers {
		if err := registry.Register(handler); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// Register adds every method of handler.
func (r *MethodRegistry) Register(handler HookHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	model := handler.Model()

	for _, method := range handler.Methods() {
		if err := checkMethod(method); err != nil {
			return fmt.Errorf("invalid method %s.%s: %w", model, method.Name, err)
		}

		key := methodKey{model: model, name: method.Name}
		if _, exists := r.methods[key]; exists {
			return fmt.Errorf("method %s.%s registered twice", model, method.Name)
		}

		r.methods[key] = method
	}

	return nil
}

func checkMethod(method Method) error {
	switch {
	case method.Name == "":
		return fmt.Errorf("missing name")
	case !method.Kind.IsValid():
		return fmt.Errorf("unknown rule kind %q", method.Kind)
	case method.Kind == models.RuleKindStepOver && method.Select == nil:
		return fmt.Errorf("step_over methods need a Select function")
	case method.Kind != models.RuleKindStepOver && method.Call == nil:
		return fmt.Errorf("%s methods need a Call function", method.Kind)
	}

	return nil
}

// Lookup returns the method name registered for model.
func (r *MethodRegistry) Lookup(model, name string) (Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	method, ok := r.methods[methodKey{model: model, name: name}]

	return method, ok
}

// Methods lists the methods of model bound to kind, sorted by name. It feeds
// the pickers used to configure hooks.
func (r *MethodRegistry) Methods(model string, kind models.RuleKind) []Method {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]Method, 0)

	for key, method := range r.methods {
		if key.model == model && method.Kind == kind {
			methods = append(methods, method)
		}
	}

	slices.SortFunc(methods, func(a, b Method) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		default:
			return 0
		}
	})

	return methods
}
