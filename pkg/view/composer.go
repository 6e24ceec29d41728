// Package view composes the form shown for a record sitting in a process
// step.
package view

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/process"
)

const (
	HeaderID = "process_header"
	BodyID   = "process_body"
)

// Composer builds view documents from step fragments and caches them per
// (model, field, step).
type Composer struct {
	registry *process.Registry
	cache    Cache
	logger   *slog.Logger
}

// NewComposer creates a composer. A nil cache falls back to a MemoryCache.
func NewComposer(logger *slog.Logger, registry *process.Registry, cache Cache) *Composer {
	if cache == nil {
		cache = NewMemoryCache()
	}

	return &Composer{
		registry: registry,
		cache:    cache,
		logger:   logger.With("module", "view_composer"),
	}
}

// Compose returns the form of the (model, field) process for a record in
// step name.
func (c *Composer) Compose(ctx context.Context, model, field, name string) (*models.ViewDocument, error) {
	key := Key{Model: model, Field: field, Step: name}

	document, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		// A broken cache degrades to composing every time.
		c.logger.WarnContext(ctx, "view cache read failed", "model", model, "field", field, "step", name, "error", err)
	}

	if ok {
		return document, nil
	}

	graph, err := c.registry.Graph(ctx, model, field)
	if err != nil {
		return nil, err
	}

	step, err := graph.Resolve(name)
	if err != nil {
		return nil, err
	}

	document, err = compose(graph, step)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, document); err != nil {
		c.logger.WarnContext(ctx, "view cache write failed", "model", model, "field", field, "step", name, "error", err)
	}

	c.logger.DebugContext(ctx, "view composed", "model", model, "field", field, "step", name, "groups", len(document.Steps))

	return document, nil
}

// Invalidate drops the cached views of the (model, field) process.
func (c *Composer) Invalidate(ctx context.Context, model, field string) error {
	if err := c.cache.Invalidate(ctx, model, field); err != nil {
		return fmt.Errorf("failed to invalidate views of %s.%s: %w", model, field, err)
	}

	return nil
}

func compose(graph *process.Graph, step *models.StepDescriptor) (*models.ViewDocument, error) {
	definition := graph.Process()
	field := definition.ProcessField

	body := element("group", "id", BodyID)
	root := element("form", "string", definition.DisplayName).Append(
		element("group", "id", HeaderID).Append(element("field", "name", field, "widget", "statusbar")),
		body,
	)

	closure := graph.ReachableFrom(step)
	names := make([]string, 0, len(closure))

	for _, member := range closure {
		children, err := Parse(member.ViewFragment)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", member.TechnicalName, err)
		}

		group := element("group",
			"id", "group_"+member.TechnicalName,
			"name", "group_"+member.TechnicalName,
			"states", visibility(field, member.TechnicalName),
		)

		body.Append(group.Append(children...))
		names = append(names, member.TechnicalName)
	}

	for i, override := range definition.Overrides {
		if err := Merge(root, override); err != nil {
			return nil, fmt.Errorf("override %d of %s: %w", i, definition.Key(), err)
		}
	}

	return &models.ViewDocument{
		Model:  definition.OwnerModel,
		Field:  field,
		Step:   step.TechnicalName,
		Steps:  names,
		Root:   root,
		Arch:   Render(root),
		Fields: fieldNames(root),
	}, nil
}

func visibility(field, name string) string {
	return fmt.Sprintf("{'invisible': Eval('%s') != '%s'}", field, name)
}

// element builds a node from alternating attribute names and values.
func element(tag string, attrs ...string) *models.ViewNode {
	node := &models.ViewNode{Tag: tag}

	for i := 0; i+1 < len(attrs); i += 2 {
		node.Attrs = append(node.Attrs, models.ViewAttr{Name: attrs[i], Value: attrs[i+1]})
	}

	return node
}

// fieldNames lists the fields the form displays, in document order.
func fieldNames(root *models.ViewNode) []string {
	seen := make(map[string]bool)
	names := make([]string, 0)

	var walk func(node *models.ViewNode)
	walk = func(node *models.ViewNode) {
		if node.Tag == "field" {
			if name, ok := node.Attr("name"); ok && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}

		for _, child := range node.Children {
			walk(child)
		}
	}

	walk(root)

	return names
}
