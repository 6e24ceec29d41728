// Package catalog loads process configurations from YAML documents and
// imports them into persistence.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/dukex/stepwise/pkg/batch"
	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/rules"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidCatalog is returned for documents that decode but do not
// describe a usable configuration.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Catalog is a set of process configurations, the rules their hooks use and
// the batch jobs advancing their records.
type Catalog struct {
	Processes []Process          `validate:"dive"      yaml:"processes"`
	Rules     []rules.Definition `validate:"dive"      yaml:"rules"`
	Jobs      []batch.Job        `validate:"dive"      yaml:"jobs"`
}

// Process declares one process field of a model and its steps.
type Process struct {
	Model       string                `validate:"required" yaml:"model"`
	Field       string                `validate:"required" yaml:"field"`
	DisplayName string                `yaml:"display_name"`
	InitialStep string                `validate:"required" yaml:"initial_step"`
	Overrides   []models.ViewOverride `validate:"dive"     yaml:"overrides"`
	Steps       []Step                `validate:"required,min=1,dive" yaml:"steps"`
}

// Step declares a step. Successors are referenced by technical name.
type Step struct {
	Name        string   `validate:"required,max=128" yaml:"name"`
	DisplayName string   `yaml:"display_name"`
	Virtual     bool     `yaml:"virtual"`
	Next        []string `yaml:"next"`
	Fragment    string   `yaml:"fragment"`
	Buttons     Buttons  `yaml:"buttons"`
	Hooks       []Hook   `validate:"dive" yaml:"hooks"`
}

// Buttons lists the enabled buttons of a step by name.
type Buttons struct {
	Enabled []string `yaml:"enabled"`
	Default string   `yaml:"default"`
}

// Hook binds a method or a rule to a step. Exactly one of Method and Rule
// is set.
type Hook struct {
	Kind     models.RuleKind `validate:"required,oneof=step_over before check update validate after" yaml:"kind"`
	Method   string          `yaml:"method"`
	Rule     string          `yaml:"rule"`
	Sequence int             `yaml:"sequence"`
}

// Parse decodes and checks a catalog document.
func Parse(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: document is empty", ErrInvalidCatalog)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var catalog Catalog
	if err := decoder.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	return &catalog, nil
}

// LoadFile reads and parses the catalog at path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	catalog, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return catalog, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross references: successor and
// initial step names, button names and hook targets.
func (c *Catalog) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	seen := make(map[models.ProcessKey]bool, len(c.Processes))
	ruleIDs := make(map[string]bool, len(c.Rules))

	for _, rule := range c.Rules {
		ruleIDs[rule.ID] = true
	}

	for _, process := range c.Processes {
		key := models.ProcessKey{Model: process.Model, Field: process.Field}
		if seen[key] {
			return fmt.Errorf("%w: process %s declared twice", ErrInvalidCatalog, key)
		}

		seen[key] = true

		if err := process.validate(ruleIDs); err != nil {
			return fmt.Errorf("%w: process %s: %w", ErrInvalidCatalog, key, err)
		}
	}

	jobs := make(map[string]bool, len(c.Jobs))

	for _, job := range c.Jobs {
		if jobs[job.Name] {
			return fmt.Errorf("%w: job %s declared twice", ErrInvalidCatalog, job.Name)
		}

		jobs[job.Name] = true
	}

	return nil
}

func (p *Process) validate(ruleIDs map[string]bool) error {
	names := make(map[string]bool, len(p.Steps))

	for _, step := range p.Steps {
		if names[step.Name] {
			return fmt.Errorf("step %s declared twice", step.Name)
		}

		names[step.Name] = true
	}

	if !names[p.InitialStep] {
		return fmt.Errorf("initial step %s is not declared", p.InitialStep)
	}

	for _, step := range p.Steps {
		for _, next := range step.Next {
			if !names[next] {
				return fmt.Errorf("step %s: successor %s is not declared", step.Name, next)
			}
		}

		if _, err := step.Buttons.set(); err != nil {
			return fmt.Errorf("step %s: %w", step.Name, err)
		}

		for _, hook := range step.Hooks {
			switch {
			case hook.Method != "" && hook.Rule != "":
				return fmt.Errorf("step %s: %s hook sets both method and rule", step.Name, hook.Kind)
			case hook.Method == "" && hook.Rule == "":
				return fmt.Errorf("step %s: %s hook sets neither method nor rule", step.Name, hook.Kind)
			// Catalogs without rules may rely on rules loaded from another document.
			case hook.Rule != "" && len(ruleIDs) > 0 && !ruleIDs[hook.Rule]:
				return fmt.Errorf("step %s: rule %s is not declared", step.Name, hook.Rule)
			}
		}
	}

	return nil
}

func (b Buttons) set() (models.ButtonSet, error) {
	enabled := make([]models.Button, 0, len(b.Enabled))

	for _, name := range b.Enabled {
		button, err := models.ButtonFromString(name)
		if err != nil {
			return models.ButtonSet{}, err
		}

		enabled = append(enabled, button)
	}

	var def models.Button

	if b.Default != "" {
		button, err := models.ButtonFromString(b.Default)
		if err != nil {
			return models.ButtonSet{}, err
		}

		def = button
	}

	return models.NewButtonSet(def, enabled...), nil
}

func (h Hook) descriptor() *models.HookDescriptor {
	hook := &models.HookDescriptor{
		RuleKind:           h.Kind,
		ImplementationKind: models.ImplementationCode,
		Reference:          h.Method,
		Sequence:           h.Sequence,
	}

	if h.Rule != "" {
		hook.ImplementationKind = models.ImplementationRule
		hook.Reference = h.Rule
	}

	return hook
}
