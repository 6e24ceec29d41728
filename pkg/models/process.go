// Package models defines the configuration and runtime data of the step engine.
package models

import "time"

// Process describes one process field of an owner model: the graph of steps
// stored under (OwnerModel, ProcessField) and the declarations the owner makes
// about it.
type Process struct {
	OwnerModel   string         `json:"owner_model"         validate:"required"`
	ProcessField string         `json:"process_field"       validate:"required"`
	DisplayName  string         `json:"display_name"`
	InitialStep  string         `json:"initial_step"        validate:"required"`
	Overrides    []ViewOverride `json:"overrides,omitempty" validate:"dive"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Key returns the (model, field) pair identifying the process.
func (p *Process) Key() ProcessKey {
	return ProcessKey{Model: p.OwnerModel, Field: p.ProcessField}
}

// ProcessKey identifies a process graph.
type ProcessKey struct {
	Model string
	Field string
}

func (k ProcessKey) String() string {
	return k.Model + "." + k.Field
}
