package models

import (
	"maps"
	"time"
)

// RecordRef identifies a business record.
type RecordRef struct {
	Model string `json:"model" validate:"required"`
	ID    string `json:"id"    validate:"required"`
}

func (r RecordRef) String() string {
	return r.Model + "/" + r.ID
}

// Record is a business record carrying one or more process fields.
//
// States holds the current step technical name of every process field and
// History the serialized undo stacks shared by all of them. Attributes is the
// domain data hooks read and write.
type Record struct {
	Model      string            `json:"model"`
	ID         string            `json:"id"`
	States     map[string]string `json:"states"`
	History    string            `json:"history"`
	Attributes map[string]any    `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewRecord creates an empty record.
func NewRecord(model, id string) *Record {
	return &Record{
		Model:      model,
		ID:         id,
		States:     map[string]string{},
		Attributes: map[string]any{},
	}
}

// Ref returns the record identity.
func (r *Record) Ref() RecordRef {
	return RecordRef{Model: r.Model, ID: r.ID}
}

// Field returns the value of a process field, empty when unset.
func (r *Record) Field(name string) string {
	return r.States[name]
}

// SetField assigns a process field.
func (r *Record) SetField(name, value string) {
	if r.States == nil {
		r.States = map[string]string{}
	}

	r.States[name] = value
}

// Get returns a domain attribute.
func (r *Record) Get(name string) (any, bool) {
	value, ok := r.Attributes[name]

	return value, ok
}

// Set assigns a domain attribute.
func (r *Record) Set(name string, value any) {
	if r.Attributes == nil {
		r.Attributes = map[string]any{}
	}

	r.Attributes[name] = value
}

// Clone returns a copy whose maps can be mutated independently.
// Attribute values themselves are shared.
func (r *Record) Clone() *Record {
	clone := *r
	clone.States = maps.Clone(r.States)
	clone.Attributes = maps.Clone(r.Attributes)

	if clone.States == nil {
		clone.States = map[string]string{}
	}

	if clone.Attributes == nil {
		clone.Attributes = map[string]any{}
	}

	return &clone
}
