// Package persistence provides the storage abstraction layer for process
// definitions, step graphs and business records.
package persistence

import (
	"context"

	"github.com/dukex/stepwise/pkg/models"
)

// ProcessRepository stores process definitions.
type ProcessRepository interface {
	Processes(ctx context.Context) ([]*models.Process, error)
	Process(ctx context.Context, model, field string) (*models.Process, error)
	SaveProcess(ctx context.Context, process *models.Process) error
}

// StepRepository stores the steps of every process.
type StepRepository interface {
	Steps(ctx context.Context, model, field string) ([]*models.StepDescriptor, error)
	StepByID(ctx context.Context, id string) (*models.StepDescriptor, error)
	SaveStep(ctx context.Context, step *models.StepDescriptor) error
	// DeleteStep fails with ErrStepInUse while a record sits in the step.
	DeleteStep(ctx context.Context, id string) error
}

// RecordRepository loads and saves business records.
type RecordRepository interface {
	Load(ctx context.Context, ref models.RecordRef) (*models.Record, error)
	Save(ctx context.Context, record *models.Record) error
	// ListByState returns the records whose field currently holds step.
	ListByState(ctx context.Context, model, field, step string) ([]models.RecordRef, error)
}

// UnitOfWork runs fn atomically. Records loaded through the repository given
// to fn are locked until fn returns, and its writes are kept only when fn
// returns nil.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(ctx context.Context, records RecordRepository) error) error
}

// Persistence is a complete storage backend.
type Persistence interface {
	ProcessRepository
	StepRepository
	RecordRepository
	UnitOfWork

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
