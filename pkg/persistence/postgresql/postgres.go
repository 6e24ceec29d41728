// Package postgresql provides PostgreSQL persistence for process definitions,
// steps and records.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/persistence"
	"github.com/dukex/stepwise/pkg/persistence/sqlbase"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db          *sql.DB
	logger      *slog.Logger
	processRepo *ProcessRepository
	stepRepo    *StepRepository
	recordRepo  *RecordRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize components
	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:          database,
		logger:      logger,
		processRepo: NewProcessRepository(database, logger),
		stepRepo:    NewStepRepository(database, logger),
		recordRepo:  NewRecordRepository(database, logger, false),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Processes returns all process definitions.
func (p *Persistence) Processes(ctx context.Context) ([]*models.Process, error) {
	return p.processRepo.GetAll(ctx)
}

// Process returns the process definition of (model, field).
func (p *Persistence) Process(ctx context.Context, model, field string) (*models.Process, error) {
	return p.processRepo.Get(ctx, model, field)
}

// SaveProcess upserts a process definition.
func (p *Persistence) SaveProcess(ctx context.Context, process *models.Process) error {
	return p.processRepo.Save(ctx, process)
}

// Steps returns the steps of a process with their successors and hooks.
func (p *Persistence) Steps(ctx context.Context, model, field string) ([]*models.StepDescriptor, error) {
	return p.stepRepo.GetByProcess(ctx, model, field)
}

// StepByID returns a step by its ID.
func (p *Persistence) StepByID(ctx context.Context, id string) (*models.StepDescriptor, error) {
	return p.stepRepo.GetByID(ctx, id)
}

// SaveStep upserts a step, replacing its successors and hooks.
func (p *Persistence) SaveStep(ctx context.Context, step *models.StepDescriptor) error {
	return p.stepRepo.Save(ctx, step)
}

// DeleteStep deletes a step unless a record sits in it.
func (p *Persistence) DeleteStep(ctx context.Context, id string) error {
	return p.stepRepo.Delete(ctx, id)
}

// Load returns a record without locking it.
func (p *Persistence) Load(ctx context.Context, ref models.RecordRef) (*models.Record, error) {
	return p.recordRepo.Load(ctx, ref)
}

// Save upserts a record outside of any unit of work.
func (p *Persistence) Save(ctx context.Context, record *models.Record) error {
	return p.recordRepo.Save(ctx, record)
}

// ListByState returns the records whose field holds step.
func (p *Persistence) ListByState(ctx context.Context, model, field, step string) ([]models.RecordRef, error) {
	return p.recordRepo.ListByState(ctx, model, field, step)
}

// Within runs fn in a transaction. Records loaded through the repository
// given to fn are locked with SELECT ... FOR UPDATE until commit.
func (p *Persistence) Within(ctx context.Context, fn func(ctx context.Context, records persistence.RecordRepository) error) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			rollbackErr := tx.Rollback()
			if rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				p.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rollbackErr)
			}
		}
	}()

	err = fn(ctx, NewRecordRepository(tx, p.logger, true))
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
