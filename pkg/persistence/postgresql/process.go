package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/persistence"
)

// ProcessRepository handles process definition database operations.
type ProcessRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewProcessRepository creates a new process repository.
func NewProcessRepository(db *sql.DB, logger *slog.Logger) *ProcessRepository {
	return &ProcessRepository{db: db, logger: logger}
}

const processColumns = `
	owner_model
  , process_field
  , display_name
  , initial_step
  , overrides
  , created_at
  , updated_at
`

// GetAll returns all process definitions ordered by model and field.
func (r *ProcessRepository) GetAll(ctx context.Context) ([]*models.Process, error) {
	query := `SELECT ` + processColumns + ` FROM processes ORDER BY owner_model, process_field`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query processes: %w", err)
	}

	defer func(ctx context.Context, r *ProcessRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	processes := make([]*models.Process, 0)

	for rows.Next() {
		process, err := scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan process: %w", err)
		}

		processes = append(processes, process)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating processes: %w", err)
	}

	return processes, nil
}

// Get returns the process of (model, field).
func (r *ProcessRepository) Get(ctx context.Context, model, field string) (*models.Process, error) {
	query := `SELECT ` + processColumns + ` FROM processes WHERE owner_model = $1 AND process_field = $2`

	process, err := scanProcess(r.db.QueryRowContext(ctx, query, model, field))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewProcessError("Process", model, field, persistence.ErrProcessNotFound)
		}

		return nil, persistence.NewProcessError("Process", model, field, err)
	}

	return process, nil
}

// Save upserts a process definition.
func (r *ProcessRepository) Save(ctx context.Context, process *models.Process) error {
	now := time.Now().UTC()

	if process.CreatedAt.IsZero() {
		process.CreatedAt = now
	}

	process.UpdatedAt = now

	overrides := process.Overrides
	if overrides == nil {
		overrides = []models.ViewOverride{}
	}

	overridesJSON, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("failed to marshal overrides: %w", err)
	}

	query := `
		INSERT INTO processes (owner_model, process_field, display_name, initial_step, overrides, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_model, process_field) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			initial_step = EXCLUDED.initial_step,
			overrides = EXCLUDED.overrides,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		process.OwnerModel,
		process.ProcessField,
		process.DisplayName,
		process.InitialStep,
		overridesJSON,
		process.CreatedAt,
		process.UpdatedAt,
	)
	if err != nil {
		return persistence.NewProcessError("SaveProcess", process.OwnerModel, process.ProcessField, err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProcess(row scanner) (*models.Process, error) {
	var (
		process       models.Process
		overridesJSON []byte
	)

	err := row.Scan(
		&process.OwnerModel,
		&process.ProcessField,
		&process.DisplayName,
		&process.InitialStep,
		&overridesJSON,
		&process.CreatedAt,
		&process.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(overridesJSON, &process.Overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal overrides: %w", err)
	}

	return &process, nil
}
