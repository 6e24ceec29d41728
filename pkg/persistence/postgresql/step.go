package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// StepRepository handles step database operations.
type StepRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStepRepository creates a new step repository.
func NewStepRepository(db *sql.DB, logger *slog.Logger) *StepRepository {
	return &StepRepository{db: db, logger: logger}
}

const stepColumns = `
	id
  , owner_model
  , process_field
  , technical_name
  , display_name
  , is_virtual
  , view_fragment
  , buttons
  , created_at
  , updated_at
`

// GetByProcess returns the steps of (model, field) ordered by technical name.
func (r *StepRepository) GetByProcess(ctx context.Context, model, field string) ([]*models.StepDescriptor, error) {
	query := `SELECT ` + stepColumns + ` FROM steps
		WHERE owner_model = $1 AND process_field = $2
		ORDER BY technical_name`

	rows, err := r.db.QueryContext(ctx, query, model, field)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer func(ctx context.Context, r *StepRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	steps := make([]*models.StepDescriptor, 0)

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		steps = append(steps, step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	err = r.loadRelations(ctx, steps)
	if err != nil {
		return nil, err
	}

	return steps, nil
}

// GetByID returns a step by its ID.
func (r *StepRepository) GetByID(ctx context.Context, id string) (*models.StepDescriptor, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, persistence.NewStepError("StepByID", id, persistence.ErrStepNotFound)
	}

	query := `SELECT ` + stepColumns + ` FROM steps WHERE id = $1`

	step, err := scanStep(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStepError("StepByID", id, persistence.ErrStepNotFound)
		}

		return nil, persistence.NewStepError("StepByID", id, err)
	}

	err = r.loadRelations(ctx, []*models.StepDescriptor{step})
	if err != nil {
		return nil, err
	}

	return step, nil
}

// Save upserts a step and replaces its successors and hooks.
func (r *StepRepository) Save(ctx context.Context, step *models.StepDescriptor) (err error) {
	now := time.Now().UTC()

	if step.CreatedAt.IsZero() {
		step.CreatedAt = now
	}

	step.UpdatedAt = now

	if step.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate step ID: %w", err)
		}

		step.ID = id.String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO steps (id, owner_model, process_field, technical_name, display_name,
			is_virtual, view_fragment, buttons, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			owner_model = EXCLUDED.owner_model,
			process_field = EXCLUDED.process_field,
			technical_name = EXCLUDED.technical_name,
			display_name = EXCLUDED.display_name,
			is_virtual = EXCLUDED.is_virtual,
			view_fragment = EXCLUDED.view_fragment,
			buttons = EXCLUDED.buttons,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, query,
		step.ID,
		step.OwnerModel,
		step.ProcessField,
		step.TechnicalName,
		step.DisplayName,
		step.IsVirtual,
		step.ViewFragment,
		step.Buttons.String(),
		step.CreatedAt,
		step.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStepError("SaveStep", step.ID, err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM step_successors WHERE step_id = $1", step.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing successors: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM step_hooks WHERE step_id = $1", step.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing hooks: %w", err)
	}

	for position, nextID := range step.NextSteps {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO step_successors (step_id, position, next_step_id) VALUES ($1, $2, $3)",
			step.ID, position, nextID)
		if err != nil {
			return fmt.Errorf("failed to save successor %s: %w", nextID, err)
		}
	}

	for _, hook := range step.Hooks {
		hook.StepID = step.ID

		if hook.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("failed to generate hook ID: %w", err)
			}

			hook.ID = id.String()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO step_hooks (id, step_id, rule_kind, implementation_kind, reference, sequence)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			hook.ID, hook.StepID, hook.RuleKind, hook.ImplementationKind, hook.Reference, hook.Sequence)
		if err != nil {
			return fmt.Errorf("failed to save hook %s: %w", hook.Reference, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit step: %w", err)
	}

	return nil
}

// Delete removes a step, its hooks and every edge pointing to it. Steps
// still holding records are kept.
func (r *StepRepository) Delete(ctx context.Context, id string) (err error) {
	if _, err := uuid.Parse(id); err != nil {
		return persistence.NewStepError("DeleteStep", id, persistence.ErrStepNotFound)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var model, field, name string

	err = tx.QueryRowContext(ctx,
		"SELECT owner_model, process_field, technical_name FROM steps WHERE id = $1 FOR UPDATE", id).
		Scan(&model, &field, &name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewStepError("DeleteStep", id, persistence.ErrStepNotFound)
		}

		return persistence.NewStepError("DeleteStep", id, err)
	}

	var inUse bool

	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM records WHERE model = $1 AND states ->> $2 = $3)", model, field, name).
		Scan(&inUse)
	if err != nil {
		return persistence.NewStepError("DeleteStep", id, err)
	}

	if inUse {
		err = persistence.NewStepError("DeleteStep", id, persistence.ErrStepInUse)

		return err
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM step_successors WHERE next_step_id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete edges to step: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM steps WHERE id = $1", id)
	if err != nil {
		return persistence.NewStepError("DeleteStep", id, err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit step deletion: %w", err)
	}

	return nil
}

func (r *StepRepository) loadRelations(ctx context.Context, steps []*models.StepDescriptor) error {
	if len(steps) == 0 {
		return nil
	}

	byID := make(map[string]*models.StepDescriptor, len(steps))
	ids := make([]string, 0, len(steps))

	for _, step := range steps {
		byID[step.ID] = step
		ids = append(ids, step.ID)
		step.NextSteps = []string{}
	}

	successors, err := r.db.QueryContext(ctx, `
		SELECT step_id, next_step_id FROM step_successors
		WHERE step_id = ANY($1::uuid[])
		ORDER BY step_id, position`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query successors: %w", err)
	}

	for successors.Next() {
		var stepID, nextID string

		if err := successors.Scan(&stepID, &nextID); err != nil {
			_ = successors.Close()

			return fmt.Errorf("failed to scan successor: %w", err)
		}

		byID[stepID].NextSteps = append(byID[stepID].NextSteps, nextID)
	}

	if err := successors.Close(); err != nil {
		return fmt.Errorf("failed to close successors: %w", err)
	}

	if err := successors.Err(); err != nil {
		return fmt.Errorf("error iterating successors: %w", err)
	}

	hooks, err := r.db.QueryContext(ctx, `
		SELECT id, step_id, rule_kind, implementation_kind, reference, sequence FROM step_hooks
		WHERE step_id = ANY($1::uuid[])
		ORDER BY step_id, sequence, id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query hooks: %w", err)
	}

	defer func(ctx context.Context, r *StepRepository) {
		err := hooks.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	for hooks.Next() {
		var hook models.HookDescriptor

		err := hooks.Scan(&hook.ID, &hook.StepID, &hook.RuleKind, &hook.ImplementationKind, &hook.Reference, &hook.Sequence)
		if err != nil {
			return fmt.Errorf("failed to scan hook: %w", err)
		}

		byID[hook.StepID].Hooks = append(byID[hook.StepID].Hooks, &hook)
	}

	return hooks.Err()
}

func scanStep(row scanner) (*models.StepDescriptor, error) {
	var (
		step    models.StepDescriptor
		buttons string
	)

	err := row.Scan(
		&step.ID,
		&step.OwnerModel,
		&step.ProcessField,
		&step.TechnicalName,
		&step.DisplayName,
		&step.IsVirtual,
		&step.ViewFragment,
		&buttons,
		&step.CreatedAt,
		&step.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	step.Buttons, err = models.ParseButtonSet(buttons)
	if err != nil {
		return nil, err
	}

	return &step, nil
}
