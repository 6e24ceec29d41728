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

// RecordRepository handles business record database operations. Bound to a
// transaction with forUpdate set, it locks every record it loads.
type RecordRepository struct {
	db        queryer
	logger    *slog.Logger
	forUpdate bool
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(db queryer, logger *slog.Logger, forUpdate bool) *RecordRepository {
	return &RecordRepository{db: db, logger: logger, forUpdate: forUpdate}
}

// Load returns a record.
func (r *RecordRepository) Load(ctx context.Context, ref models.RecordRef) (*models.Record, error) {
	query := `
		SELECT
			model
		  , id
		  , states
		  , history
		  , attributes
		  , created_at
		  , updated_at
		FROM records
		WHERE model = $1 AND id = $2
	`
	if r.forUpdate {
		query += " FOR UPDATE"
	}

	var (
		record         models.Record
		statesJSON     []byte
		attributesJSON []byte
	)

	err := r.db.QueryRowContext(ctx, query, ref.Model, ref.ID).Scan(
		&record.Model,
		&record.ID,
		&statesJSON,
		&record.History,
		&attributesJSON,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("Load", ref.Model, ref.ID, persistence.ErrRecordNotFound)
		}

		return nil, persistence.NewRecordError("Load", ref.Model, ref.ID, err)
	}

	err = json.Unmarshal(statesJSON, &record.States)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal states: %w", err)
	}

	err = json.Unmarshal(attributesJSON, &record.Attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
	}

	if record.States == nil {
		record.States = map[string]string{}
	}

	if record.Attributes == nil {
		record.Attributes = map[string]any{}
	}

	return &record, nil
}

// Save upserts a record.
func (r *RecordRepository) Save(ctx context.Context, record *models.Record) error {
	now := time.Now().UTC()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	record.UpdatedAt = now

	statesJSON, err := json.Marshal(nonNil(record.States))
	if err != nil {
		return fmt.Errorf("failed to marshal states: %w", err)
	}

	attributesJSON, err := json.Marshal(nonNil(record.Attributes))
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	history := record.History
	if history == "" {
		history = "{}"
	}

	query := `
		INSERT INTO records (model, id, states, history, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (model, id) DO UPDATE SET
			states = EXCLUDED.states,
			history = EXCLUDED.history,
			attributes = EXCLUDED.attributes,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		record.Model,
		record.ID,
		statesJSON,
		history,
		attributesJSON,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRecordError("Save", record.Model, record.ID, err)
	}

	return nil
}

// ListByState returns the records of model whose field holds step, ordered by id.
func (r *RecordRepository) ListByState(ctx context.Context, model, field, step string) ([]models.RecordRef, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM records WHERE model = $1 AND states ->> $2 = $3 ORDER BY id",
		model, field, step)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	defer func(ctx context.Context, r *RecordRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	refs := make([]models.RecordRef, 0)

	for rows.Next() {
		ref := models.RecordRef{Model: model}

		err := rows.Scan(&ref.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		refs = append(refs, ref)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return refs, nil
}

func nonNil[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}

	return m
}
