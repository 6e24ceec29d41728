package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/persistence"
)

// Records reads and edits the domain data of business records.
type Records struct {
	uow    persistence.UnitOfWork
	logger *slog.Logger
}

// NewRecords creates a records service.
func NewRecords(logger *slog.Logger, uow persistence.UnitOfWork) *Records {
	return &Records{
		uow:    uow,
		logger: logger.With("module", "records_service"),
	}
}

// Get loads a record.
func (r *Records) Get(ctx context.Context, ref models.RecordRef) (*models.Record, error) {
	var record *models.Record

	err := r.uow.Within(ctx, func(ctx context.Context, records persistence.RecordRepository) error {
		var err error

		record, err = records.Load(ctx, ref)

		return err
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// UpdateAttributes merges attributes into the record, creating it when it
// does not exist. Process fields and history are never written here: only
// the engine moves records between steps. A nil attribute value removes the
// attribute.
func (r *Records) UpdateAttributes(ctx context.Context, ref models.RecordRef, attributes map[string]any) (*models.Record, error) {
	if ref.Model == "" || ref.ID == "" {
		return nil, NewValidationError("UpdateAttributes", "invalid_record", "model and id are required", ErrInvalidRequest)
	}

	var record *models.Record

	err := r.uow.Within(ctx, func(ctx context.Context, records persistence.RecordRepository) error {
		loaded, err := records.Load(ctx, ref)

		switch {
		case persistence.IsRecordNotFound(err):
			loaded = models.NewRecord(ref.Model, ref.ID)
			loaded.CreatedAt = time.Now().UTC()
		case err != nil:
			return err
		}

		for name, value := range attributes {
			if value == nil {
				delete(loaded.Attributes, name)

				continue
			}

			loaded.Set(name, value)
		}

		loaded.UpdatedAt = time.Now().UTC()

		if err := records.Save(ctx, loaded); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}

		record = loaded

		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "Record attributes updated", "model", ref.Model, "id", ref.ID, "attributes", len(attributes))

	return record, nil
}
