package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/persistence"
)

// RecordRepository handles business record file operations. Records of a
// model live in their own directory.
type RecordRepository struct {
	root string
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(root string) *RecordRepository {
	return &RecordRepository{root: root}
}

// Load returns a record.
func (rr *RecordRepository) Load(_ context.Context, ref models.RecordRef) (*models.Record, error) {
	var record models.Record

	err := readJSON(rr.path(ref.Model, ref.ID), &record)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewRecordError("Load", ref.Model, ref.ID, persistence.ErrRecordNotFound)
		}

		return nil, persistence.NewRecordError("Load", ref.Model, ref.ID, err)
	}

	if record.States == nil {
		record.States = map[string]string{}
	}

	if record.Attributes == nil {
		record.Attributes = map[string]any{}
	}

	return &record, nil
}

// Save creates or replaces a record.
func (rr *RecordRepository) Save(_ context.Context, record *models.Record) error {
	now := time.Now().UTC()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	record.UpdatedAt = now

	err := writeJSON(rr.path(record.Model, record.ID), record)
	if err != nil {
		return persistence.NewRecordError("Save", record.Model, record.ID, err)
	}

	return nil
}

// ListByState returns the records of model whose field holds step, ordered by id.
func (rr *RecordRepository) ListByState(_ context.Context, model, field, step string) ([]models.RecordRef, error) {
	dir := rr.dir(model)

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list record files: %w", err)
	}

	refs := make([]models.RecordRef, 0)

	for _, file := range jsonFiles {
		var record models.Record

		if err := readJSON(filepath.Join(dir, file), &record); err != nil {
			return nil, fmt.Errorf("failed to load record %s: %w", file, err)
		}

		if record.Field(field) == step {
			refs = append(refs, record.Ref())
		}
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].ID < refs[j].ID
	})

	return refs, nil
}

func (rr *RecordRepository) dir(model string) string {
	return filepath.Join(rr.root, "records", url.PathEscape(model))
}

func (rr *RecordRepository) path(model, id string) string {
	return filepath.Join(rr.dir(model), fileName(id))
}
