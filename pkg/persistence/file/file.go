// Package file provides file-based persistence for process definitions, steps
// and records. Every entity is a JSON document under the root directory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root        string
	mu          sync.Mutex
	processRepo *ProcessRepository
	stepRepo    *StepRepository
	recordRepo  *RecordRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	recordRepo := NewRecordRepository(cleanRoot)

	return &Persistence{
		root:        cleanRoot,
		processRepo: NewProcessRepository(cleanRoot),
		stepRepo:    NewStepRepository(cleanRoot, recordRepo),
		recordRepo:  recordRepo,
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) Processes(ctx context.Context) ([]*models.Process, error) {
	return fp.processRepo.GetAll(ctx)
}

func (fp *Persistence) Process(ctx context.Context, model, field string) (*models.Process, error) {
	return fp.processRepo.Get(ctx, model, field)
}

func (fp *Persistence) SaveProcess(ctx context.Context, process *models.Process) error {
	return fp.processRepo.Save(ctx, process)
}

func (fp *Persistence) Steps(ctx context.Context, model, field string) ([]*models.StepDescriptor, error) {
	return fp.stepRepo.GetByProcess(ctx, model, field)
}

func (fp *Persistence) StepByID(ctx context.Context, id string) (*models.StepDescriptor, error) {
	return fp.stepRepo.GetByID(ctx, id)
}

func (fp *Persistence) SaveStep(ctx context.Context, step *models.StepDescriptor) error {
	return fp.stepRepo.Save(ctx, step)
}

// DeleteStep removes a step once no record sits in it. It runs under the
// unit of work lock so no transition can move a record into the step
// concurrently.
func (fp *Persistence) DeleteStep(ctx context.Context, id string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.stepRepo.Delete(ctx, id)
}

func (fp *Persistence) Load(ctx context.Context, ref models.RecordRef) (*models.Record, error) {
	return fp.recordRepo.Load(ctx, ref)
}

func (fp *Persistence) Save(ctx context.Context, record *models.Record) error {
	return fp.recordRepo.Save(ctx, record)
}

func (fp *Persistence) ListByState(ctx context.Context, model, field, step string) ([]models.RecordRef, error) {
	return fp.recordRepo.ListByState(ctx, model, field, step)
}

// Within runs fn under a store-wide lock. Records saved by fn are buffered
// and written only when fn returns nil.
func (fp *Persistence) Within(ctx context.Context, fn func(ctx context.Context, records persistence.RecordRepository) error) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	tx := &recordTx{repo: fp.recordRepo, pending: make(map[models.RecordRef]*models.Record)}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	for _, ref := range tx.order {
		if err := fp.recordRepo.Save(ctx, tx.pending[ref]); err != nil {
			return fmt.Errorf("failed to commit record %s/%s: %w", ref.Model, ref.ID, err)
		}
	}

	return nil
}

type recordTx struct {
	repo    *RecordRepository
	pending map[models.RecordRef]*models.Record
	order   []models.RecordRef
}

func (t *recordTx) Load(ctx context.Context, ref models.RecordRef) (*models.Record, error) {
	if record, ok := t.pending[ref]; ok {
		return record.Clone(), nil
	}

	return t.repo.Load(ctx, ref)
}

func (t *recordTx) Save(_ context.Context, record *models.Record) error {
	ref := record.Ref()
	if _, ok := t.pending[ref]; !ok {
		t.order = append(t.order, ref)
	}

	t.pending[ref] = record.Clone()

	return nil
}

func (t *recordTx) ListByState(ctx context.Context, model, field, step string) ([]models.RecordRef, error) {
	return t.repo.ListByState(ctx, model, field, step)
}

// writeJSON atomically replaces path with the JSON encoding of value.
func writeJSON(path string, value any) error {
	err := os.MkdirAll(filepath.Dir(path), 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return nil
}

// readJSON decodes path into value. It reports os.ErrNotExist unchanged.
func readJSON(path string, value any) error {
	body, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, value); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}

	return nil
}

func fileName(parts ...string) string {
	escaped := make([]string, 0, len(parts))
	for _, part := range parts {
		escaped = append(escaped, url.PathEscape(part))
	}

	return strings.Join(escaped, ".") + ".json"
}
