package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/persistence"
)

// ProcessRepository handles process definition file operations.
type ProcessRepository struct {
	root string
}

// NewProcessRepository creates a new process repository.
func NewProcessRepository(root string) *ProcessRepository {
	return &ProcessRepository{root: root}
}

// GetAll returns every process definition, ordered by model and field.
func (pr *ProcessRepository) GetAll(_ context.Context) ([]*models.Process, error) {
	jsonFiles, err := fs.Glob(os.DirFS(pr.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list process files: %w", err)
	}

	processes := make([]*models.Process, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		var process models.Process

		if err := readJSON(filepath.Join(pr.dir(), file), &process); err != nil {
			return nil, fmt.Errorf("failed to load process %s: %w", file, err)
		}

		processes = append(processes, &process)
	}

	sort.Slice(processes, func(i, j int) bool {
		return processes[i].Key().String() < processes[j].Key().String()
	})

	return processes, nil
}

// Get returns the process of (model, field).
func (pr *ProcessRepository) Get(_ context.Context, model, field string) (*models.Process, error) {
	var process models.Process

	err := readJSON(pr.path(model, field), &process)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewProcessError("Process", model, field, persistence.ErrProcessNotFound)
		}

		return nil, persistence.NewProcessError("Process", model, field, err)
	}

	return &process, nil
}

// Save creates or replaces a process definition.
func (pr *ProcessRepository) Save(_ context.Context, process *models.Process) error {
	now := time.Now().UTC()

	if process.CreatedAt.IsZero() {
		process.CreatedAt = now
	}

	process.UpdatedAt = now

	return writeJSON(pr.path(process.OwnerModel, process.ProcessField), process)
}

func (pr *ProcessRepository) dir() string {
	return filepath.Join(pr.root, "processes")
}

func (pr *ProcessRepository) path(model, field string) string {
	return filepath.Join(pr.dir(), fileName(model, field))
}
