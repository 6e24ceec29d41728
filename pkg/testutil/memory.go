package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/persistence"
)

// MemoryPersistence is an in-memory persistence.Persistence for tests.
// Records handed out are copies, so a failed unit of work leaves the stored
// state untouched.
type MemoryPersistence struct {
	mu        sync.Mutex
	tx        sync.Mutex
	processes map[models.ProcessKey]*models.Process
	steps     map[string]*models.StepDescriptor
	records   map[models.RecordRef]*models.Record
	saves     int
}

// NewMemoryPersistence creates an empty store.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		processes: make(map[models.ProcessKey]*models.Process),
		steps:     make(map[string]*models.StepDescriptor),
		records:   make(map[models.RecordRef]*models.Record),
	}
}

// Seed stores a process and its steps.
func (m *MemoryPersistence) Seed(process *models.Process, steps ...*models.StepDescriptor) *MemoryPersistence {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processes[process.Key()] = process
	for _, step := range steps {
		m.steps[step.ID] = step
	}

	return m
}

// Put stores a record as is.
func (m *MemoryPersistence) Put(record *models.Record) *MemoryPersistence {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[record.Ref()] = record.Clone()

	return m
}

// Snapshot returns a copy of the stored record.
func (m *MemoryPersistence) Snapshot(ref models.RecordRef) *models.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[ref]
	if !ok {
		return nil
	}

	return record.Clone()
}

// Saves returns the number of committed record saves.
func (m *MemoryPersistence) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.saves
}

func (m *MemoryPersistence) Processes(_ context.Context) ([]*models.Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	processes := make([]*models.Process, 0, len(m.processes))
	for _, process := range m.processes {
		processes = append(processes, process)
	}

	return processes, nil
}

func (m *MemoryPersistence) Process(_ context.Context, model, field string) (*models.Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	process, ok := m.processes[models.ProcessKey{Model: model, Field: field}]
	if !ok {
		return nil, persistence.NewProcessError("Process", model, field, persistence.ErrProcessNotFound)
	}

	return process, nil
}

func (m *MemoryPersistence) SaveProcess(_ context.Context, process *models.Process) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processes[process.Key()] = process

	return nil
}

func (m *MemoryPersistence) Steps(_ context.Context, model, field string) ([]*models.StepDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	steps := make([]*models.StepDescriptor, 0)

	for _, step := range m.steps {
		if step.OwnerModel == model && step.ProcessField == field {
			steps = append(steps, step)
		}
	}

	slices.SortFunc(steps, func(a, b *models.StepDescriptor) int {
		switch {
		case a.TechnicalName < b.TechnicalName:
			return -1
		case a.TechnicalName > b.TechnicalName:
			return 1
		default:
			return 0
		}
	})

	return steps, nil
}

func (m *MemoryPersistence) StepByID(_ context.Context, id string) (*models.StepDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	step, ok := m.steps[id]
	if !ok {
		return nil, persistence.NewStepError("StepByID", id, persistence.ErrStepNotFound)
	}

	return step, nil
}

func (m *MemoryPersistence) SaveStep(_ context.Context, step *models.StepDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.steps[step.ID] = step

	return nil
}

func (m *MemoryPersistence) DeleteStep(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	step, ok := m.steps[id]
	if !ok {
		return persistence.NewStepError("DeleteStep", id, persistence.ErrStepNotFound)
	}

	for _, record := range m.records {
		if record.Model == step.OwnerModel && record.Field(step.ProcessField) == step.TechnicalName {
			return persistence.NewStepError("DeleteStep", id, persistence.ErrStepInUse)
		}
	}

	delete(m.steps, id)

	return nil
}

func (m *MemoryPersistence) Load(_ context.Context, ref models.RecordRef) (*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[ref]
	if !ok {
		return nil, persistence.NewRecordError("Load", ref.Model, ref.ID, persistence.ErrRecordNotFound)
	}

	return record.Clone(), nil
}

func (m *MemoryPersistence) Save(_ context.Context, record *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[record.Ref()] = record.Clone()
	m.saves++

	return nil
}

func (m *MemoryPersistence) ListByState(_ context.Context, model, field, step string) ([]models.RecordRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	refs := make([]models.RecordRef, 0)

	for ref, record := range m.records {
		if ref.Model == model && record.Field(field) == step {
			refs = append(refs, ref)
		}
	}

	slices.SortFunc(refs, func(a, b models.RecordRef) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})

	return refs, nil
}

// Within serializes units of work and keeps their saves only when fn succeeds.
func (m *MemoryPersistence) Within(ctx context.Context, fn func(ctx context.Context, records persistence.RecordRepository) error) error {
	m.tx.Lock()
	defer m.tx.Unlock()

	tx := &memoryTx{store: m, pending: make(map[models.RecordRef]*models.Record)}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	for _, record := range tx.pending {
		_ = m.Save(ctx, record)
	}

	return nil
}

func (m *MemoryPersistence) HealthCheck(_ context.Context) error {
	return nil
}

func (m *MemoryPersistence) Close(_ context.Context) error {
	return nil
}

type memoryTx struct {
	store   *MemoryPersistence
	pending map[models.RecordRef]*models.Record
}

func (t *memoryTx) Load(ctx context.Context, ref models.RecordRef) (*models.Record, error) {
	if record, ok := t.pending[ref]; ok {
		return record.Clone(), nil
	}

	return t.store.Load(ctx, ref)
}

func (t *memoryTx) Save(_ context.Context, record *models.Record) error {
	t.pending[record.Ref()] = record.Clone()

	return nil
}

func (t *memoryTx) ListByState(ctx context.Context, model, field, step string) ([]models.RecordRef, error) {
	return t.store.ListByState(ctx, model, field, step)
}
