package batch_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/stepwise/pkg/batch"
	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/process"
	"github.com/dukex/stepwise/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubStepper struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (s *stubStepper) NextFrom(_ context.Context, ref models.RecordRef, field, step string) (*process.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, ref.ID)

	if err := s.fail[ref.ID]; err != nil {
		return nil, err
	}

	return &process.Transition{Field: field, From: step, To: "B"}, nil
}

func (s *stubStepper) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.calls)
}

type failingLister struct{}

func (failingLister) ListByState(context.Context, string, string, string) ([]models.RecordRef, error) {
	return nil, errors.New("connection refused")
}

func seededStore() *testutil.MemoryPersistence {
	return testutil.NewMemoryPersistence().
		Put(testutil.CreateTestRecord("subscription", "1", testutil.WithState("state", "A"))).
		Put(testutil.CreateTestRecord("subscription", "2", testutil.WithState("state", "A"))).
		Put(testutil.CreateTestRecord("subscription", "3", testutil.WithState("state", "A"))).
		Put(testutil.CreateTestRecord("subscription", "4", testutil.WithState("state", "B")))
}

var job = batch.Job{Name: "nightly", Model: "subscription", Field: "state", Step: "A"}

func TestAdvancer_Advance(t *testing.T) {
	stepper := &stubStepper{fail: map[string]error{
		"2": process.NewValidationError("amount must be positive"),
	}}

	advancer := batch.NewAdvancer(discardLogger(), seededStore(), stepper)

	report, err := advancer.Advance(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, "nightly", report.Job)
	assert.Equal(t, 3, report.Selected)
	assert.Equal(t, 2, report.Advanced)
	require.Equal(t, 1, report.Failed())
	assert.Equal(t, "2", report.Failures[0].Ref.ID)
	assert.True(t, process.IsValidationError(report.Failures[0].Err))
	assert.ElementsMatch(t, []string{"1", "2", "3"}, stepper.calls)
}

func TestAdvancer_SkipsMovedRecords(t *testing.T) {
	stepper := &stubStepper{fail: map[string]error{
		"3": fmt.Errorf("%w: subscription/3 is in B, not A", process.ErrStepChanged),
	}}

	report, err := batch.NewAdvancer(discardLogger(), seededStore(), stepper).Advance(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Selected)
	assert.Equal(t, 2, report.Advanced)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed())
}

// movingLister moves every listed record to B before handing the list out,
// as a concurrent transition would.
type movingLister struct {
	store *testutil.MemoryPersistence
}

func (l movingLister) ListByState(ctx context.Context, model, field, step string) ([]models.RecordRef, error) {
	refs, err := l.store.ListByState(ctx, model, field, step)
	if err != nil {
		return nil, err
	}

	for _, ref := range refs {
		l.store.Put(testutil.CreateTestRecord(ref.Model, ref.ID, testutil.WithState(field, "B")))
	}

	return refs, nil
}

func TestAdvancer_EngineLeavesMovedRecords(t *testing.T) {
	ctx := context.Background()

	c := testutil.CreateTestStep("subscription", "state", "C")
	b := testutil.CreateTestStep("subscription", "state", "B", testutil.WithNext(c))
	a := testutil.CreateTestStep("subscription", "state", "A", testutil.WithNext(b))

	store := seededStore().Seed(testutil.CreateTestProcess("subscription", "state", "A"), a, b, c)

	methods, err := process.NewMethodRegistry()
	require.NoError(t, err)

	engine := process.NewEngine(discardLogger(),
		process.NewRegistry(discardLogger(), store),
		process.NewDispatcher(discardLogger(), methods, nil),
		store,
	)

	report, err := batch.NewAdvancer(discardLogger(), movingLister{store: store}, engine).Advance(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Selected)
	assert.Equal(t, 0, report.Advanced)
	assert.Equal(t, 3, report.Skipped)

	advanced, err := store.ListByState(ctx, "subscription", "state", "C")
	require.NoError(t, err)
	assert.Empty(t, advanced)
}

func TestAdvancer_ListFailure(t *testing.T) {
	advancer := batch.NewAdvancer(discardLogger(), failingLister{}, &stubStepper{})

	_, err := advancer.Advance(context.Background(), job)
	assert.Error(t, err)
}

func TestAdvancer_CancelledContext(t *testing.T) {
	stepper := &stubStepper{}
	advancer := batch.NewAdvancer(discardLogger(), seededStore(), stepper)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := advancer.Advance(ctx, job)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Advanced)
	assert.Equal(t, 0, stepper.Calls())
}

func TestAdvancer_WithEngine(t *testing.T) {
	ctx := context.Background()

	b := testutil.CreateTestStep("subscription", "state", "B")
	a := testutil.CreateTestStep("subscription", "state", "A", testutil.WithNext(b))

	store := seededStore().Seed(testutil.CreateTestProcess("subscription", "state", "A"), a, b)

	methods, err := process.NewMethodRegistry()
	require.NoError(t, err)

	engine := process.NewEngine(discardLogger(),
		process.NewRegistry(discardLogger(), store),
		process.NewDispatcher(discardLogger(), methods, nil),
		store,
	)

	report, err := batch.NewAdvancer(discardLogger(), store, engine).Advance(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Advanced)

	remaining, err := store.ListByState(ctx, "subscription", "state", "A")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	moved, err := store.ListByState(ctx, "subscription", "state", "B")
	require.NoError(t, err)
	assert.Len(t, moved, 4)
}

func TestScheduler_Add(t *testing.T) {
	scheduler := batch.NewScheduler(discardLogger(), batch.NewAdvancer(discardLogger(), seededStore(), &stubStepper{}))

	t.Run("missing cron", func(t *testing.T) {
		assert.Error(t, scheduler.Add(job))
	})

	t.Run("invalid cron", func(t *testing.T) {
		invalid := job
		invalid.Cron = "every day"
		assert.Error(t, scheduler.Add(invalid))
	})

	t.Run("duplicate name", func(t *testing.T) {
		nightly := job
		nightly.Cron = "0 2 * * *"

		require.NoError(t, scheduler.Add(nightly))
		assert.ErrorIs(t, scheduler.Add(nightly), batch.ErrJobExists)
		assert.Equal(t, 1, scheduler.Jobs())

		scheduler.Remove(nightly.Name)
		assert.Equal(t, 0, scheduler.Jobs())
	})
}

func TestScheduler_Runs(t *testing.T) {
	stepper := &stubStepper{}
	scheduler := batch.NewScheduler(discardLogger(), batch.NewAdvancer(discardLogger(), seededStore(), stepper))

	frequent := job
	frequent.Cron = "@every 1s"
	require.NoError(t, scheduler.Add(frequent))

	scheduler.Start(context.Background())

	assert.Eventually(t, func() bool {
		return stepper.Calls() >= 3
	}, 5*time.Second, 50*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, scheduler.Stop(stopCtx))
}
