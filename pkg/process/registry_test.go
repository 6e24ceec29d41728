package process_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/process"
	"github.com/dukex/stepwise/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testModel = "subscription"
	testField = "state"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func names(steps []*models.StepDescriptor) []string {
	result := make([]string, 0, len(steps))
	for _, step := range steps {
		result = append(result, step.TechnicalName)
	}

	return result
}

func TestRegistry_ReachableFrom(t *testing.T) {
	ctx := context.Background()

	c := testutil.CreateTestStep(testModel, testField, "C")
	b := testutil.CreateTestStep(testModel, testField, "B", testutil.WithNext(c))
	a := testutil.CreateTestStep(testModel, testField, "A", testutil.WithNext(b))
	d := testutil.CreateTestStep(testModel, testField, "D", testutil.WithNext(b))
	isolated := testutil.CreateTestStep(testModel, testField, "E")

	store := testutil.NewMemoryPersistence().
		Seed(testutil.CreateTestProcess(testModel, testField, "A"), a, b, c, d, isolated)
	registry := process.NewRegistry(discardLogger(), store)

	closure, err := registry.ReachableFrom(ctx, testModel, testField, "B")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"A", "B", "C", "D"}, names(closure))
	assert.Equal(t, "B", closure[0].TechnicalName)

	again, err := registry.ReachableFrom(ctx, testModel, testField, "B")
	require.NoError(t, err)
	assert.Equal(t, names(closure), names(again))
}

func TestRegistry_Resolve(t *testing.T) {
	ctx := context.Background()

	a := testutil.CreateTestStep(testModel, testField, "A")
	store := testutil.NewMemoryPersistence().
		Seed(testutil.CreateTestProcess(testModel, testField, "A"), a)
	registry := process.NewRegistry(discardLogger(), store)

	t.Run("existing step", func(t *testing.T) {
		step, err := registry.Resolve(ctx, testModel, testField, "A")
		require.NoError(t, err)
		assert.Equal(t, a.ID, step.ID)
	})

	t.Run("missing step is a configuration error", func(t *testing.T) {
		_, err := registry.Resolve(ctx, testModel, testField, "missing")
		require.Error(t, err)
		assert.True(t, process.IsConfigurationError(err))
		assert.ErrorIs(t, err, process.ErrStepNotFound)
	})

	t.Run("missing process is a configuration error", func(t *testing.T) {
		_, err := registry.Resolve(ctx, "contract", testField, "A")
		require.Error(t, err)
		assert.True(t, process.IsConfigurationError(err))
		assert.ErrorIs(t, err, process.ErrProcessNotFound)
	})
}

func TestNewGraph(t *testing.T) {
	definition := testutil.CreateTestProcess(testModel, testField, "A")

	t.Run("duplicate technical names", func(t *testing.T) {
		first := testutil.CreateTestStep(testModel, testField, "A")
		second := testutil.CreateTestStep(testModel, testField, "A")

		_, err := process.NewGraph(definition, []*models.StepDescriptor{first, second})
		require.Error(t, err)
		assert.ErrorIs(t, err, process.ErrDuplicateStep)
	})

	t.Run("dangling successor", func(t *testing.T) {
		step := testutil.CreateTestStep(testModel, testField, "A", func(s *models.StepDescriptor) {
			s.NextSteps = []string{"unknown-id"}
		})

		_, err := process.NewGraph(definition, []*models.StepDescriptor{step})
		require.Error(t, err)
		assert.ErrorIs(t, err, process.ErrDanglingStep)

		var configErr *process.ConfigurationError
		require.True(t, errors.As(err, &configErr))
		assert.Equal(t, "A", configErr.Step)
	})

	t.Run("cycles are allowed", func(t *testing.T) {
		a := testutil.CreateTestStep(testModel, testField, "A")
		b := testutil.CreateTestStep(testModel, testField, "B", testutil.WithNext(a))
		testutil.WithNext(b)(a)

		graph, err := process.NewGraph(definition, []*models.StepDescriptor{a, b})
		require.NoError(t, err)

		assert.Equal(t, []string{"B"}, names(graph.Successors(a)))
		assert.Equal(t, []string{"B"}, names(graph.Predecessors(a)))
		assert.Equal(t, []string{"A", "B"}, names(graph.ReachableFrom(a)))

		initial, err := graph.Initial()
		require.NoError(t, err)
		assert.Equal(t, "A", initial.TechnicalName)
	})
}
