package rules_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/process"
	"github.com/dukex/stepwise/pkg/rules"
	"github.com/dukex/stepwise/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, definitions ...rules.Definition) *rules.Engine {
	t.Helper()

	engine := rules.NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, definition := range definitions {
		require.NoError(t, engine.Register(definition))
	}

	return engine
}

var positiveAmount = rules.Definition{
	ID:   "positive_amount",
	Kind: rules.KindSchema,
	Schema: map[string]any{
		"type":     "object",
		"required": []any{"amount"},
		"properties": map[string]any{
			"amount": map[string]any{"type": "number", "minimum": 1},
		},
	},
}

func TestEngine_SchemaRule(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t, positiveAmount)

	t.Run("valid attributes", func(t *testing.T) {
		record := testutil.CreateTestRecord("subscription", "1", testutil.WithAttribute("amount", 10))

		result, err := engine.Evaluate(ctx, "positive_amount", record)
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("violation becomes a validation error", func(t *testing.T) {
		record := testutil.CreateTestRecord("subscription", "1", testutil.WithAttribute("amount", -5))

		_, err := engine.Evaluate(ctx, "positive_amount", record)
		require.Error(t, err)
		assert.True(t, process.IsValidationError(err))
	})

	t.Run("missing attribute", func(t *testing.T) {
		record := models.NewRecord("subscription", "1")
		record.Attributes = nil

		_, err := engine.Evaluate(ctx, "positive_amount", record)
		assert.True(t, process.IsValidationError(err))
	})
}

func TestEngine_ChoiceRule(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t,
		rules.Definition{ID: "needs_review", Kind: rules.KindChoice, Attribute: "manual", IfTrue: "review", IfFalse: "sign"},
		rules.Definition{ID: "large_amount", Kind: rules.KindChoice, Attribute: "amount", Operator: rules.OpGreater, Value: 1000, IfTrue: "review"},
	)

	tests := []struct {
		name     string
		rule     string
		record   *models.Record
		expected string
	}{
		{
			name:     "flag set",
			rule:     "needs_review",
			record:   testutil.CreateTestRecord("subscription", "1", testutil.WithAttribute("manual", true)),
			expected: "review",
		},
		{
			name:     "flag cleared",
			rule:     "needs_review",
			record:   testutil.CreateTestRecord("subscription", "1", testutil.WithAttribute("manual", false)),
			expected: "sign",
		},
		{
			name:     "comparison matches",
			rule:     "large_amount",
			record:   testutil.CreateTestRecord("subscription", "1", testutil.WithAttribute("amount", 5000.0)),
			expected: "review",
		},
		{
			name:     "comparison without else branch",
			rule:     "large_amount",
			record:   testutil.CreateTestRecord("subscription", "1", testutil.WithAttribute("amount", 10.0)),
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Evaluate(ctx, tt.rule, tt.record)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEngine_UnknownRule(t *testing.T) {
	engine := newEngine(t)

	_, err := engine.Evaluate(context.Background(), "missing", models.NewRecord("subscription", "1"))
	require.Error(t, err)
	assert.True(t, process.IsConfigurationError(err))
	assert.ErrorIs(t, err, process.ErrRuleNotFound)
}

func TestEngine_Register(t *testing.T) {
	engine := newEngine(t)

	tests := []struct {
		name       string
		definition rules.Definition
	}{
		{name: "unknown kind", definition: rules.Definition{ID: "x", Kind: "script"}},
		{name: "schema rule without schema", definition: rules.Definition{ID: "x", Kind: rules.KindSchema}},
		{name: "invalid schema", definition: rules.Definition{ID: "x", Kind: rules.KindSchema, Schema: map[string]any{"type": 12}}},
		{name: "choice without attribute", definition: rules.Definition{ID: "x", Kind: rules.KindChoice, IfTrue: "a"}},
		{name: "choice without branches", definition: rules.Definition{ID: "x", Kind: rules.KindChoice, Attribute: "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.Register(tt.definition)
			assert.ErrorIs(t, err, rules.ErrInvalidRule)
		})
	}

	require.NoError(t, engine.Register(positiveAmount))
	assert.Equal(t, []string{"positive_amount"}, engine.IDs())
}

func TestEngine_DrivesStepOver(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	review := testutil.CreateTestStep("subscription", "state", "review")
	sign := testutil.CreateTestStep("subscription", "state", "sign")
	start := testutil.CreateTestStep("subscription", "state", "start",
		testutil.WithNext(sign, review),
		testutil.WithRuleHook(models.RuleKindStepOver, "needs_review", 1),
		testutil.WithRuleHook(models.RuleKindCheck, "positive_amount", 1),
	)

	store := testutil.NewMemoryPersistence().
		Seed(testutil.CreateTestProcess("subscription", "state", "start"), start, review, sign).
		Put(testutil.CreateTestRecord("subscription", "1",
			testutil.WithState("state", "start"),
			testutil.WithAttribute("amount", 20),
			testutil.WithAttribute("manual", true),
		))

	methods, err := process.NewMethodRegistry()
	require.NoError(t, err)

	engine := process.NewEngine(logger,
		process.NewRegistry(logger, store),
		process.NewDispatcher(logger, methods, newEngine(t,
			positiveAmount,
			rules.Definition{ID: "needs_review", Kind: rules.KindChoice, Attribute: "manual", IfTrue: "review"},
		)),
		store,
	)

	transition, err := engine.Next(ctx, models.RecordRef{Model: "subscription", ID: "1"}, "state")
	require.NoError(t, err)
	assert.Equal(t, "review", transition.To)
}

func TestEngine_Kind(t *testing.T) {
	engine := newEngine(t,
		positiveAmount,
		rules.Definition{ID: "needs_review", Kind: rules.KindChoice, Attribute: "manual", IfTrue: "review"},
	)

	kind, ok := engine.Kind("positive_amount")
	assert.True(t, ok)
	assert.Equal(t, rules.KindSchema, kind)

	selects, ok := engine.Selects("needs_review")
	assert.True(t, ok)
	assert.True(t, selects)

	selects, ok = engine.Selects("positive_amount")
	assert.True(t, ok)
	assert.False(t, selects)

	_, ok = engine.Selects("missing")
	assert.False(t, ok)

	methods, err := process.NewMethodRegistry()
	require.NoError(t, err)

	graph, err := process.NewGraph(testutil.CreateTestProcess("subscription", "state", "start"), []*models.StepDescriptor{
		testutil.CreateTestStep("subscription", "state", "start",
			testutil.WithRuleHook(models.RuleKindCheck, "needs_review", 1)),
	})
	require.NoError(t, err)

	err = process.NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), methods, engine).Validate(graph)
	assert.ErrorIs(t, err, process.ErrRuleKind)
}
