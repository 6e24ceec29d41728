package catalog_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/dukex/stepwise/pkg/catalog"
	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	loaded, err := catalog.LoadFile(filepath.Join("testdata", "subscription.yaml"))
	require.NoError(t, err)

	require.Len(t, loaded.Processes, 1)
	require.Len(t, loaded.Rules, 2)

	process := loaded.Processes[0]
	assert.Equal(t, "subscription", process.Model)
	assert.Equal(t, "draft", process.InitialStep)
	require.Len(t, process.Overrides, 1)
	assert.Equal(t, models.MergeInsertAfter, process.Overrides[0].Op)

	route := process.Steps[1]
	assert.True(t, route.Virtual)
	assert.Equal(t, []string{"sign", "review"}, route.Next)
	assert.Equal(t, 1000, loaded.Rules[1].Value)

	require.Len(t, loaded.Jobs, 1)
	assert.Equal(t, "review", loaded.Jobs[0].Step)
	assert.Equal(t, "0 2 * * *", loaded.Jobs[0].Cron)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		document string
	}{
		{name: "empty", document: "  \n"},
		{name: "unknown field", document: "processes:\n  - model: a\n    colour: red\n"},
		{
			name: "missing initial step",
			document: `
processes:
  - model: subscription
    field: state
    initial_step: nowhere
    steps:
      - name: draft
`,
		},
		{
			name: "unknown successor",
			document: `
processes:
  - model: subscription
    field: state
    initial_step: draft
    steps:
      - name: draft
        next: [missing]
`,
		},
		{
			name: "duplicate step",
			document: `
processes:
  - model: subscription
    field: state
    initial_step: draft
    steps:
      - name: draft
      - name: draft
`,
		},
		{
			name: "unknown button",
			document: `
processes:
  - model: subscription
    field: state
    initial_step: draft
    steps:
      - name: draft
        buttons:
          enabled: [launch]
`,
		},
		{
			name: "hook with method and rule",
			document: `
processes:
  - model: subscription
    field: state
    initial_step: draft
    steps:
      - name: draft
        hooks:
          - kind: check
            method: check_amount
            rule: positive_amount
`,
		},
		{
			name: "unknown hook kind",
			document: `
processes:
  - model: subscription
    field: state
    initial_step: draft
    steps:
      - name: draft
        hooks:
          - kind: sometimes
            method: check_amount
`,
		},
		{
			name: "duplicate job",
			document: `
jobs:
  - {name: nightly, model: subscription, field: state, step: review}
  - {name: nightly, model: subscription, field: state, step: sign}
`,
		},
		{
			name:     "job without step",
			document: "jobs:\n  - {name: nightly, model: subscription, field: state}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Parse([]byte(tt.document))
			assert.Error(t, err)
		})
	}
}

func TestImporter_Import(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	loaded, err := catalog.LoadFile(filepath.Join("testdata", "subscription.yaml"))
	require.NoError(t, err)

	store := testutil.NewMemoryPersistence()
	importer := catalog.NewImporter(logger, store)

	result, err := importer.Import(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, &catalog.Result{Processes: 1, Created: 4, Updated: 0}, result)

	definition, err := store.Process(ctx, "subscription", "state")
	require.NoError(t, err)
	assert.Equal(t, "Subscription", definition.DisplayName)

	steps, err := store.Steps(ctx, "subscription", "state")
	require.NoError(t, err)
	require.Len(t, steps, 4)

	byName := make(map[string]*models.StepDescriptor, len(steps))
	for _, step := range steps {
		byName[step.TechnicalName] = step
	}

	route := byName["route"]
	assert.Equal(t, []string{byName["sign"].ID, byName["review"].ID}, route.NextSteps)
	assert.Equal(t, "route", route.DisplayName)

	sign := byName["sign"]
	assert.True(t, sign.Buttons.Has(models.ButtonComplete))
	assert.Equal(t, models.ButtonComplete, sign.Buttons.Default())
	require.Len(t, sign.Hooks, 1)
	assert.Equal(t, models.ImplementationCode, sign.Hooks[0].ImplementationKind)
	assert.Equal(t, sign.ID, sign.Hooks[0].StepID)

	draft := byName["draft"]
	require.Len(t, draft.Hooks, 1)
	assert.Equal(t, models.ImplementationRule, draft.Hooks[0].ImplementationKind)
	assert.Equal(t, "positive_amount", draft.Hooks[0].Reference)

	again, err := importer.Import(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, &catalog.Result{Processes: 1, Created: 0, Updated: 4}, again)

	reimported, err := store.StepByID(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "draft", reimported.TechnicalName)
}

func TestResolve_KeepsExistingIDs(t *testing.T) {
	existing := testutil.CreateTestStep("subscription", "state", "draft")

	definition, steps, created, err := catalog.Resolve(catalog.Process{
		Model:       "subscription",
		Field:       "state",
		InitialStep: "draft",
		Steps: []catalog.Step{
			{Name: "draft", Next: []string{"done"}},
			{Name: "done"},
		},
	}, []*models.StepDescriptor{existing})
	require.NoError(t, err)

	assert.Equal(t, "subscription.state", definition.DisplayName)
	assert.Equal(t, 1, created)
	assert.Equal(t, existing.ID, steps[0].ID)
	assert.NotEmpty(t, steps[1].ID)
	assert.Equal(t, []string{steps[1].ID}, steps[0].NextSteps)
}
