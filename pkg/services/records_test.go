package services_test

import (
	"context"
	"testing"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/persistence"
	"github.com/dukex/stepwise/pkg/services"
	"github.com/dukex/stepwise/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecords_UpdateAttributes(t *testing.T) {
	ctx := context.Background()
	ref := models.RecordRef{Model: "subscription", ID: "1"}

	store := testutil.NewMemoryPersistence()
	records := services.NewRecords(discardLogger(), store)

	_, err := records.Get(ctx, ref)
	assert.True(t, persistence.IsRecordNotFound(err))

	created, err := records.UpdateAttributes(ctx, ref, map[string]any{"amount": 10, "note": "first"})
	require.NoError(t, err)
	assert.Equal(t, 10, created.Attributes["amount"])
	assert.False(t, created.CreatedAt.IsZero())

	moved := store.Snapshot(ref)
	moved.SetField("state", "B")
	store.Put(moved)

	updated, err := records.UpdateAttributes(ctx, ref, map[string]any{"amount": 20, "note": nil})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.Attributes["amount"])
	assert.NotContains(t, updated.Attributes, "note")
	assert.Equal(t, "B", updated.Field("state"))

	loaded, err := records.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, updated.Attributes, loaded.Attributes)
}

func TestRecords_UpdateAttributes_InvalidRef(t *testing.T) {
	records := services.NewRecords(discardLogger(), testutil.NewMemoryPersistence())

	_, err := records.UpdateAttributes(context.Background(), models.RecordRef{Model: "subscription"}, nil)
	assert.True(t, services.IsValidationError(err))
}
