package subscription

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHooks() *Hooks {
	h := NewHooks(slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	return h
}

func record(attrs map[string]any) *models.Record {
	r := models.NewRecord(Model, "sub-1")
	for k, v := range attrs {
		r.Set(k, v)
	}

	return r
}

func TestHooks_RegisterAll(t *testing.T) {
	registry, err := process.NewMethodRegistry(newTestHooks())
	require.NoError(t, err)

	for _, kind := range models.RuleKinds {
		assert.Len(t, registry.Methods(Model, kind), 1, kind)
	}
}

func TestHooks_RouteByAmount(t *testing.T) {
	h := newTestHooks()

	tests := []struct {
		name   string
		amount any
		want   string
	}{
		{"small amount", 250.0, "sign"},
		{"threshold", ReviewThreshold, "sign"},
		{"large amount", 1500, "review"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := h.routeByAmount(context.Background(), record(map[string]any{"amount": tt.amount}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, next)
		})
	}
}

func TestHooks_CheckAmount(t *testing.T) {
	h := newTestHooks()

	assert.NoError(t, h.checkAmount(context.Background(), record(map[string]any{"amount": 10.0})))

	err := h.checkAmount(context.Background(), record(map[string]any{"amount": 0.0}))
	assert.True(t, process.IsValidationError(err))

	err = h.checkAmount(context.Background(), record(nil))
	assert.True(t, process.IsValidationError(err))

	err = h.checkAmount(context.Background(), record(map[string]any{"amount": "ten"}))
	assert.True(t, process.IsValidationError(err))
}

func TestHooks_ComputeAndCheckTotal(t *testing.T) {
	h := newTestHooks()
	ctx := context.Background()

	r := record(map[string]any{"amount": 200.0, "discount": 25.0})
	require.NoError(t, h.computeTotal(ctx, r))

	total, _ := r.Get("total")
	assert.InDelta(t, 150.0, total, 0.001)
	assert.NoError(t, h.checkTotal(ctx, r))

	r = record(map[string]any{"amount": 200.0})
	require.NoError(t, h.computeTotal(ctx, r))
	total, _ = r.Get("total")
	assert.InDelta(t, 200.0, total, 0.001)

	r = record(map[string]any{"amount": 200.0, "discount": 150.0})
	require.NoError(t, h.computeTotal(ctx, r))
	assert.True(t, process.IsValidationError(h.checkTotal(ctx, r)))
}

func TestHooks_StampStartDate(t *testing.T) {
	h := newTestHooks()

	r := record(nil)
	require.NoError(t, h.stampStartDate(context.Background(), r))

	date, _ := r.Get("start_date")
	assert.Equal(t, "2026-03-01", date)

	r = record(map[string]any{"start_date": "2025-12-31"})
	require.NoError(t, h.stampStartDate(context.Background(), r))

	date, _ = r.Get("start_date")
	assert.Equal(t, "2025-12-31", date)
}

func TestHooks_NotifySigned(t *testing.T) {
	assert.NoError(t, newTestHooks().notifySigned(context.Background(), record(map[string]any{"customer": "ACME"})))
}
