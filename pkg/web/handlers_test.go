package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/process"
	"github.com/dukex/stepwise/pkg/services"
	"github.com/dukex/stepwise/pkg/testutil"
	"github.com/dukex/stepwise/pkg/view"
	"github.com/dukex/stepwise/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type subscriptionHooks struct{}

func (subscriptionHooks) Model() string { return "subscription" }

func (subscriptionHooks) Methods() []process.Method {
	return []process.Method{
		{
			Name: "check_amount",
			Kind: models.RuleKindCheck,
			Call: func(_ context.Context, record *models.Record) error {
				amount, _ := record.Get("amount")
				if value, ok := amount.(float64); !ok || value <= 0 {
					return process.NewValidationError("amount must be positive")
				}

				return nil
			},
		},
	}
}

type testApp struct {
	app   *fiber.App
	store *testutil.MemoryPersistence
	steps map[string]*models.StepDescriptor
}

// setupTestApp configures draft -> review -> signed. review checks the
// amount and signed offers the complete button.
func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	signed := testutil.CreateTestStep("subscription", "state", "signed",
		testutil.WithButtons(models.ButtonComplete, models.ButtonPrevious, models.ButtonComplete),
		testutil.WithFragment(`<field name="signature"/>`))
	review := testutil.CreateTestStep("subscription", "state", "review",
		testutil.WithNext(signed),
		testutil.WithCodeHook(models.RuleKindCheck, "check_amount", 1),
		testutil.WithFragment(`<field name="amount"/>`))
	draft := testutil.CreateTestStep("subscription", "state", "draft",
		testutil.WithNext(review),
		testutil.WithDisplayName("Draft"))

	store := testutil.NewMemoryPersistence().
		Seed(testutil.CreateTestProcess("subscription", "state", "draft"), draft, review, signed)

	methods, err := process.NewMethodRegistry(subscriptionHooks{})
	require.NoError(t, err)

	registry := process.NewRegistry(logger, store)
	engine := process.NewEngine(logger, registry, process.NewDispatcher(logger, methods, nil), store)
	composer := view.NewComposer(logger, registry, view.NewMemoryCache())

	handlers := web.NewAPIHandlers(
		services.NewProcess(logger, store, composer),
		services.NewRecords(logger, store),
		engine,
		registry,
		composer,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	handlers.Register(app)

	return &testApp{
		app:   app,
		store: store,
		steps: map[string]*models.StepDescriptor{"draft": draft, "review": review, "signed": signed},
	}
}

func (a *testApp) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, payload
}

func (a *testApp) put(state string, attributes map[string]any) {
	record := testutil.CreateTestRecord("subscription", "1", testutil.WithState("state", state))
	for name, value := range attributes {
		record.Set(name, value)
	}

	a.store.Put(record)
}

func TestAPIHandlers_Navigation(t *testing.T) {
	a := setupTestApp(t)
	a.put("draft", map[string]any{"amount": 10.0})

	status, body := a.do(t, http.MethodPost, "/records/subscription/1/state/next", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var transition web.TransitionResponse
	require.NoError(t, json.Unmarshal(body, &transition))
	assert.Equal(t, "draft", transition.From)
	assert.Equal(t, "review", transition.To)
	assert.True(t, transition.Moved)
	assert.Equal(t, "1", transition.ID)

	status, body = a.do(t, http.MethodPost, "/records/subscription/1/state/previous", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	require.NoError(t, json.Unmarshal(body, &transition))
	assert.Equal(t, "draft", transition.To)

	status, body = a.do(t, http.MethodPost, "/records/subscription/1/state/previous", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "empty_history")
}

func TestAPIHandlers_CheckRejected(t *testing.T) {
	a := setupTestApp(t)
	a.put("review", map[string]any{"amount": -5.0})

	status, body := a.do(t, http.MethodPost, "/records/subscription/1/state/check", nil)
	require.Equal(t, http.StatusUnprocessableEntity, status)

	var problem struct {
		Type     string   `json:"type"`
		Messages []string `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(body, &problem))
	assert.Equal(t, "validation_failed", problem.Type)
	assert.Equal(t, []string{"amount must be positive"}, problem.Messages)

	status, _ = a.do(t, http.MethodPut, "/records/subscription/1", web.UpdateRecordRequest{
		Attributes: map[string]any{"amount": 10},
	})
	require.Equal(t, http.StatusOK, status)

	status, _ = a.do(t, http.MethodPost, "/records/subscription/1/state/check", nil)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, "review", a.store.Snapshot(models.RecordRef{Model: "subscription", ID: "1"}).Field("state"))
}

func TestAPIHandlers_Complete(t *testing.T) {
	a := setupTestApp(t)

	a.put("draft", nil)
	status, body := a.do(t, http.MethodPost, "/records/subscription/1/state/complete", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "button_disabled")

	a.put("signed", nil)
	status, body = a.do(t, http.MethodPost, "/records/subscription/1/state/complete", nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var transition web.TransitionResponse
	require.NoError(t, json.Unmarshal(body, &transition))
	assert.False(t, transition.Moved)
}

func TestAPIHandlers_NoSuccessor(t *testing.T) {
	a := setupTestApp(t)
	a.put("signed", nil)

	status, body := a.do(t, http.MethodPost, "/records/subscription/1/state/next", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, string(body), "configuration_error")
}

func TestAPIHandlers_RecordNotFound(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodPost, "/records/subscription/missing/state/next", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "record_not_found")

	status, _ = a.do(t, http.MethodGet, "/records/subscription/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_ReadSide(t *testing.T) {
	a := setupTestApp(t)
	a.store.Put(testutil.CreateTestRecord("subscription", "1",
		testutil.WithState("state", "review"),
		testutil.WithHistory(`{"state":["draft"]}`),
		testutil.WithAttribute("amount", 10.0),
	))

	t.Run("buttons", func(t *testing.T) {
		status, body := a.do(t, http.MethodGet, "/records/subscription/1/state/buttons", nil)
		require.Equal(t, http.StatusOK, status)

		var buttons process.ButtonState
		require.NoError(t, json.Unmarshal(body, &buttons))
		assert.Equal(t, "review", buttons.Step)
		assert.Equal(t, models.ButtonNext, buttons.Default)
		assert.Contains(t, buttons.Enabled, models.ButtonPrevious)
	})

	t.Run("history", func(t *testing.T) {
		status, body := a.do(t, http.MethodGet, "/records/subscription/1/state/history", nil)
		require.Equal(t, http.StatusOK, status)

		var entries []process.HistoryEntry
		require.NoError(t, json.Unmarshal(body, &entries))
		require.Len(t, entries, 2)
		assert.Equal(t, "Draft", entries[0].DisplayName)
		assert.True(t, entries[1].Current)
	})

	t.Run("view", func(t *testing.T) {
		status, body := a.do(t, http.MethodGet, "/records/subscription/1/state/view", nil)
		require.Equal(t, http.StatusOK, status)

		var document models.ViewDocument
		require.NoError(t, json.Unmarshal(body, &document))
		assert.Equal(t, "review", document.Step)
		assert.Contains(t, document.Arch, `name="group_review"`)
		assert.Contains(t, document.Fields, "amount")
	})

	t.Run("graph", func(t *testing.T) {
		status, body := a.do(t, http.MethodGet, "/processes/subscription/state/graph", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(body), `"draft" -> "review"`)
	})
}

func TestAPIHandlers_Steps(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodPost, "/processes/subscription/state/steps", web.CreateStepRequest{
		TechnicalName: "archived",
		Buttons:       []string{"previous"},
		DefaultButton: "previous",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var created models.StepDescriptor
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.ButtonPrevious, created.Buttons.Default())

	status, _ = a.do(t, http.MethodGet, "/steps/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body = a.do(t, http.MethodGet, "/processes/subscription/state/steps", nil)
	require.Equal(t, http.StatusOK, status)

	var steps []models.StepDescriptor
	require.NoError(t, json.Unmarshal(body, &steps))
	assert.Len(t, steps, 4)

	status, _ = a.do(t, http.MethodPost, "/processes/subscription/state/steps", web.CreateStepRequest{
		TechnicalName: "archived",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = a.do(t, http.MethodPost, "/processes/subscription/state/steps", web.CreateStepRequest{
		TechnicalName: "bad",
		Buttons:       []string{"launch"},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodGet, "/processes/invoice/state/steps", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = a.do(t, http.MethodDelete, "/steps/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = a.do(t, http.MethodGet, "/steps/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_DeleteStepInUse(t *testing.T) {
	a := setupTestApp(t)
	a.put("draft", nil)

	status, body := a.do(t, http.MethodDelete, "/steps/"+a.steps["draft"].ID, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "step_in_use")

	status, _ = a.do(t, http.MethodDelete, "/steps/"+a.steps["signed"].ID, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "healthy")
}
