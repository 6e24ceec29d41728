// Package web provides the HTTP handlers of the step engine API.
package web

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/process"
	"github.com/dukex/stepwise/pkg/services"
	"github.com/dukex/stepwise/pkg/view"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	processService *services.Process
	recordService  *services.Records
	engine         *process.Engine
	registry       *process.Registry
	composer       *view.Composer
	validator      *validator.Validate
}

func NewAPIHandlers(
	processService *services.Process,
	recordService *services.Records,
	engine *process.Engine,
	registry *process.Registry,
	composer *view.Composer,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		processService: processService,
		recordService:  recordService,
		engine:         engine,
		registry:       registry,
		composer:       composer,
		validator:      validator,
	}
}

// Register mounts every endpoint on router.
func (h *APIHandlers) Register(router fiber.Router) {
	p := router.Group("/processes")
	p.Get("/", h.GetProcesses)
	p.Get("/:model/:field/steps", h.GetSteps)
	p.Post("/:model/:field/steps", h.CreateStep)
	p.Get("/:model/:field/graph", h.GetGraph)

	s := router.Group("/steps")
	s.Get("/:id", h.GetStep)
	s.Delete("/:id", h.DeleteStep)

	r := router.Group("/records/:model/:id")
	r.Get("/", h.GetRecord)
	r.Put("/", h.UpdateRecord)
	r.Post("/:field/start", h.transition(h.engine.Start))
	r.Post("/:field/next", h.transition(h.engine.Next))
	r.Post("/:field/previous", h.transition(h.engine.Previous))
	r.Post("/:field/complete", h.transition(h.engine.Complete))
	r.Post("/:field/check", h.action(h.engine.Check))
	r.Post("/:field/cancel", h.action(h.engine.Cancel))
	r.Get("/:field/view", h.GetView)
	r.Get("/:field/buttons", h.GetButtons)
	r.Get("/:field/history", h.GetHistory)

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.processService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Stepwise API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Stepwise API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetProcesses(c fiber.Ctx) error {
	processes, err := h.processService.Processes(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(processes)
}

func (h *APIHandlers) GetSteps(c fiber.Ctx) error {
	steps, err := h.processService.Steps(c.Context(), c.Params("model"), c.Params("field"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(steps)
}

func (h *APIHandlers) CreateStep(c fiber.Ctx) error {
	var req CreateStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.processService.CreateStep(c.Context(), c.Params("model"), c.Params("field"), req.StepDescriptor())
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// GetGraph renders the step graph in Graphviz DOT.
func (h *APIHandlers) GetGraph(c fiber.Ctx) error {
	graph, err := h.registry.Graph(c.Context(), c.Params("model"), c.Params("field"))
	if err != nil {
		return handleError(c, err)
	}

	var buf bytes.Buffer
	if err := process.WriteDOT(&buf, graph); err != nil {
		return handleError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/vnd.graphviz; charset=utf-8")

	return c.Send(buf.Bytes())
}

func (h *APIHandlers) GetStep(c fiber.Ctx) error {
	step, err := h.processService.Step(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) DeleteStep(c fiber.Ctx) error {
	if err := h.processService.DeleteStep(c.Context(), c.Params("id")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetRecord(c fiber.Ctx) error {
	record, err := h.recordService.Get(c.Context(), recordRef(c))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) UpdateRecord(c fiber.Ctx) error {
	var req UpdateRecordRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	record, err := h.recordService.UpdateAttributes(c.Context(), recordRef(c), req.Attributes)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(record)
}

type transitionFunc func(ctx context.Context, ref models.RecordRef, field string) (*process.Transition, error)

func (h *APIHandlers) transition(fn transitionFunc) fiber.Handler {
	return func(c fiber.Ctx) error {
		result, err := fn(c.Context(), recordRef(c), c.Params("field"))
		if err != nil {
			return handleError(c, err)
		}

		return c.JSON(NewTransitionResponse(result))
	}
}

type actionFunc func(ctx context.Context, ref models.RecordRef, field string) error

// action runs an operation that never moves the record.
func (h *APIHandlers) action(fn actionFunc) fiber.Handler {
	return func(c fiber.Ctx) error {
		if err := fn(c.Context(), recordRef(c), c.Params("field")); err != nil {
			return handleError(c, err)
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

func (h *APIHandlers) GetView(c fiber.Ctx) error {
	ref := recordRef(c)
	field := c.Params("field")

	step, err := h.engine.Current(c.Context(), ref, field)
	if err != nil {
		return handleError(c, err)
	}

	document, err := h.composer.Compose(c.Context(), ref.Model, field, step.TechnicalName)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(document)
}

func (h *APIHandlers) GetButtons(c fiber.Ctx) error {
	buttons, err := h.engine.Buttons(c.Context(), recordRef(c), c.Params("field"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(buttons)
}

func (h *APIHandlers) GetHistory(c fiber.Ctx) error {
	entries, err := h.engine.HistorySelection(c.Context(), recordRef(c), c.Params("field"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(entries)
}

func recordRef(c fiber.Ctx) models.RecordRef {
	return models.RecordRef{Model: c.Params("model"), ID: c.Params("id")}
}
