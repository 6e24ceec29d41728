package web

import (
	"errors"

	"github.com/dukex/stepwise/pkg/persistence"
	"github.com/dukex/stepwise/pkg/process"
	"github.com/dukex/stepwise/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// validationProblem carries the messages of a rejected hook.
type validationProblem struct {
	*problems.Problem
	Messages []string `json:"messages"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func conflict(c fiber.Ctx, problemType string, err error) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(err.Error())

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

// handleError maps service, engine and persistence errors to problem
// responses.
func handleError(c fiber.Ctx, err error) error {
	var validationErr *process.ValidationError

	switch {
	case errors.As(err, &validationErr):
		problem := validationProblem{
			Problem: problems.NewStatusProblem(422).
				WithInstance(c.Path()).
				WithType("validation_failed").
				WithDetail(validationErr.Error()),
			Messages: validationErr.Messages,
		}

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case process.IsEmptyHistory(err):
		return conflict(c, "empty_history", err)

	case process.IsButtonDisabled(err):
		return conflict(c, "button_disabled", err)

	case persistence.IsStepInUse(err):
		return conflict(c, "step_in_use", err)

	case services.IsConflictError(err):
		return conflict(c, "conflict", err)

	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case persistence.IsRecordNotFound(err):
		return notFound(c, "record_not_found", "record not found")

	case persistence.IsStepNotFound(err):
		return notFound(c, "step_not_found", "step not found")

	case persistence.IsProcessNotFound(err):
		return notFound(c, "process_not_found", "process not found")

	case process.IsConfigurationError(err):
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("configuration_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusInternalServerError).JSON(problem)

	default:
		// Unexpected errors do not expose details
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
