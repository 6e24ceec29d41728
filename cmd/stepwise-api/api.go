// Package main provides the Stepwise API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/stepwise/pkg/cmd"
	"github.com/dukex/stepwise/pkg/eventbus"
	"github.com/dukex/stepwise/pkg/services"
	"github.com/dukex/stepwise/pkg/view"
	"github.com/dukex/stepwise/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger    *slog.Logger
	stack     *cmd.Stack
	composer  *view.Composer
	publisher eventbus.EventPublisher
	validate  *validator.Validate
}

// NewAPI creates the API. publisher may be nil.
func NewAPI(
	logger *slog.Logger,
	stack *cmd.Stack,
	composer *view.Composer,
	publisher eventbus.EventPublisher,
) *API {
	return &API{
		logger:    logger,
		stack:     stack,
		composer:  composer,
		publisher: publisher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	var options []services.ProcessOption
	if a.publisher != nil {
		options = append(options, services.WithChangePublisher(a.publisher))
	}

	processService := services.NewProcess(a.logger, a.stack.Persistence, a.composer, options...)
	recordService := services.NewRecords(a.logger, a.stack.Persistence)

	handlers := web.NewAPIHandlers(
		processService,
		recordService,
		a.stack.Engine,
		a.stack.Registry,
		a.composer,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Stepwise API")
	})

	handlers.Register(app)

	return app
}

// Start serves the API on port until ctx is done.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		if err := app.Shutdown(); err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}
