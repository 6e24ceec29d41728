package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/stepwise/pkg/batch"
	"github.com/dukex/stepwise/pkg/catalog"
	"github.com/dukex/stepwise/pkg/cmd"
	"github.com/dukex/stepwise/pkg/eventbus"
	"github.com/dukex/stepwise/pkg/log"
	"github.com/dukex/stepwise/pkg/otelhelper"
	"github.com/dukex/stepwise/pkg/process"
	"github.com/dukex/stepwise/pkg/view"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort     = 9091
	serviceName     = "stepwise-api"
	defaultCacheTTL = 10 * time.Minute
)

func main() {
	root := &cli.Command{
		Name:                  "stepwise-api",
		Usage:                 "Drive records through their configured steps",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres:// or a directory)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "catalog",
				Usage:   "Catalog file with processes, rules and batch jobs to import at startup",
				Sources: cli.EnvVars("CATALOG"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type for transition events (gochannel, kafka); empty disables events",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL of the view cache; empty keeps views in memory",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "view-cache-ttl",
				Usage:   "Lifetime of cached views",
				Value:   defaultCacheTTL,
				Sources: cli.EnvVars("VIEW_CACHE_TTL"),
			},
			&cli.StringFlag{
				Name:     "plugins-path",
				Usage:    "Path to the directory containing hook plugins",
				Value:    "./plugins",
				Required: false,
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.Run(ctx, os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing Stepwise API")

	var options []process.Option

	if command.Bool("tracing") {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return err
		}

		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}()

		options = append(options, process.WithTracer(tracer))
	}

	// Every instance consumes every ProcessChanged event to drop its own views.
	instance := serviceName + "-" + uuid.New().String()[:8]

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), instance, logger)
	if err != nil {
		return err
	}

	if eventBus != nil {
		defer func() {
			if err := eventBus.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
			}
		}()

		options = append(options, process.WithPublisher(eventBus))
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	methods, err := cmd.NewMethodRegistry(logger, command.String("plugins-path"))
	if err != nil {
		return err
	}

	stack := cmd.NewStack(logger, persistence, methods, options...)

	var loaded *catalog.Catalog

	if path := command.String("catalog"); path != "" {
		var result *catalog.Result

		loaded, result, err = stack.LoadCatalog(ctx, logger, path)
		if err != nil {
			return err
		}

		logger.InfoContext(ctx, "Catalog imported",
			"path", path,
			"processes", result.Processes,
			"created", result.Created,
			"updated", result.Updated)
	}

	cache, closeCache, err := cmd.NewViewCache(ctx, command.String("redis-url"), command.Duration("view-cache-ttl"))
	if err != nil {
		return err
	}

	defer func() {
		if err := closeCache(); err != nil {
			logger.ErrorContext(ctx, "Failed to close view cache", "error", err)
		}
	}()

	scheduler := batch.NewScheduler(logger, batch.NewAdvancer(logger, persistence, stack.Engine))

	var jobs []batch.Job
	if loaded != nil {
		jobs = loaded.Jobs
	}

	for _, job := range jobs {
		if err := scheduler.Add(job); err != nil {
			return err
		}
	}

	scheduler.Start(ctx)

	defer func() {
		if err := scheduler.Stop(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to stop batch scheduler", "error", err)
		}
	}()

	composer := view.NewComposer(logger, stack.Registry, cache)

	var publisher eventbus.EventPublisher

	if eventBus != nil {
		if err := cmd.InvalidateViewsOnChange(ctx, eventBus, composer, logger); err != nil {
			return err
		}

		publisher = eventBus
	}

	if loaded != nil {
		if err := cmd.AnnounceCatalog(ctx, loaded, composer, publisher, logger); err != nil {
			return err
		}
	}

	api := NewAPI(
		logger,
		stack,
		composer,
		publisher,
	)

	if err := api.Start(ctx, command.Int("port")); err != nil {
		logger.ErrorContext(ctx, "Failed to start API server", "error", err)

		return err
	}

	return nil
}
