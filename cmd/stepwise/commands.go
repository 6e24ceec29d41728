package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dukex/stepwise/pkg/batch"
	"github.com/dukex/stepwise/pkg/catalog"
	"github.com/dukex/stepwise/pkg/cmd"
	"github.com/dukex/stepwise/pkg/eventbus"
	"github.com/dukex/stepwise/pkg/log"
	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/process"
	"github.com/dukex/stepwise/pkg/services"
	"github.com/urfave/cli/v3"
)

var errUsage = errors.New("wrong number of arguments")

// session opens the stack configured by the root flags. Rules of the
// catalog flag are registered without importing its processes again.
func session(ctx context.Context, command *cli.Command) (*cmd.Stack, *slog.Logger, func(), error) {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("stepwise")

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, nil, nil, err
	}

	closeStore := func() {
		if err := store.Close(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}

	methods, err := cmd.NewMethodRegistry(logger, command.String("plugins-path"))
	if err != nil {
		closeStore()

		return nil, nil, nil, err
	}

	stack := cmd.NewStack(logger, store, methods)

	if path := command.String("catalog"); path != "" {
		if err := stack.RegisterRules(path); err != nil {
			closeStore()

			return nil, nil, nil, err
		}
	}

	return stack, logger, closeStore, nil
}

func NewImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import the processes, rules and jobs of a catalog file",
		ArgsUsage: "<catalog.yaml>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus announcing the changed processes to running APIs (gochannel, kafka)",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis view cache whose views of the imported processes are dropped",
				Sources: cli.EnvVars("REDIS_URL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.Args().Len() != 1 {
				return fmt.Errorf("%w: import <catalog.yaml>", errUsage)
			}

			stack, logger, done, err := session(ctx, command)
			if err != nil {
				return err
			}
			defer done()

			loaded, result, err := stack.LoadCatalog(ctx, logger, command.Args().First())
			if err != nil {
				return err
			}

			if err := announce(ctx, command, loaded, logger); err != nil {
				return err
			}

			out := command.Root().Writer
			_, _ = fmt.Fprintf(out, "Imported %d processes: %d steps created, %d updated, %d rules, %d jobs\n",
				result.Processes, result.Created, result.Updated, len(loaded.Rules), len(loaded.Jobs))

			return nil
		},
	}
}

// announce drops the shared views of the imported processes and tells the
// running APIs about the change.
func announce(ctx context.Context, command *cli.Command, loaded *catalog.Catalog, logger *slog.Logger) error {
	var views services.ViewInvalidator

	if url := command.String("redis-url"); url != "" {
		cache, closeCache, err := cmd.NewViewCache(ctx, url, 0)
		if err != nil {
			return err
		}

		defer func() {
			if err := closeCache(); err != nil {
				logger.ErrorContext(ctx, "Failed to close view cache", "error", err)
			}
		}()

		views = cache
	}

	bus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "stepwise-cli", logger)
	if err != nil {
		return err
	}

	var publisher eventbus.EventPublisher

	if bus != nil {
		defer func() {
			if err := bus.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
			}
		}()

		publisher = bus
	}

	return cmd.AnnounceCatalog(ctx, loaded, views, publisher, logger)
}

func NewGraphCommand() *cli.Command {
	return &cli.Command{
		Name:      "graph",
		Usage:     "Print the step graph of a process in Graphviz DOT",
		ArgsUsage: "<model> <field>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the graph to a file instead of stdout",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.Args().Len() != 2 {
				return fmt.Errorf("%w: graph <model> <field>", errUsage)
			}

			stack, _, done, err := session(ctx, command)
			if err != nil {
				return err
			}
			defer done()

			graph, err := stack.Registry.Graph(ctx, command.Args().Get(0), command.Args().Get(1))
			if err != nil {
				return err
			}

			path := command.String("output")
			if path == "" {
				return process.WriteDOT(command.Root().Writer, graph)
			}

			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", path, err)
			}

			if err := process.WriteDOT(f, graph); err != nil {
				_ = f.Close()

				return err
			}

			return f.Close()
		},
	}
}

// NewNavigateCommand builds the start, next and previous commands.
func NewNavigateCommand(name, usage string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<model> <id> <field>",
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.Args().Len() != 3 {
				return fmt.Errorf("%w: %s <model> <id> <field>", errUsage, name)
			}

			stack, _, done, err := session(ctx, command)
			if err != nil {
				return err
			}
			defer done()

			operations := map[string]func(context.Context, models.RecordRef, string) (*process.Transition, error){
				"start":    stack.Engine.Start,
				"next":     stack.Engine.Next,
				"previous": stack.Engine.Previous,
			}

			ref := models.RecordRef{Model: command.Args().Get(0), ID: command.Args().Get(1)}

			transition, err := operations[name](ctx, ref, command.Args().Get(2))
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(command.Root().Writer, "%s %s: %s -> %s\n", ref, transition.Field, display(transition.From), transition.To)

			return nil
		},
	}
}

func NewBatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Advance every record sitting in a step once",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Usage: "Owner model", Required: true},
			&cli.StringFlag{Name: "field", Usage: "Process field", Required: true},
			&cli.StringFlag{Name: "step", Usage: "Technical name of the step to drain", Required: true},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			stack, logger, done, err := session(ctx, command)
			if err != nil {
				return err
			}
			defer done()

			job := batch.Job{
				Name:  "cli",
				Model: command.String("model"),
				Field: command.String("field"),
				Step:  command.String("step"),
			}

			report, err := batch.NewAdvancer(logger, stack.Persistence, stack.Engine).Advance(ctx, job)
			if err != nil {
				return err
			}

			out := command.Root().Writer
			_, _ = fmt.Fprintf(out, "Selected %d, advanced %d, failed %d, skipped %d\n",
				report.Selected, report.Advanced, report.Failed(), report.Skipped)

			for _, failure := range report.Failures {
				_, _ = fmt.Fprintf(out, "  %s: %v\n", failure.Ref, failure.Err)
			}

			return nil
		},
	}
}

func display(step string) string {
	if step == "" {
		return "(none)"
	}

	return step
}
