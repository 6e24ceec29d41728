package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/stepwise/pkg/catalog"
	"github.com/dukex/stepwise/pkg/channels/gochannel"
	"github.com/dukex/stepwise/pkg/channels/kafka"
	"github.com/dukex/stepwise/pkg/eventbus"
	"github.com/dukex/stepwise/pkg/events"
	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/services"
)

// NewEventBus creates the event bus of provider. An empty provider disables
// publishing and returns nil.
func NewEventBus(provider, brokers, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	switch provider {
	case "":
		return nil, nil //nolint:nilnil // no bus configured
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), strings.Split(brokers, ","), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}

// InvalidateViewsOnChange drops the cached views of a process whenever a
// ProcessChanged event is received, then starts consuming the bus.
func InvalidateViewsOnChange(ctx context.Context, bus eventbus.EventBus, views services.ViewInvalidator, logger *slog.Logger) error {
	err := bus.Handle(events.ProcessChangedEvent, func(ctx context.Context, event any) error {
		changed, ok := event.(*events.ProcessChanged)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		logger.DebugContext(ctx, "Process changed, dropping views", "model", changed.Model, "field", changed.Field)

		return views.Invalidate(ctx, changed.Model, changed.Field)
	})
	if err != nil {
		return fmt.Errorf("failed to register process change handler: %w", err)
	}

	if err := bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	return nil
}

// AnnounceCatalog drops the composed views of every process of an imported
// catalog and publishes a ProcessChanged event for each, so that instances
// sharing the configuration drop theirs too. views and publisher may be nil.
func AnnounceCatalog(ctx context.Context, loaded *catalog.Catalog, views services.ViewInvalidator, publisher eventbus.EventPublisher, logger *slog.Logger) error {
	for _, declared := range loaded.Processes {
		key := models.ProcessKey{Model: declared.Model, Field: declared.Field}

		if views != nil {
			if err := views.Invalidate(ctx, key.Model, key.Field); err != nil {
				return fmt.Errorf("failed to drop views of %s: %w", key, err)
			}
		}

		if publisher == nil {
			continue
		}

		err := publisher.Publish(ctx, key.String(), events.ProcessChanged{
			BaseEvent: events.NewBaseEvent(events.ProcessChangedEvent),
			Model:     key.Model,
			Field:     key.Field,
		})
		if err != nil {
			return fmt.Errorf("failed to announce change of %s: %w", key, err)
		}

		logger.DebugContext(ctx, "Process change announced", "process", key.String())
	}

	return nil
}
