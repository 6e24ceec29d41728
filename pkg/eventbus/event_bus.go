// Package eventbus provides the notification infrastructure for step transitions.
package eventbus

import (
	"context"

	"github.com/dukex/stepwise/pkg/events"
)

// Event is a notification about a record or a process configuration.
type Event interface {
	GetType() events.EventType
}

// EventPublisher sends events. key orders the events of one record: the
// engine uses "<model>/<id>".
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// PublisherFunc adapts a function to EventPublisher.
type PublisherFunc func(ctx context.Context, key string, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, key string, event Event) error {
	return f(ctx, key, event)
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives the decoded event, a value of the type registered
// for its events.EventType.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
