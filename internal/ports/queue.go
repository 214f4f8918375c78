package ports

import (
	"context"

	"videogenie/internal/models"
)

// QueuePublisher hands a job message to the broker. A nil error means the
// broker acknowledged persistence.
type QueuePublisher interface {
	Publish(ctx context.Context, msg models.JobMessage) error
}

// MessageHandler processes one delivered message. The message is
// acknowledged after it returns, whatever the outcome.
type MessageHandler func(ctx context.Context, msg models.JobMessage) error

// QueueConsumer delivers messages to a handler until ctx ends.
type QueueConsumer interface {
	Consume(ctx context.Context, h MessageHandler) error
}

// Queue is a backend that can do both, plus health checks and shutdown.
type Queue interface {
	QueuePublisher
	QueueConsumer
	Name() string
	Ping(ctx context.Context) error
	Close() error
}
