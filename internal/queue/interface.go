package queue

import "context"

// MessageInterface is the acknowledgement surface consumers see, enabling
// mock implementations in tests.
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetEvent() *TaskEvent
}

// EventPublisher is the producer side used by the request pipeline.
type EventPublisher interface {
	// Publish adds an event to the bus.
	Publish(ctx context.Context, event *TaskEvent) error
}

// EventQueue is the full event bus contract.
type EventQueue interface {
	EventPublisher

	// Consume returns a channel of messages delivered as they arrive. The
	// caller acknowledges each message. The channel closes when the context
	// is cancelled or the connection fails.
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	// Close closes the bus connection.
	Close() error

	// HealthCheck verifies the bus connection is healthy.
	HealthCheck(ctx context.Context) error
}
