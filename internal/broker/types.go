package broker

import (
	"context"

	"labor/pkg/models"
)

// Message is one record to publish. Value is written as is.
type Message struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

type Producer interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
}

// HandlerFunc processes one inbound delivery. Errors that are not permanent are retried
// before the delivery goes to the dead letter topic.
type HandlerFunc func(ctx context.Context, d *models.Delivery) error
