package app

import (
	"context"
)

// SchemaEnsurer is the part of a vector backend bootstrap needs to check.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// Publisher queues messages onto the broker.
type Publisher interface {
	Publish(topic string, body []byte) error
}
