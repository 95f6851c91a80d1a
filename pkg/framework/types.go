package framework

import (
	"context"
)

// Named is implemented by things with a name for logging.
type Named interface {
	Name() string
}

// Runnable is a long running task stopped by canceling the context.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Message is anything dispatched by a Loop.
type Message interface{}

// MessageHandler processes a message.
type MessageHandler interface {
	HandleMessage(context.Context, Message)
}

// HandleMessageFunc is the func form of MessageHandler.
type HandleMessageFunc func(context.Context, Message)

// HandleMessage implements MessageHandler.
func (f HandleMessageFunc) HandleMessage(ctx context.Context, msg Message) {
	f(ctx, msg)
}
