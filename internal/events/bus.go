// Package events provides the in-process event bus that the order ledger and
// invoice store publish on after each committed transition. Subscribers run
// synchronously, in registration order, and a subscriber failure is logged and
// isolated: it can never roll back the primary state change.
package events

import (
	"context"

	"go.uber.org/zap"
)

// Handler consumes one event. A returned error is logged, not propagated.
type Handler[T any] func(ctx context.Context, ev T) error

// Bus is a fixed, ordered, synchronous subscriber list. Subscribe during
// wiring, before any Publish; the bus itself does no locking.
type Bus[T any] struct {
	name     string
	log      *zap.Logger
	handlers []Handler[T]
}

func NewBus[T any](name string, log *zap.Logger) *Bus[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus[T]{name: name, log: log}
}

func (b *Bus[T]) Subscribe(h Handler[T]) {
	b.handlers = append(b.handlers, h)
}

// Publish invokes every subscriber in order. Errors and panics are contained
// per subscriber so later subscribers still run.
func (b *Bus[T]) Publish(ctx context.Context, ev T) {
	for i, h := range b.handlers {
		b.invoke(ctx, i, h, ev)
	}
}

func (b *Bus[T]) invoke(ctx context.Context, i int, h Handler[T], ev T) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event subscriber panicked",
				zap.String("bus", b.name),
				zap.Int("subscriber", i),
				zap.Any("panic", r))
		}
	}()
	if err := h(ctx, ev); err != nil {
		b.log.Error("event subscriber failed",
			zap.String("bus", b.name),
			zap.Int("subscriber", i),
			zap.Error(err))
	}
}
