package events

import (
	"context"
	"errors"
	"testing"
)

func TestPublishOrder(t *testing.T) {
	bus := NewBus[int]("test", nil)

	var seen []string
	bus.Subscribe(func(ctx context.Context, ev int) error {
		seen = append(seen, "first")
		return nil
	})
	bus.Subscribe(func(ctx context.Context, ev int) error {
		seen = append(seen, "second")
		return nil
	})

	bus.Publish(context.Background(), 1)

	if len(seen) != 2 || seen[0] != "first" || seen[1] != "second" {
		t.Errorf("subscribers ran out of order: %v", seen)
	}
}

func TestPublishIsolatesFailures(t *testing.T) {
	bus := NewBus[int]("test", nil)

	var ran bool
	bus.Subscribe(func(ctx context.Context, ev int) error {
		return errors.New("boom")
	})
	bus.Subscribe(func(ctx context.Context, ev int) error {
		panic("worse")
	})
	bus.Subscribe(func(ctx context.Context, ev int) error {
		ran = true
		return nil
	})

	bus.Publish(context.Background(), 1)

	if !ran {
		t.Error("failing subscribers prevented later subscribers from running")
	}
}
