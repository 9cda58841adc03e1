package waku

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// EventPublisher is the pluggable fan-out strategy behind Mediator.Publish.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event, handlers []eventBinding) error
}

// SequentialPublisher invokes handlers in declaration order; the first error aborts the
// iteration and propagates, leaving subsequent handlers un-invoked.
type SequentialPublisher struct{}

func (SequentialPublisher) Publish(ctx context.Context, evt Event, handlers []eventBinding) error {
	for _, h := range handlers {
		if err := h.invoke(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// GroupedPublisher schedules every handler concurrently on an errgroup; the first failure
// cancels the group's derived context and is returned to the caller. Handler ordering among
// concurrent goroutines is not guaranteed — only the declaration order passed to each handler's
// invocation slot is deterministic before the group starts.
type GroupedPublisher struct{}

func (GroupedPublisher) Publish(ctx context.Context, evt Event, handlers []eventBinding) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handlers {
		h := h
		g.Go(func() error {
			return h.invoke(gctx, evt)
		})
	}
	return g.Wait()
}
