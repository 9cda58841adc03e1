package waku

import (
	"context"

	"github.com/google/uuid"
)

// Request is implemented by any message dispatched through Send. TResponse is a phantom type
// parameter: isWakuRequest carries no reference to it, so any concrete type embedding
// RequestBase satisfies Request[T] for whatever T the caller names at the Send call site — the
// actual response type is pinned by which RequestHandler[Req, Resp] was bound to Req, not by the
// interface itself.
type Request[TResponse any] interface {
	isWakuRequest()
}

// RequestBase gives a concrete request struct a correlation ID and satisfies Request[T] for any
// T when embedded.
type RequestBase struct {
	ID uuid.UUID
}

// NewRequestBase mints a RequestBase with a fresh correlation ID.
func NewRequestBase() RequestBase { return RequestBase{ID: uuid.New()} }

func (RequestBase) isWakuRequest() {}

// Event is implemented by any message dispatched through Publish.
type Event interface {
	isWakuEvent()
}

// EventBase satisfies Event when embedded into a concrete event struct.
type EventBase struct{}

func (EventBase) isWakuEvent() {}

// RequestHandler handles exactly one request type, application-wide.
type RequestHandler[Req any, Resp any] interface {
	Handle(ctx context.Context, req Req) (Resp, error)
}

// RequestHandlerFunc adapts a plain function to RequestHandler.
type RequestHandlerFunc[Req any, Resp any] func(ctx context.Context, req Req) (Resp, error)

func (f RequestHandlerFunc[Req, Resp]) Handle(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

// EventHandler handles one event type; any number may be bound to the same event.
type EventHandler[Evt any] interface {
	Handle(ctx context.Context, evt Evt) error
}

// EventHandlerFunc adapts a plain function to EventHandler.
type EventHandlerFunc[Evt any] func(ctx context.Context, evt Evt) error

func (f EventHandlerFunc[Evt]) Handle(ctx context.Context, evt Evt) error { return f(ctx, evt) }

// Next is the continuation a PipelineBehavior calls to run the rest of the pipeline. A behavior
// that deliberately short-circuits is legal: it simply never calls Next.
type Next func(ctx context.Context, req any) (any, error)

// PipelineBehavior wraps the dispatch of any request. The mediator builds the full chain before
// invoking the head, so a behavior can observe neither a partially-constructed pipeline nor one
// missing its own downstream stages.
type PipelineBehavior interface {
	Handle(ctx context.Context, req any, next Next) (any, error)
}

// PipelineBehaviorFunc adapts a type-erased function to PipelineBehavior.
type PipelineBehaviorFunc func(ctx context.Context, req any, next Next) (any, error)

func (f PipelineBehaviorFunc) Handle(ctx context.Context, req any, next Next) (any, error) {
	return f(ctx, req, next)
}

// TypedBehavior adapts a generic, strongly-typed behavior function into a type-erased
// PipelineBehavior, so user code can write behaviors against concrete request/response types
// instead of juggling `any`.
func TypedBehavior[Req any, Resp any](fn func(ctx context.Context, req Req, next func(context.Context, Req) (Resp, error)) (Resp, error)) PipelineBehavior {
	return PipelineBehaviorFunc(func(ctx context.Context, req any, next Next) (any, error) {
		typedNext := func(ctx context.Context, r Req) (Resp, error) {
			out, err := next(ctx, r)
			if err != nil {
				var zero Resp
				return zero, err
			}
			resp, ok := out.(Resp)
			if !ok {
				var zero Resp
				return zero, ErrRequestHandlerNotFound
			}
			return resp, nil
		}
		return fn(ctx, req.(Req), typedNext)
	})
}

// Sender dispatches requests to their registered handler.
type Sender interface {
	send(ctx context.Context, req any) (any, error)
}

// Publisher fans out events to their registered handlers.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Mediator is the full send+publish surface. IMediator, ISender and IPublisher in the Python
// source become plain Go interfaces resolved to the same underlying instance; Sender/Publisher
// here play the role of ISender/IPublisher.
type Mediator interface {
	Sender
	Publisher
}

// Send dispatches req and returns the handler's response, folded through every configured
// pipeline behavior. The generic wrapper recovers static typing around the mediator's
// internally type-erased dispatch.
func Send[Resp any](ctx context.Context, m Mediator, req Request[Resp]) (Resp, error) {
	out, err := m.send(ctx, req)
	if err != nil {
		var zero Resp
		return zero, err
	}
	resp, ok := out.(Resp)
	if !ok {
		var zero Resp
		return zero, ErrRequestHandlerNotFound
	}
	return resp, nil
}
