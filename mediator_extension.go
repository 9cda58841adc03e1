package waku

import (
	"context"
	"fmt"
	"reflect"
)

// requestBinding is the type-erased record of one RequestHandler registration.
type requestBinding struct {
	reqType     reflect.Type
	handlerType reflect.Type
	invoke      func(ctx context.Context, req any) (any, error)
	behaviors   []behaviorBinding
}

// behaviorBinding pairs a PipelineBehavior with the concrete type that declared it, so the
// aggregator can detect class-level duplicates.
type behaviorBinding struct {
	behaviorType reflect.Type
	behavior     PipelineBehavior
}

// eventBinding is one EventHandler bound to one Event type.
type eventBinding struct {
	handlerType reflect.Type
	invoke      func(ctx context.Context, evt any) error
}

// ModuleBindings is the fluent builder a feature module attaches as a module Extension to
// contribute CQRS bindings. It implements OnModuleDiscoverer; the registration-phase
// RegistryAggregator finds every module's bindings by walking each compiled module's extensions
// in topological order and merges them into one application-wide MediatorRegistry.
type ModuleBindings struct {
	requests  []requestBinding
	events    map[reflect.Type][]eventBinding
	global    []behaviorBinding
	perReq    map[reflect.Type][]behaviorBinding
	frozen    bool
}

// NewModuleBindings constructs an empty, mutable binding set.
func NewModuleBindings() *ModuleBindings {
	return &ModuleBindings{
		events: make(map[reflect.Type][]eventBinding),
		perReq: make(map[reflect.Type][]behaviorBinding),
	}
}

func (mb *ModuleBindings) onModuleDiscover() {}

func (mb *ModuleBindings) mustBeMutable() {
	if mb.frozen {
		panic("waku: ModuleBindings mutated after module registration")
	}
}

// BindRequest registers handler as the sole application-wide handler for Req. Duplicate
// bindings for the same Req across modules are detected by RegistryAggregator, not here —
// this builder only records the module's own declared intent.
func BindRequest[Req any, Resp any](mb *ModuleBindings, handler RequestHandler[Req, Resp]) *ModuleBindings {
	mb.mustBeMutable()
	reqType := ifaceOf[Req]()
	mb.requests = append(mb.requests, requestBinding{
		reqType:     reqType,
		handlerType: reflect.TypeOf(handler),
		invoke: func(ctx context.Context, req any) (any, error) {
			return handler.Handle(ctx, req.(Req))
		},
	})
	return mb
}

// BindEvent appends handler to Evt's handler list, in declaration order.
func BindEvent[Evt any](mb *ModuleBindings, handler EventHandler[Evt]) *ModuleBindings {
	mb.mustBeMutable()
	evtType := ifaceOf[Evt]()
	mb.events[evtType] = append(mb.events[evtType], eventBinding{
		handlerType: reflect.TypeOf(handler),
		invoke: func(ctx context.Context, evt any) error {
			return handler.Handle(ctx, evt.(Evt))
		},
	})
	return mb
}

// BindGlobalBehavior registers behavior to run around every request dispatched application-wide,
// ahead of any per-request behaviors.
func (mb *ModuleBindings) BindGlobalBehavior(behavior PipelineBehavior) *ModuleBindings {
	mb.mustBeMutable()
	mb.global = append(mb.global, behaviorBinding{behaviorType: reflect.TypeOf(behavior), behavior: behavior})
	return mb
}

// BindRequestBehavior registers behavior around Req specifically, after global behaviors.
func BindRequestBehavior[Req any](mb *ModuleBindings, behavior PipelineBehavior) *ModuleBindings {
	mb.mustBeMutable()
	reqType := ifaceOf[Req]()
	mb.perReq[reqType] = append(mb.perReq[reqType], behaviorBinding{behaviorType: reflect.TypeOf(behavior), behavior: behavior})
	return mb
}

func (mb *ModuleBindings) freeze() { mb.frozen = true }

func (b requestBinding) String() string {
	return fmt.Sprintf("%s -> %s", b.reqType, b.handlerType)
}
