package waku

import (
	"context"
	"fmt"
	"reflect"
)

// MediatorRegistry is the frozen, application-wide aggregation of every module's request
// bindings, event handler lists, and pipeline behaviors, produced by RegistryAggregator during
// the registration phase.
type MediatorRegistry struct {
	requests map[reflect.Type]requestBinding
	events   map[reflect.Type][]eventBinding
	global   []behaviorBinding
	order    map[reflect.Type]int // compiled-module topological index by module type; recorded, not read by dispatch
}

var mediatorBindingsType = reflect.TypeOf((*ModuleBindings)(nil))

// RegistryAggregator is the canonical discover+aggregate consumer described in SPEC_FULL.md
// §4.4: an OnModuleRegisterer that walks every compiled module's extensions in topological order,
// picks out each *ModuleBindings, and merges them into one MediatorRegistry, contributing
// Mediator, Sender and Publisher providers to the host module.
type RegistryAggregator struct {
	hostModule Module
	publisher  EventPublisher

	registry *MediatorRegistry
}

// NewRegistryAggregator constructs an aggregator that will host the compiled MediatorRegistry
// and Mediator provider on hostModule once registration runs.
func NewRegistryAggregator(hostModule Module, publisher EventPublisher) *RegistryAggregator {
	if publisher == nil {
		publisher = SequentialPublisher{}
	}
	return &RegistryAggregator{hostModule: hostModule, publisher: publisher}
}

// OnModuleRegistration merges every discovered ModuleBindings into a single MediatorRegistry and
// contributes the resulting Mediator as an app-scoped provider on the host module.
func (a *RegistryAggregator) OnModuleRegistration(ctx *RegistrationContext) error {
	agg := &AggregateError{}

	merged := &MediatorRegistry{
		requests: make(map[reflect.Type]requestBinding),
		events:   make(map[reflect.Type][]eventBinding),
		order:    make(map[reflect.Type]int),
	}
	perReqBehaviors := make(map[reflect.Type][]behaviorBinding)

	var host *CompiledModule
	for idx, m := range ctx.Registry.Modules {
		merged.order[reflect.TypeOf(m.Owner)] = idx
		if m.Owner == a.hostModule {
			host = m
		}
		for _, ext := range m.Metadata.Extensions {
			mb, ok := ext.(*ModuleBindings)
			if !ok {
				continue
			}
			mb.freeze()
			a.mergeRequests(merged, m, mb, agg)
			a.mergeEvents(merged, mb, agg)
			merged.global = append(merged.global, mb.global...)

			for reqType, behaviors := range mb.perReq {
				for _, bb := range behaviors {
					if behaviorAlreadyBound(behaviorTypesOf(perReqBehaviors[reqType]), bb.behaviorType) {
						agg.Add(fmt.Errorf("%w: %s on %s", ErrPipelineBehaviorAlreadyRegistered, bb.behaviorType, reqType))
						continue
					}
					perReqBehaviors[reqType] = append(perReqBehaviors[reqType], bb)
				}
			}
		}
	}

	if agg.HasErrors() {
		return agg
	}

	for reqType, binding := range merged.requests {
		binding.behaviors = perReqBehaviors[reqType]
		merged.requests[reqType] = binding
	}

	a.registry = merged

	if host == nil {
		return fmt.Errorf("%w: mediator host module %s is not part of the registry", ErrExtension, a.hostModule.Name())
	}
	med := a.newMediator()
	ctx.AddProvider(host, Object[Mediator](med))
	ctx.AddProvider(host, Object[Sender](med))
	ctx.AddProvider(host, Object[Publisher](med))
	return nil
}

func behaviorTypesOf(bindings []behaviorBinding) []reflect.Type {
	out := make([]reflect.Type, 0, len(bindings))
	for _, bb := range bindings {
		out = append(out, bb.behaviorType)
	}
	return out
}

func behaviorAlreadyBound(existing []reflect.Type, t reflect.Type) bool {
	for _, e := range existing {
		if e == t {
			return true
		}
	}
	return false
}

func (a *RegistryAggregator) mergeRequests(merged *MediatorRegistry, owner *CompiledModule, mb *ModuleBindings, agg *AggregateError) {
	for _, rb := range mb.requests {
		if _, exists := merged.requests[rb.reqType]; exists {
			agg.Add(fmt.Errorf("%w: %s (already bound, now again in module %s)", ErrRequestHandlerAlreadyRegistered, rb.reqType, owner.Name()))
			continue
		}
		merged.requests[rb.reqType] = rb
	}
}

func (a *RegistryAggregator) mergeEvents(merged *MediatorRegistry, mb *ModuleBindings, agg *AggregateError) {
	for evtType, handlers := range mb.events {
		for _, h := range handlers {
			duplicate := false
			for _, existing := range merged.events[evtType] {
				if existing.handlerType == h.handlerType {
					agg.Add(fmt.Errorf("%w: %s on %s", ErrEventHandlerAlreadyRegistered, h.handlerType, evtType))
					duplicate = true
					break
				}
			}
			if !duplicate {
				merged.events[evtType] = append(merged.events[evtType], h)
			}
		}
	}
}

// newMediator builds the dispatch-ready Mediator over the frozen registry.
func (a *RegistryAggregator) newMediator() *mediatorImpl {
	return &mediatorImpl{registry: a.registry, publisher: a.publisher}
}

// mediatorImpl is the sole concrete implementation of Mediator; IMediator/ISender/IPublisher in
// the distilled spec are all narrowing views onto the same instance, bound here under three
// distinct interface-typed providers.
type mediatorImpl struct {
	registry  *MediatorRegistry
	publisher EventPublisher
}

func (m *mediatorImpl) send(ctx context.Context, req any) (any, error) {
	reqType := reflect.TypeOf(req)
	binding, ok := m.registry.requests[reqType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRequestHandlerNotFound, reqType)
	}

	// Build the full pipeline iteratively, bottom-up, so every stage exists before dispatch
	// begins: global behaviors, then per-request behaviors, with the handler as the tail.
	tail := Next(func(ctx context.Context, req any) (any, error) {
		return binding.invoke(ctx, req)
	})

	all := make([]PipelineBehavior, 0, len(m.registry.global)+len(binding.behaviors))
	for _, b := range m.registry.global {
		all = append(all, b.behavior)
	}
	for _, b := range binding.behaviors {
		all = append(all, b.behavior)
	}

	chain := tail
	for i := len(all) - 1; i >= 0; i-- {
		behavior := all[i]
		next := chain
		chain = func(ctx context.Context, req any) (any, error) {
			return behavior.Handle(ctx, req, next)
		}
	}

	return chain(ctx, req)
}

func (m *mediatorImpl) Publish(ctx context.Context, evt Event) error {
	evtType := reflect.TypeOf(evt)
	handlers, ok := m.registry.events[evtType]
	if !ok || len(handlers) == 0 {
		return nil
	}
	return m.publisher.Publish(ctx, evt, handlers)
}
