// Package waku provides Observer pattern interfaces for event-driven communication with code
// outside the application tree. Events use the CloudEvents specification for standardized
// format and better interoperability with external systems.
package waku

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/wakuframework/waku/lifecycle"
)

// Observer receives CloudEvents notifications from a Subject.
type Observer interface {
	// OnEvent is called when an event occurs that the observer is interested in. Observers
	// should handle events quickly to avoid blocking other observers.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// Subject is the surface event emitters implement. Application satisfies it.
type Subject interface {
	// RegisterObserver adds an observer to receive notifications. If eventTypes is empty the
	// observer receives every event.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer; idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers sends event to every registered observer subscribed to its type.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers returns information about currently registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer for debugging and monitoring.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// EventType constants for CloudEvents emitted by the core framework, one per
// lifecycle.EventType the Application's dispatcher forwards to registered Observers. Reverse
// domain notation per the CloudEvents spec.
const (
	EventTypeModuleInitDone      = "io.waku.module.init.done"
	EventTypeApplicationInitDone = "io.waku.application.init.done"
	EventTypeRunStarted          = "io.waku.run.started"
	EventTypeShutdownStarted     = "io.waku.shutdown.started"
	EventTypeModuleDestroyedDone = "io.waku.module.destroy.done"
	EventTypeShutdownDone        = "io.waku.shutdown.done"
)

var lifecycleEventTypeToCloudEventType = map[lifecycle.EventType]string{
	lifecycle.EventTypeModuleInitDone:      EventTypeModuleInitDone,
	lifecycle.EventTypeApplicationInitDone: EventTypeApplicationInitDone,
	lifecycle.EventTypeRunStarted:          EventTypeRunStarted,
	lifecycle.EventTypeShutdownStarted:     EventTypeShutdownStarted,
	lifecycle.EventTypeModuleDestroyDone:   EventTypeModuleDestroyedDone,
	lifecycle.EventTypeShutdownDone:        EventTypeShutdownDone,
}

// phaseEventToCloudEvent converts a phase-transition Event from the lifecycle dispatcher into a
// CloudEvent for delivery to external Observers. Events whose type has no CloudEvents mapping
// are dropped by the caller rather than forwarded with a synthetic type.
func phaseEventToCloudEvent(evt *lifecycle.Event) (cloudevents.Event, bool) {
	ceType, ok := lifecycleEventTypeToCloudEventType[evt.Type]
	if !ok {
		return cloudevents.Event{}, false
	}
	ce := cloudevents.NewEvent()
	ce.SetID(uuid.New().String())
	ce.SetSource(evt.Source)
	ce.SetType(ceType)
	ce.SetTime(evt.Timestamp)
	ce.SetSpecVersion(cloudevents.VersionV1)
	_ = ce.SetData(cloudevents.ApplicationJSON, map[string]any{
		"phase":    string(evt.Phase),
		"status":   string(evt.Status),
		"metadata": evt.Metadata,
	})
	return ce, true
}

// observerRegistration holds one registered observer plus its event-type filter.
type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// subject is the concrete, mutex-guarded Subject implementation Application embeds.
type subject struct {
	mu        sync.RWMutex
	observers map[string]*observerRegistration
	logger    Logger
}

func newSubject(logger Logger) *subject {
	return &subject{observers: make(map[string]*observerRegistration), logger: logger}
}

func (s *subject) RegisterObserver(observer Observer, eventTypes ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filter := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		filter[t] = true
	}
	s.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   filter,
		registeredAt: time.Now(),
	}
	return nil
}

func (s *subject) UnregisterObserver(observer Observer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, observer.ObserverID())
	return nil
}

func (s *subject) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, reg := range s.observers {
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		if err := reg.observer.OnEvent(ctx, event); err != nil {
			s.logger.Error("observer error", "observerID", reg.observer.ObserverID(), "event", event.Type(), "error", err)
		}
	}
	return nil
}

func (s *subject) GetObservers() []ObserverInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ObserverInfo, 0, len(s.observers))
	for _, reg := range s.observers {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		out = append(out, ObserverInfo{ID: reg.observer.ObserverID(), EventTypes: types, RegisteredAt: reg.registeredAt})
	}
	return out
}

// dispatcherBridge is the lifecycle.EventObserver the Application registers on its Dispatcher to
// forward every phase transition to the application's own CloudEvents Subject, decoupling
// external observers from the internal lifecycle package entirely.
type dispatcherBridge struct {
	subject *subject
}

func (b *dispatcherBridge) ID() string                       { return "waku.observer.bridge" }
func (b *dispatcherBridge) EventTypes() []lifecycle.EventType { return nil }
func (b *dispatcherBridge) Priority() int                     { return 0 }

func (b *dispatcherBridge) OnEvent(ctx context.Context, evt *lifecycle.Event) error {
	ce, ok := phaseEventToCloudEvent(evt)
	if !ok {
		return nil
	}
	return b.subject.NotifyObservers(ctx, ce)
}

// FunctionalObserver adapts a plain function into an Observer.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver builds an Observer backed by handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string { return f.id }
