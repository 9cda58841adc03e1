// Package lifecycle provides phase-transition event dispatching for the composition pipeline
// and the running application, decoupling the core's own orchestration from anything that
// wants to observe it (the CloudEvents bridge in the root package's Observer/Subject, a metrics
// sink, a log forwarder).
package lifecycle

import (
	"context"
	"time"
)

// EventDispatcher fans a Phase transition Event out to every registered Observer.
type EventDispatcher interface {
	// Dispatch sends event to every observer subscribed to its type, in priority order.
	Dispatch(ctx context.Context, event *Event) error

	// RegisterObserver subscribes observer to receive dispatched events.
	RegisterObserver(ctx context.Context, observer EventObserver) error

	// UnregisterObserver removes observer. The Dispatcher implementation returns
	// ErrObserverNotFound for an ID that is not registered.
	UnregisterObserver(ctx context.Context, observerID string) error

	// GetObservers returns the currently registered observers.
	GetObservers(ctx context.Context) ([]EventObserver, error)
}

// EventObserver receives lifecycle events the dispatcher fans out.
type EventObserver interface {
	OnEvent(ctx context.Context, event *Event) error
	ID() string
	EventTypes() []EventType
	Priority() int
}

// Event is one phase-transition notification.
type Event struct {
	Type      EventType
	Source    string // module name, or "application"
	Timestamp time.Time
	Phase     Phase
	Status    EventStatus
	Metadata  map[string]interface{}
}

// EventType names one phase-transition occurrence within Phase. Waku's own running-application
// sequence, per SPEC_FULL.md §4.6: init (module OnModuleInit, application init hooks, lifespan
// entry) -> run -> shutdown (lifespan exit, module OnModuleDestroy).
type EventType string

const (
	EventTypeModuleInitDone      EventType = "waku.module.init.done"
	EventTypeApplicationInitDone EventType = "waku.application.init.done"
	EventTypeRunStarted          EventType = "waku.run.started"
	EventTypeShutdownStarted     EventType = "waku.shutdown.started"
	EventTypeModuleDestroyDone   EventType = "waku.module.destroy.done"
	EventTypeShutdownDone        EventType = "waku.shutdown.done"
)

// Phase is the running-application phase an Event belongs to.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseRun      Phase = "run"
	PhaseShutdown Phase = "shutdown"
)

// EventStatus is the outcome of the transition an Event reports.
type EventStatus string

const (
	EventStatusStarted   EventStatus = "started"
	EventStatusCompleted EventStatus = "completed"
	EventStatusFailed    EventStatus = "failed"
)
