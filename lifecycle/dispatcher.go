// Package lifecycle provides lifecycle event management and dispatching services
package lifecycle

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Static errors for lifecycle package
var (
	ErrDispatcherNotRunning  = errors.New("dispatcher is not running")
	ErrEventCannotBeNil      = errors.New("event cannot be nil")
	ErrEventBufferFull       = errors.New("event buffer is full, dropping event")
	ErrDispatcherAlreadyRunning = errors.New("dispatcher is already running")
	ErrObserverNotFound      = errors.New("observer not found")
	ErrObserverAlreadyExists = errors.New("observer already registered")
)

// Dispatcher implements EventDispatcher with a buffered channel drained by a single background
// goroutine, which fans each event out to observers subscribed to its type, highest priority
// first.
type Dispatcher struct {
	mu        sync.RWMutex
	observers map[string]EventObserver
	running   bool
	eventChan chan *Event
	stopChan  chan struct{}
	wg        sync.WaitGroup

	// onObserverError, when set, receives an observer's error instead of it being dropped
	// silently. A failing observer never blocks or fails delivery to the others.
	onObserverError func(observerID string, event *Event, err error)
}

// NewDispatcher creates a new lifecycle event dispatcher. onObserverError may be nil.
func NewDispatcher(onObserverError func(observerID string, event *Event, err error)) *Dispatcher {
	return &Dispatcher{
		observers:       make(map[string]EventObserver),
		eventChan:       make(chan *Event, 1000),
		stopChan:        make(chan struct{}),
		onObserverError: onObserverError,
	}
}

// Dispatch enqueues event for asynchronous delivery to subscribed observers.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) error {
	if event == nil {
		return ErrEventCannotBeNil
	}
	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()
	if !running {
		return ErrDispatcherNotRunning
	}

	select {
	case d.eventChan <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrEventBufferFull
	}
}

// RegisterObserver registers an observer to receive lifecycle events.
func (d *Dispatcher) RegisterObserver(ctx context.Context, observer EventObserver) error {
	if observer == nil {
		return ErrEventCannotBeNil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.observers[observer.ID()]; exists {
		return ErrObserverAlreadyExists
	}
	d.observers[observer.ID()] = observer
	return nil
}

// UnregisterObserver removes an observer from receiving events.
func (d *Dispatcher) UnregisterObserver(ctx context.Context, observerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.observers[observerID]; !exists {
		return ErrObserverNotFound
	}
	delete(d.observers, observerID)
	return nil
}

// GetObservers returns all currently registered observers, highest priority first.
func (d *Dispatcher) GetObservers(ctx context.Context) ([]EventObserver, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	observers := make([]EventObserver, 0, len(d.observers))
	for _, observer := range d.observers {
		observers = append(observers, observer)
	}
	sort.Slice(observers, func(i, j int) bool { return observers[i].Priority() > observers[j].Priority() })
	return observers, nil
}

// Start begins the event dispatcher service. Calling Start on a running dispatcher returns
// ErrDispatcherAlreadyRunning. The delivery goroutine also exits, without draining, once ctx is
// cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrDispatcherAlreadyRunning
	}

	d.running = true
	d.stopChan = make(chan struct{})
	d.wg.Add(1)
	go d.processEvents(ctx)

	return nil
}

// Stop gracefully shuts down the event dispatcher, draining whatever is already queued. Stop is
// idempotent.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.stopChan)
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

// IsRunning returns true if the dispatcher is currently running.
func (d *Dispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// processEvents drains eventChan and delivers to observers until stopped.
func (d *Dispatcher) processEvents(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.eventChan:
			d.deliver(ctx, event)
		case <-d.stopChan:
			d.drain(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case event := <-d.eventChan:
			d.deliver(ctx, event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, evt *Event) {
	observers, _ := d.GetObservers(ctx)
	for _, o := range observers {
		if !subscribesTo(o, evt.Type) {
			continue
		}
		if err := o.OnEvent(ctx, evt); err != nil && d.onObserverError != nil {
			d.onObserverError(o.ID(), evt, err)
		}
	}
}

func subscribesTo(o EventObserver, t EventType) bool {
	types := o.EventTypes()
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

// BasicObserver adapts a plain callback into an EventObserver.
type BasicObserver struct {
	id         string
	eventTypes []EventType
	priority   int
	callback   func(context.Context, *Event) error
}

// NewBasicObserver creates a new basic observer. eventTypes empty means "subscribe to everything".
func NewBasicObserver(id string, eventTypes []EventType, priority int, callback func(context.Context, *Event) error) *BasicObserver {
	return &BasicObserver{
		id:         id,
		eventTypes: eventTypes,
		priority:   priority,
		callback:   callback,
	}
}

// OnEvent is called when a lifecycle event is dispatched.
func (o *BasicObserver) OnEvent(ctx context.Context, event *Event) error {
	if o.callback != nil {
		return o.callback(ctx, event)
	}
	return nil
}

// ID returns the unique identifier for this observer.
func (o *BasicObserver) ID() string { return o.id }

// EventTypes returns the types of events this observer wants to receive.
func (o *BasicObserver) EventTypes() []EventType { return o.eventTypes }

// Priority returns the priority of this observer (higher = called first).
func (o *BasicObserver) Priority() int { return o.priority }
