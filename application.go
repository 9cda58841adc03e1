package waku

import (
	"context"
	"fmt"

	"github.com/wakuframework/waku/lifecycle"
)

// Application is the long-lived instance Factory.Create returns: a frozen ModuleRegistry, a
// composed container, a lifecycle.Dispatcher emitting phase-transition events, and the CQRS
// Mediator assembled during registration.
type Application struct {
	*subject

	registry      *ModuleRegistry
	container     *ComposedContainer
	dispatcher    *lifecycle.Dispatcher
	logger        Logger
	lifespans     []LifespanFunc
	appExtensions []any
	mediator      Mediator

	enteredLifespans   []LifespanFunc
	initializedModules []*CompiledModule
}

// Registry returns the frozen module registry this application was composed from.
func (app *Application) Registry() *ModuleRegistry { return app.registry }

// RootContainer returns the APP-scope container, used by the testing harness to install
// overrides.
func (app *Application) RootContainer() Container { return app.container.RootContainer() }

// Mediator returns the CQRS send/publish surface assembled during registration.
func (app *Application) Mediator() Mediator { return app.mediator }

// Logger returns the application's logger.
func (app *Application) Logger() Logger { return app.logger }

// Container mints a request-scoped child container for one unit of work. The returned
// RequestScope must be Closed by the caller once the unit of work completes.
func (app *Application) Container(ctx context.Context, reqCtx map[string]any) (*RequestScope, error) {
	return app.container.NewRequestScope(app.registry, reqCtx), nil
}

// Create builds the module registry, composes the container, validates accessibility, and
// returns a frozen Application ready for Run. It does not start anything: no module init hook
// runs, no lifespan is entered, and the lifecycle dispatcher is not yet accepting events.
func (f *Factory) Create(ctx context.Context) (*Application, error) {
	aggregator := NewRegistryAggregator(f.root, f.publisher)
	appExtensions := append(append([]any{}, f.extensions...), aggregator)

	builder := NewRegistryBuilder(f.root, f.logger, appExtensions...)
	registry, err := builder.Build()
	if err != nil {
		return nil, err
	}

	composed, err := Compose(registry, f.containerCfg, f.logger)
	if err != nil {
		return nil, err
	}

	validator := &Validator{Mode: f.validationMode, Logger: f.logger}
	if err := validator.Validate(registry); err != nil {
		return nil, err
	}

	sub := newSubject(f.logger)
	dispatcher := lifecycle.NewDispatcher(func(observerID string, evt *lifecycle.Event, derr error) {
		f.logger.Error("lifecycle observer failed", "observer", observerID, "event", evt.Type, "error", derr)
	})
	if err := dispatcher.RegisterObserver(ctx, &dispatcherBridge{subject: sub}); err != nil {
		return nil, err
	}

	mediatorIface, err := composed.RootContainer().Resolve(ifaceOf[Mediator]())
	if err != nil {
		return nil, fmt.Errorf("waku: resolving mediator: %w", err)
	}
	med, ok := mediatorIface.(Mediator)
	if !ok {
		return nil, fmt.Errorf("waku: mediator provider did not yield a Mediator (got %T)", mediatorIface)
	}

	app := &Application{
		subject:       sub,
		registry:      registry,
		container:     composed,
		dispatcher:    dispatcher,
		logger:        f.logger,
		lifespans:     f.lifespans,
		appExtensions: appExtensions,
		mediator:      med,
	}
	return app, nil
}
