package waku

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/wakuframework/waku/lifecycle"
)

// Run drives the full application lifecycle described in SPEC_FULL.md §4.6: module OnModuleInit
// hooks in topological order, OnApplicationInit then AfterApplicationInit hooks, lifespan entry
// in declaration order, a signal-aware block until ctx is cancelled or SIGINT/SIGTERM arrives,
// then mirror-order shutdown. Each phase transition is dispatched as a lifecycle.Event; a
// cancelled ctx during init still runs destroy hooks for every already-initialized module, LIFO.
// Equivalent to Start followed by a block on ctx and then Stop — call Start/Stop directly when a
// caller (the testing harness, an embedding host process) needs to control shutdown itself.
func (app *Application) Run(ctx context.Context) error {
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(runCtx); err != nil {
		return err
	}

	<-runCtx.Done()

	app.emit(context.Background(), lifecycle.EventTypeShutdownStarted, lifecycle.PhaseShutdown, "application", nil)
	return app.Stop(context.Background())
}

// Start runs every init-phase step — module OnModuleInit hooks (topological), application
// OnApplicationInit/AfterApplicationInit hooks, lifespan entry (declaration order) — and returns
// once the application is ready to serve, without blocking. A failure at any step unwinds every
// already-completed step via Stop before returning the error, so Start never leaves a
// partially-initialized application behind.
func (app *Application) Start(ctx context.Context) error {
	// The dispatcher outlives ctx, so shutdown events emitted after ctx is cancelled (as Run
	// does) are still delivered; Stop ends it.
	if err := app.dispatcher.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("waku: starting lifecycle dispatcher: %w", err)
	}

	if err := app.initModules(ctx); err != nil {
		app.shutdown(context.Background())
		return err
	}

	if err := app.runApplicationInitHooks(ctx); err != nil {
		app.shutdown(context.Background())
		return err
	}

	if err := app.enterLifespans(); err != nil {
		app.shutdown(context.Background())
		return err
	}

	app.emit(ctx, lifecycle.EventTypeRunStarted, lifecycle.PhaseRun, "application", nil)
	return nil
}

// Stop runs the shutdown mirror — application shutdown hooks, lifespan exit, module destroy
// hooks (reverse-topological), then tears down the container and lifecycle dispatcher. Safe to
// call even if Start only partially completed; every stage only unwinds what actually ran.
func (app *Application) Stop(ctx context.Context) error {
	return app.shutdown(ctx)
}

// initModules runs OnModuleInit for every compiled module, in the registry's topological order
// (leaves first), on both the module value itself and any of its extensions that implement the
// hook. A failure aborts the remaining modules; the caller is responsible for unwinding already
// -initialized modules via shutdown.
func (app *Application) initModules(ctx context.Context) error {
	for _, cm := range app.registry.Modules {
		if err := app.initModule(ctx, cm); err != nil {
			return fmt.Errorf("module %s: %w", cm.Name(), err)
		}
		app.initializedModules = append(app.initializedModules, cm)
		app.emit(ctx, lifecycle.EventTypeModuleInitDone, lifecycle.PhaseInit, cm.Name(), nil)
	}
	return nil
}

func (app *Application) initModule(ctx context.Context, cm *CompiledModule) error {
	if initer, ok := cm.Owner.(OnModuleIniter); ok {
		if err := initer.OnModuleInit(ctx, app); err != nil {
			return err
		}
	}
	for _, ext := range cm.Metadata.Extensions {
		if initer, ok := ext.(OnModuleIniter); ok {
			if err := initer.OnModuleInit(ctx, app); err != nil {
				return err
			}
		}
	}
	return nil
}

// destroyModules runs OnModuleDestroy for every module this Run actually initialized, in reverse
// order, collecting every failure instead of stopping at the first — mirroring the teacher's
// StopWithLifecycle behavior of continuing shutdown even when one module errors.
func (app *Application) destroyModules(ctx context.Context) error {
	agg := &AggregateError{}
	for i := len(app.initializedModules) - 1; i >= 0; i-- {
		cm := app.initializedModules[i]
		if err := app.destroyModule(ctx, cm); err != nil {
			agg.Add(fmt.Errorf("module %s: %w", cm.Name(), err))
		}
		app.emit(ctx, lifecycle.EventTypeModuleDestroyDone, lifecycle.PhaseShutdown, cm.Name(), nil)
	}
	app.initializedModules = nil
	return agg.ErrOrNil()
}

func (app *Application) destroyModule(ctx context.Context, cm *CompiledModule) error {
	agg := &AggregateError{}
	for _, ext := range cm.Metadata.Extensions {
		if destroyer, ok := ext.(OnModuleDestroyer); ok {
			agg.Add(destroyer.OnModuleDestroy(ctx, app))
		}
	}
	if destroyer, ok := cm.Owner.(OnModuleDestroyer); ok {
		agg.Add(destroyer.OnModuleDestroy(ctx, app))
	}
	return agg.ErrOrNil()
}

// runApplicationInitHooks runs every OnApplicationIniter across the whole extension set, then
// every AfterApplicationIniter, matching the teacher's two-pass Init/AfterInit convention.
func (app *Application) runApplicationInitHooks(ctx context.Context) error {
	for _, ext := range app.allExtensions() {
		if initer, ok := ext.(OnApplicationIniter); ok {
			if err := initer.OnApplicationInit(ctx, app); err != nil {
				return fmt.Errorf("application init hook %T: %w", ext, err)
			}
		}
	}
	for _, ext := range app.allExtensions() {
		if after, ok := ext.(AfterApplicationIniter); ok {
			if err := after.AfterApplicationInit(ctx, app); err != nil {
				return fmt.Errorf("after-application-init hook %T: %w", ext, err)
			}
		}
	}
	app.emit(ctx, lifecycle.EventTypeApplicationInitDone, lifecycle.PhaseInit, "application", nil)
	return nil
}

// runApplicationShutdownHooks runs every OnApplicationShutdowner, collecting errors instead of
// stopping at the first so the rest of shutdown still proceeds.
func (app *Application) runApplicationShutdownHooks(ctx context.Context) error {
	agg := &AggregateError{}
	for _, ext := range app.allExtensions() {
		if shutdowner, ok := ext.(OnApplicationShutdowner); ok {
			agg.Add(shutdowner.OnApplicationShutdown(ctx, app))
		}
	}
	return agg.ErrOrNil()
}

// allExtensions returns every application-level extension (from FactoryOptions) plus every
// module's own declared extensions, since SPEC_FULL.md's application-level hooks may be attached
// either way.
func (app *Application) allExtensions() []any {
	all := append([]any{}, app.appExtensions...)
	for _, cm := range app.registry.Modules {
		all = append(all, cm.Metadata.Extensions...)
	}
	return all
}

// enterLifespans runs every LifespanFunc.Enter in declaration order, recording each success so
// exitLifespans can mirror only what was actually entered.
func (app *Application) enterLifespans() error {
	for _, ls := range app.lifespans {
		if err := ls.Enter(app); err != nil {
			return fmt.Errorf("lifespan enter: %w", err)
		}
		app.enteredLifespans = append(app.enteredLifespans, ls)
	}
	return nil
}

// exitLifespans runs Exit for every entered lifespan, LIFO, collecting every error.
func (app *Application) exitLifespans() error {
	agg := &AggregateError{}
	for i := len(app.enteredLifespans) - 1; i >= 0; i-- {
		agg.Add(app.enteredLifespans[i].Exit(app))
	}
	app.enteredLifespans = nil
	return agg.ErrOrNil()
}

// shutdown tears down the application in mirror order: application shutdown hooks, lifespan
// exit, module destroy, then the underlying injector and lifecycle dispatcher. Every stage runs
// even if an earlier one failed; each stage's errors are aggregated and returned together.
func (app *Application) shutdown(ctx context.Context) error {
	agg := &AggregateError{}
	agg.Add(app.runApplicationShutdownHooks(ctx))
	agg.Add(app.exitLifespans())
	agg.Add(app.destroyModules(ctx))
	agg.Add(app.container.Shutdown())

	app.emit(ctx, lifecycle.EventTypeShutdownDone, lifecycle.PhaseShutdown, "application", nil)
	agg.Add(app.dispatcher.Stop(ctx))

	return agg.ErrOrNil()
}

// emit builds a lifecycle.Event and dispatches it, logging (rather than failing) if the
// dispatcher cannot accept it — phase-transition telemetry must never abort the lifecycle it
// describes.
func (app *Application) emit(ctx context.Context, t lifecycle.EventType, phase lifecycle.Phase, source string, metadata map[string]any) {
	evt := &lifecycle.Event{
		Type:      t,
		Source:    source,
		Timestamp: time.Now(),
		Phase:     phase,
		Status:    lifecycle.EventStatusCompleted,
		Metadata:  metadata,
	}
	if err := app.dispatcher.Dispatch(ctx, evt); err != nil {
		app.logger.Debug("lifecycle event dispatch skipped", "type", string(t), "error", err)
	}
}
