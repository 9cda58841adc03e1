package waku

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/samber/do/v2"
)

// Container is the resolution surface handed to user code. It is backed by a samber/do/v2
// Injector (APP scope) or Scope (REQUEST scope) — the actual container runtime is explicitly out
// of this framework's scope per SPEC_FULL.md §1; Waku only compiles the declarative Provider
// model down onto it.
type Container interface {
	Resolve(iface reflect.Type) (any, error)
	Scope() Scope
}

// appContainer wraps the root do.Injector. transient holds the factories for Cache=false
// providers: do/v2 caches every Provide registration by key, so uncached providers bypass do
// entirely and are invoked directly on each Resolve instead of being registered at all.
type appContainer struct {
	injector  do.Injector
	transient map[string]func(do.Injector) (any, error)
	composed  *ComposedContainer
}

func (c *appContainer) Resolve(iface reflect.Type) (any, error) {
	key := keyFor(iface)
	if f, ok := c.transient[key]; ok {
		return f(c.injector)
	}
	return do.InvokeNamed[any](c.injector, key)
}
func (c *appContainer) Scope() Scope { return ScopeApp }

// OverrideProvider lets the testing harness (package wakutest) swap an APP-scope registration at
// runtime, restoring the previous registration when the returned func is called (see
// ComposedContainer.OverrideProvider for the case where none existed). Only appContainer implements this — RequestScope deliberately does
// not, so wakutest.Override can detect a REQUEST-scope container by failed type assertion.
func (c *appContainer) OverrideProvider(p Provider) func() {
	return c.composed.OverrideProvider(p)
}

// RequestScope wraps a per-request child do.Scope, created from app.Container.
type RequestScope struct {
	scope     do.Injector
	ctxMap    map[string]any
	transient map[string]func(do.Injector) (any, error)

	mu       sync.Mutex
	cleanups []func()
}

func (s *RequestScope) Resolve(iface reflect.Type) (any, error) {
	key := keyFor(iface)
	if f, ok := s.transient[key]; ok {
		return f(s.scope)
	}
	return do.InvokeNamed[any](s.scope, key)
}
func (s *RequestScope) Scope() Scope { return ScopeRequest }

func (s *RequestScope) addCleanup(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.cleanups = append(s.cleanups, fn)
	s.mu.Unlock()
}

// Close tears down the request scope, running cleanup for every provider constructed within it,
// LIFO, regardless of how the scope is being exited.
func (s *RequestScope) Close() error {
	err := s.scope.Shutdown()

	s.mu.Lock()
	cleanups := s.cleanups
	s.cleanups = nil
	s.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	return err
}

func keyFor(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// resolverAdapter lets a Provider.Source factory call back into the container mid-construction
// without exposing the do.Injector type directly.
type resolverAdapter struct {
	injector do.Injector
}

func (r resolverAdapter) Resolve(iface reflect.Type) (any, error) {
	return do.InvokeNamed[any](r.injector, keyFor(iface))
}

// ContainerConfig tunes the Container Composer.
type ContainerConfig struct {
	AppContext map[string]any
}

// ComposedContainer is the built APP-scope container plus everything needed to mint request
// scopes and to let the testing harness install overrides.
type ComposedContainer struct {
	Injector  do.Injector
	appCtx    map[string]any
	logger    Logger
	transient map[string]func(do.Injector) (any, error)

	// providers tracks the Provider spec currently bound to each APP-scope key, so
	// OverrideProvider can restore the prior registration instead of merely clearing it.
	providers map[string]Provider

	mu       sync.Mutex
	cleanups []func()
}

// Compose flattens every provider in the registry onto a fresh do.Injector, respecting scope,
// activation, override and collector semantics (SPEC_FULL.md §4.2).
func Compose(registry *ModuleRegistry, cfg ContainerConfig, logger Logger) (*ComposedContainer, error) {
	injector := do.New()
	cc := &ComposedContainer{
		Injector:  injector,
		appCtx:    cfg.AppContext,
		logger:    logger,
		transient: make(map[string]func(do.Injector) (any, error)),
		providers: make(map[string]Provider),
	}

	activationCtx := cc.buildActivationContext(registry)
	registered := make(map[string]bool)
	many := make(map[string][]string) // interface key -> ordered instance keys, for collectors

	agg := &AggregateError{}

	for _, m := range registry.Modules {
		for i, p := range m.Metadata.Providers {
			if !p.Activation.Eval(activationCtx) {
				continue
			}
			if p.Scope == ScopeApp {
				key := keyFor(p.Interface)
				// Collected multi-bindings (Many with Collect=true) share an interface key across
				// providers; disambiguate them by index while still tracking the shared interface
				// for the collector. Any other repeated interface binds under the plain key, so a
				// second registration conflicts unless it is marked Override.
				instanceKey := key
				if p.Collect && countProviders(m, p.Interface) > 1 {
					instanceKey = fmt.Sprintf("%s#%d", key, i)
				}
				if p.Collect {
					many[key] = append(many[key], instanceKey)
				}
				wasRegistered := registered[instanceKey]
				if wasRegistered && !p.Override {
					agg.Add(fmt.Errorf("%w: %s", ErrProviderConflict, key))
					continue
				}
				registered[instanceKey] = true
				cc.providers[instanceKey] = p
				cc.registerApp(injector, instanceKey, p, wasRegistered)
			}
			// REQUEST-scoped providers are registered lazily, once per request scope, in
			// NewRequestScope below — do/v2 scopes are created per call, so there is nothing to
			// pre-register on the root injector for them.
		}
	}

	for iface, keys := range many {
		ifaceCopy := iface
		keysCopy := append([]string(nil), keys...)
		do.ProvideNamed[any](injector, collectorKey(ifaceCopy), func(i do.Injector) (any, error) {
			out := make([]any, 0, len(keysCopy))
			for _, k := range keysCopy {
				v, err := do.InvokeNamed[any](i, k)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
			return out, nil
		})
	}

	if agg.HasErrors() {
		return nil, agg
	}
	return cc, nil
}

func collectorKey(ifaceKey string) string { return "[]" + ifaceKey }

func countProviders(m *CompiledModule, iface reflect.Type) int {
	n := 0
	for _, p := range m.Metadata.Providers {
		if p.Interface == iface {
			n++
		}
	}
	return n
}

func (cc *ComposedContainer) buildActivationContext(registry *ModuleRegistry) ActivationContext {
	markers := make(map[Marker]bool)
	hasSet := make(map[reflect.Type]bool)
	for _, m := range registry.Modules {
		for _, p := range m.Metadata.Providers {
			hasSet[p.Interface] = true
		}
		for _, ext := range m.Metadata.Extensions {
			if a, ok := ext.(*Activator); ok {
				vals, err := a.Fn(resolverAdapter{injector: cc.Injector})
				if err != nil {
					cc.logger.Error("activator failed", "error", err)
					continue
				}
				for i, name := range a.Markers {
					if i < len(vals) {
						markers[name] = vals[i]
					}
				}
			}
		}
	}
	return ActivationContext{
		Markers:      markers,
		HasInterface: func(t reflect.Type) bool { return hasSet[t] },
	}
}

// registerApp binds one APP-scope provider to injector under key. Cache=false providers (built
// with WithCache(false)) are never registered with do at all — their factory is stashed in
// cc.transient and invoked fresh on every Resolve, since do/v2 caches every key it is given.
// TwoPhaseSource cleanup functions are collected on cc and run, LIFO, by Shutdown.
//
// override selects do's Override* family instead of Provide* — used both for a declared
// Provider{Override: true} replacing an earlier registration during Compose, and by
// OverrideProvider installing a runtime swap on behalf of the testing harness. do/v2 panics if
// Provide* targets an already-bound key or Override* targets an unbound one, so the caller must
// get this right; Compose tracks `registered` for exactly this reason.
func (cc *ComposedContainer) registerApp(injector do.Injector, key string, p Provider, override bool) {
	provideNamed := do.ProvideNamed[any]
	provideNamedValue := do.ProvideNamedValue[any]
	if override {
		provideNamed = do.OverrideNamed[any]
		provideNamedValue = do.OverrideNamedValue[any]
	}

	switch {
	case p.IsContextual:
		provideNamed(injector, key, func(do.Injector) (any, error) {
			v, ok := cc.appCtx[p.ContextKey]
			if !ok {
				return nil, fmt.Errorf("context key %q not supplied", p.ContextKey)
			}
			return v, nil
		})
	case p.Instance != nil:
		provideNamedValue(injector, key, p.Instance)
	case p.TwoPhaseSource != nil:
		factory := p.TwoPhaseSource
		build := func(i do.Injector) (any, error) {
			v, cleanup, err := factory(resolverAdapter{injector: i})
			if err != nil {
				return nil, err
			}
			if cleanup != nil {
				cc.mu.Lock()
				cc.cleanups = append(cc.cleanups, cleanup)
				cc.mu.Unlock()
			}
			return v, nil
		}
		if !p.Cache {
			cc.transient[key] = build
			return
		}
		provideNamed(injector, key, build)
	default:
		factory := p.Source
		build := func(i do.Injector) (any, error) {
			return factory(resolverAdapter{injector: i})
		}
		if !p.Cache {
			cc.transient[key] = build
			return
		}
		provideNamed(injector, key, build)
	}
}

// OverrideProvider installs p as the APP-scope registration for its interface, replacing whatever
// was bound there (via do.Override*), and returns a func restoring the previous registration. If
// no provider had been bound under that key before (the override adds a brand-new interface
// rather than replacing one), restore only removes an uncached override from the transient
// stash; a cached or instance override stays bound in do, which has no unregister primitive, so
// it still resolves after restore.
func (cc *ComposedContainer) OverrideProvider(p Provider) (restore func()) {
	key := keyFor(p.Interface)

	cc.mu.Lock()
	original, hadOriginal := cc.providers[key]
	delete(cc.transient, key)
	cc.providers[key] = p
	cc.mu.Unlock()

	cc.registerApp(cc.Injector, key, p, hadOriginal)

	return func() {
		cc.mu.Lock()
		delete(cc.transient, key)
		if hadOriginal {
			cc.providers[key] = original
		} else {
			delete(cc.providers, key)
		}
		cc.mu.Unlock()
		if hadOriginal {
			cc.registerApp(cc.Injector, key, original, true)
		}
	}
}

// NewRequestScope mints a child do.Scope, registers every REQUEST-scoped provider from registry
// onto it, and returns a RequestScope the caller must Close when the unit of work completes.
func (cc *ComposedContainer) NewRequestScope(registry *ModuleRegistry, reqCtx map[string]any) *RequestScope {
	scope := cc.Injector.Scope(fmt.Sprintf("request-%p", reqCtx))
	rs := &RequestScope{scope: scope, ctxMap: reqCtx, transient: make(map[string]func(do.Injector) (any, error))}

	for _, m := range registry.Modules {
		for _, p := range m.Metadata.Providers {
			if p.Scope == ScopeApp {
				continue
			}
			key := keyFor(p.Interface)

			if p.IsContextual {
				ctxKey := p.ContextKey
				do.ProvideNamed[any](scope, key, func(do.Injector) (any, error) {
					v, ok := reqCtx[ctxKey]
					if !ok {
						return nil, fmt.Errorf("request context key %q not supplied", ctxKey)
					}
					return v, nil
				})
				continue
			}

			var build func(do.Injector) (any, error)
			if p.TwoPhaseSource != nil {
				factory := p.TwoPhaseSource
				build = func(i do.Injector) (any, error) {
					v, cleanup, err := factory(resolverAdapter{injector: i})
					if err != nil {
						return nil, err
					}
					rs.addCleanup(cleanup)
					return v, nil
				}
			} else {
				factory := p.Source
				build = func(i do.Injector) (any, error) {
					return factory(resolverAdapter{injector: i})
				}
			}

			if !p.Cache {
				rs.transient[key] = build
				continue
			}
			do.ProvideNamed[any](scope, key, build)
		}
	}
	return rs
}

// RootContainer returns the APP-scope Container, used by the testing harness to install
// overrides.
func (cc *ComposedContainer) RootContainer() Container {
	return &appContainer{injector: cc.Injector, transient: cc.transient, composed: cc}
}

// Shutdown tears down the underlying root injector, then runs every APP-scope TwoPhaseSource
// cleanup registered over this container's lifetime, LIFO.
func (cc *ComposedContainer) Shutdown() error {
	err := cc.Injector.Shutdown()

	cc.mu.Lock()
	cleanups := cc.cleanups
	cc.cleanups = nil
	cc.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	return err
}
