// Package wakutest is the testing harness described in SPEC_FULL.md §4.7: a synthetic module
// composed from ad-hoc providers (optionally layered as overrides atop a real module) and a
// runtime Override helper for swapping APP-scope registrations mid-test, mirroring the teacher's
// own isolation idiom (internal/testutil.Isolate) but for container state instead of env vars.
package wakutest

import (
	"context"
	"reflect"
	"testing"

	"github.com/wakuframework/waku"
)

// syntheticModule is the throwaway root module NewTestApp builds from the caller's options.
type syntheticModule struct {
	id int
	md waku.ModuleMetadata
}

func (m *syntheticModule) Name() string                   { return "wakutest.synthetic" }
func (m *syntheticModule) Metadata() waku.ModuleMetadata { return m.md }

// TestAppOption configures the synthetic application NewTestApp builds.
type TestAppOption func(*testAppConfig)

type testAppConfig struct {
	base          waku.Module
	providers     []waku.Provider
	imports       []waku.Module
	extensions    []any
	appExtensions []any
	context       map[string]any
	validationMode waku.ValidationMode
}

// WithBase imports base into the synthetic module and marks every provider passed via
// WithProviders as Override: true, so they replace base's own declarations for the same
// interface regardless of which module originally declared it.
func WithBase(base waku.Module) TestAppOption {
	return func(c *testAppConfig) { c.base = base }
}

// WithProviders adds ad-hoc providers to the synthetic test module.
func WithProviders(providers ...waku.Provider) TestAppOption {
	return func(c *testAppConfig) { c.providers = append(c.providers, providers...) }
}

// WithImports imports additional modules alongside WithBase's module, if any.
func WithImports(modules ...waku.Module) TestAppOption {
	return func(c *testAppConfig) { c.imports = append(c.imports, modules...) }
}

// WithExtensions attaches extensions (hooks, ModuleBindings, ...) to the synthetic module itself.
func WithExtensions(extensions ...any) TestAppOption {
	return func(c *testAppConfig) { c.extensions = append(c.extensions, extensions...) }
}

// WithAppExtensions attaches application-level extensions, the same as waku.WithExtensions on
// the real Factory.
func WithAppExtensions(extensions ...any) TestAppOption {
	return func(c *testAppConfig) { c.appExtensions = append(c.appExtensions, extensions...) }
}

// WithContext supplies the APP-level context map consumed by Contextual providers and
// APP-scope activators.
func WithContext(ctx map[string]any) TestAppOption {
	return func(c *testAppConfig) { c.context = ctx }
}

// WithValidationMode overrides the default Strict accessibility-validation mode; tests that
// deliberately compose an incomplete graph to assert a failure pass waku.Lenient here.
func WithValidationMode(mode waku.ValidationMode) TestAppOption {
	return func(c *testAppConfig) { c.validationMode = mode }
}

var nextSyntheticID int

// NewTestApp composes a synthetic module from opts (importing WithBase's module, if any) and
// builds a fully-initialized *waku.Application from it, registering t.Cleanup to run shutdown.
// When WithBase is supplied, every provider passed via WithProviders is marked as an override of
// the base module's own declarations — SPEC_FULL.md §8 property 6: the override wins for every
// consumer, regardless of which module originally declared the interface.
func NewTestApp(t *testing.T, opts ...TestAppOption) *waku.Application {
	t.Helper()

	cfg := &testAppConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	providers := cfg.providers
	if cfg.base != nil {
		marked := make([]waku.Provider, len(providers))
		for i, p := range providers {
			p.Override = true
			marked[i] = p
		}
		providers = marked
	}

	imports := cfg.imports
	if cfg.base != nil {
		imports = append(imports, cfg.base)
	}

	nextSyntheticID++
	module := &syntheticModule{id: nextSyntheticID}
	module.md = waku.ModuleMetadata{
		Providers:  providers,
		Imports:    imports,
		Extensions: cfg.extensions,
		Target:     reflect.TypeOf(module),
	}

	factory := waku.NewFactory(module,
		waku.WithAppContext(cfg.context),
		waku.WithExtensions(cfg.appExtensions...),
		waku.WithValidationMode(cfg.validationMode),
	)
	app, err := factory.Create(context.Background())
	if err != nil {
		t.Fatalf("wakutest: building test application: %v", err)
	}

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("wakutest: starting test application: %v", err)
	}
	t.Cleanup(func() {
		if err := app.Stop(context.Background()); err != nil {
			t.Errorf("wakutest: stopping test application: %v", err)
		}
	})

	return app
}

// Override temporarily replaces the APP-scope registration for each provider's interface on c,
// restoring the previous registration when the returned func runs. Where no registration existed
// before, restore removes only an uncached override; a cached or instance override stays bound.
// It panics with waku.ErrOverrideOnRequestScope if c is not the APP-scope container — only
// app.RootContainer() satisfies the internal swap hook Override needs.
func Override(c waku.Container, providers ...waku.Provider) (restore func()) {
	if c.Scope() != waku.ScopeApp {
		panic(waku.ErrOverrideOnRequestScope)
	}
	swapper, ok := c.(interface {
		OverrideProvider(waku.Provider) func()
	})
	if !ok {
		panic(waku.ErrOverrideOnRequestScope)
	}

	restores := make([]func(), 0, len(providers))
	for _, p := range providers {
		restores = append(restores, swapper.OverrideProvider(p))
	}

	return func() {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
	}
}
