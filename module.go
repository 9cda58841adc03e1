// Package waku provides a modular-application microframework: explicit module boundaries,
// startup-time validation of the dependency-injection wiring graph, and a CQRS mediator with
// pipeline behaviors, built on top of github.com/samber/do/v2 as the underlying container
// runtime.
//
// A Waku application is composed once, at startup, from a tree of Modules. Each module declares
// the providers it contributes, the modules it imports, and the subset of its providers it
// exports to importers. The Factory resolves the whole tree, validates that every provider's
// dependencies are reachable through the import mesh, and hands back a long-lived Application.
package waku

import (
	"context"
	"reflect"
)

// Module is the unit of composition. Implementations describe themselves via Metadata; the
// framework never calls user code to "discover" a module beyond that single method.
type Module interface {
	// Name returns a short, unique, human-readable identifier used in diagnostics.
	Name() string

	// Metadata returns this module's declarative bundle of providers, imports and exports.
	// Called once per distinct module reference during registry construction.
	Metadata() ModuleMetadata
}

// ModuleRef wraps a dynamically-parameterized module so that each construction gets its own
// identity, independent of the underlying authoring type. A factory that builds the same kind of
// module from caller-supplied arguments (e.g. one tenant-scoped module per tenant ID) should wrap
// every instance it returns in a fresh NewModuleRef call; the registry then tracks each wrapped
// instance as a distinct module during discovery and topological sort (SPEC_FULL.md §4.1 step 1,
// §9), even when two instances carry structurally-equal arguments. Reusing the exact same
// *ModuleRef value in two import lists still dedups to a single compiled module, matching an
// ordinary static import.
type ModuleRef struct {
	Module
	id int
}

var nextModuleRefID int

// NewModuleRef assigns m a fresh construction-time identity. Call it once per invocation of a
// dynamic-module factory, not once per authoring type.
func NewModuleRef(m Module) *ModuleRef {
	nextModuleRefID++
	return &ModuleRef{Module: m, id: nextModuleRefID}
}

// RefID returns the construction-time identity assigned by NewModuleRef.
func (r *ModuleRef) RefID() int { return r.id }

// ExportRef is either an exported interface key or a re-exported whole module.
type ExportRef struct {
	Interface reflect.Type
	Module    Module
}

// ExportInterface re-exports a single provider interface.
func ExportInterface(t reflect.Type) ExportRef { return ExportRef{Interface: t} }

// ExportModule re-exports every interface m itself exports, transitively forwarding visibility.
func ExportModule(m Module) ExportRef { return ExportRef{Module: m} }

// ModuleMetadata is the pre-compilation bag of everything a module declares about itself.
type ModuleMetadata struct {
	Providers  []Provider
	Imports    []Module
	Exports    []ExportRef
	Extensions []any
	IsGlobal   bool

	// Target is the authoring type, used for equality/deduplication/diagnostics. Set by
	// NewModuleMetadata from the module value passed to it.
	Target reflect.Type
}

// NewModuleMetadata builds metadata for owner, recording owner's concrete type as Target.
func NewModuleMetadata(owner Module, opts ...MetadataOption) ModuleMetadata {
	md := ModuleMetadata{Target: reflect.TypeOf(owner)}
	for _, opt := range opts {
		opt(&md)
	}
	return md
}

// MetadataOption configures a ModuleMetadata; used as the fluent-builder surface modules use to
// describe themselves from inside Metadata().
type MetadataOption func(*ModuleMetadata)

func Provide(providers ...Provider) MetadataOption {
	return func(md *ModuleMetadata) { md.Providers = append(md.Providers, providers...) }
}

func Import(modules ...Module) MetadataOption {
	return func(md *ModuleMetadata) { md.Imports = append(md.Imports, modules...) }
}

func Export(refs ...ExportRef) MetadataOption {
	return func(md *ModuleMetadata) { md.Exports = append(md.Exports, refs...) }
}

func WithExtensions(extensions ...any) MetadataOption {
	return func(md *ModuleMetadata) { md.Extensions = append(md.Extensions, extensions...) }
}

func Global() MetadataOption {
	return func(md *ModuleMetadata) { md.IsGlobal = true }
}

// Module hook protocols. The registry builder type-asserts extensions and modules against these
// structurally — there is no closed sum type, any combination may be implemented.
type (
	// OnModuleConfigurer runs synchronously after transitive discovery has completed and before
	// the topological sort. Modules it adds to Imports are not themselves discovered. MUST NOT
	// perform I/O.
	OnModuleConfigurer interface {
		OnModuleConfigure(md *ModuleMetadata)
	}

	// OnModuleRegisterer runs synchronously after all metadata has been collected, in
	// topological order (application-level registerers run first). It may contribute providers
	// to the registry via RegistrationContext.AddProvider.
	OnModuleRegisterer interface {
		OnModuleRegistration(ctx *RegistrationContext) error
	}

	// OnModuleDiscoverer is a marker interface: extensions implementing it can be located across
	// the whole tree via ModuleRegistry.FindExtensions, enabling the discover+aggregate pattern.
	OnModuleDiscoverer interface {
		onModuleDiscover()
	}

	// OnModuleIniter runs during Application.Run, in topological order.
	OnModuleIniter interface {
		OnModuleInit(ctx context.Context, app *Application) error
	}

	// OnModuleDestroyer runs during shutdown, in reverse topological order.
	OnModuleDestroyer interface {
		OnModuleDestroy(ctx context.Context, app *Application) error
	}
)

// Application-level hooks, supplied via WithExtensions on the root module or FactoryOptions.
type (
	OnApplicationIniter interface {
		OnApplicationInit(ctx context.Context, app *Application) error
	}
	AfterApplicationIniter interface {
		AfterApplicationInit(ctx context.Context, app *Application) error
	}
	OnApplicationShutdowner interface {
		OnApplicationShutdown(ctx context.Context, app *Application) error
	}
)

// CompiledModule is the immutable, post-registration form of a module: metadata plus a stable ID
// and resolved import list. No further mutation is possible once a CompiledModule exists.
type CompiledModule struct {
	ID       int
	Owner    Module
	Metadata ModuleMetadata
	Imports  []*CompiledModule
}

func (m *CompiledModule) Name() string {
	return m.Owner.Name()
}

// exportsInterface reports whether this module directly exports iface (not transitively).
func (m *CompiledModule) exportsInterface(iface reflect.Type) bool {
	for _, p := range m.Metadata.Providers {
		if p.Interface == iface {
			for _, e := range m.Metadata.Exports {
				if e.Interface == iface {
					return true
				}
			}
		}
	}
	return false
}

// RegistrationContext is the read/write surface OnModuleRegisterer hooks receive: read access to
// the whole collected metadata set, write access restricted to contributing new providers.
type RegistrationContext struct {
	Registry *ModuleRegistry

	pending map[*CompiledModule][]Provider
}

// AddProvider contributes a provider to owner's compiled metadata. Only valid during the
// registration phase; providers added here participate in accessibility validation and
// container composition exactly like declared providers.
func (rc *RegistrationContext) AddProvider(owner *CompiledModule, p Provider) {
	if rc.pending == nil {
		rc.pending = make(map[*CompiledModule][]Provider)
	}
	rc.pending[owner] = append(rc.pending[owner], p)
}
