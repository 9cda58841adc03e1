package waku

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ModuleRegistry is the frozen, topologically-ordered set of compiled modules produced by
// RegistryBuilder.Build. It is immutable once returned.
type ModuleRegistry struct {
	// Modules is ordered leaves-first, root-last.
	Modules []*CompiledModule

	// byTarget indexes the first compiled module encountered for each authoring type. Most
	// modules are one-instance-per-type (a package-level singleton), for which this is an exact
	// lookup; a dynamic module constructed more than once via NewModuleRef shares its Go type
	// across distinct instances; ByTarget only ever returns the first one compiled; resolve a
	// specific instance directly from its own Module value and CompiledModule.Owner instead.
	byTarget map[reflect.Type]*CompiledModule
}

// ByTarget looks up the compiled module authored by a value of type t.
func (r *ModuleRegistry) ByTarget(t reflect.Type) (*CompiledModule, bool) {
	m, ok := r.byTarget[t]
	return m, ok
}

// ExtensionMatch pairs a discovered extension with the module that owns it.
type ExtensionMatch struct {
	Module    *CompiledModule
	Extension any
}

// FindExtensions returns every module-level extension across the whole tree, in topological
// order, whose concrete type is assignable to markerType; application-level extensions passed to
// NewRegistryBuilder are not included —
// the mechanism behind the discover+aggregate pattern (e.g. the CQRS mediator's aggregator).
func (r *ModuleRegistry) FindExtensions(markerType reflect.Type) []ExtensionMatch {
	var out []ExtensionMatch
	for _, m := range r.Modules {
		for _, ext := range m.Metadata.Extensions {
			if reflect.TypeOf(ext).AssignableTo(markerType) || implementsMarker(ext, markerType) {
				out = append(out, ExtensionMatch{Module: m, Extension: ext})
			}
		}
	}
	return out
}

func implementsMarker(ext any, markerType reflect.Type) bool {
	if markerType.Kind() != reflect.Interface {
		return false
	}
	return reflect.TypeOf(ext).Implements(markerType)
}

// edgeKind distinguishes a module-import edge from a provider-dependency edge inferred during
// the registration phase, purely for diagnostic messages.
type edgeKind int

const (
	edgeImport edgeKind = iota
	edgeProviderDependency
)

func (k edgeKind) String() string {
	if k == edgeImport {
		return "import"
	}
	return "provides"
}

type dependencyEdge struct {
	from, to Module
	kind     edgeKind
}

// RegistryBuilder runs the composition pipeline described in SPEC_FULL.md §4.1: metadata
// extraction, configure hooks, transitive discovery, topological sort, registration hooks, and
// compilation into a frozen ModuleRegistry.
//
// Identity is per-instance, not per-Go-type: every map here is keyed directly by the Module
// interface value, so two dynamic-module instances of the same authoring type (each minted by a
// separate NewModuleRef call, per SPEC_FULL.md §4.1 step 1 and §9's construction-time-identity
// resolution) are tracked as two distinct modules instead of collapsing into one. Reusing the
// exact same Module value in two import lists still dedups to a single compiled module, matching
// an ordinary static import.
type RegistryBuilder struct {
	root             Module
	appExtensions    []any
	logger           Logger
	nextID           int
	metadataByModule map[Module]ModuleMetadata
	discoveryOrder   map[Module]int
}

func NewRegistryBuilder(root Module, logger Logger, appExtensions ...any) *RegistryBuilder {
	return &RegistryBuilder{
		root:             root,
		appExtensions:    appExtensions,
		logger:           logger,
		metadataByModule: make(map[Module]ModuleMetadata),
		discoveryOrder:   make(map[Module]int),
	}
}

// Build runs the full pipeline and returns the frozen registry, or an *AggregateError collecting
// every ErrModuleCycle/ErrExtension diagnostic encountered.
func (b *RegistryBuilder) Build() (*ModuleRegistry, error) {
	agg := &AggregateError{}

	// 1. Metadata extraction + transitive discovery (single DFS pass; the root is implicitly
	// global per SPEC_FULL §4.1 step 3).
	order, err := b.discover(b.root)
	if err != nil {
		agg.Add(err)
		return nil, agg.ErrOrNil()
	}

	// 2. Configure phase: mutate each module's own metadata in place, leaf-independent so order
	// does not matter here.
	for _, m := range order {
		md := b.metadataByModule[m]
		for _, ext := range md.Extensions {
			if c, ok := ext.(OnModuleConfigurer); ok {
				c.OnModuleConfigure(&md)
			}
		}
		b.metadataByModule[m] = md
	}

	// 3. Topological sort over the import graph.
	sorted, edges, err := b.topoSort(order)
	if err != nil {
		agg.Add(err)
		return nil, agg.ErrOrNil()
	}

	// 4. Compile immutable CompiledModule shells (imports resolved to pointers) so registration
	// hooks have stable identities to attach providers to. byModule is keyed by instance, so two
	// dynamic modules sharing a Go type still compile to two distinct CompiledModules; byTarget
	// additionally indexes the first compiled instance per type for the ByTarget convenience
	// lookup.
	compiled := make([]*CompiledModule, 0, len(sorted))
	byModule := make(map[Module]*CompiledModule, len(sorted))
	byTarget := make(map[reflect.Type]*CompiledModule, len(sorted))
	for _, m := range sorted {
		b.nextID++
		cm := &CompiledModule{ID: b.nextID, Owner: m, Metadata: b.metadataByModule[m]}
		compiled = append(compiled, cm)
		byModule[m] = cm
		if _, exists := byTarget[reflect.TypeOf(m)]; !exists {
			byTarget[reflect.TypeOf(m)] = cm
		}
	}
	for _, cm := range compiled {
		for _, imp := range cm.Metadata.Imports {
			if ic, ok := byModule[imp]; ok {
				cm.Imports = append(cm.Imports, ic)
			}
		}
	}
	registry := &ModuleRegistry{Modules: compiled, byTarget: byTarget}

	// 5. Registration phase: application-level hooks first, then modules in topological order.
	regCtx := &RegistrationContext{Registry: registry}
	for _, ext := range b.appExtensions {
		if r, ok := ext.(OnModuleRegisterer); ok {
			if err := r.OnModuleRegistration(regCtx); err != nil {
				agg.Add(fmt.Errorf("%w: application extension %T: %w", ErrExtension, ext, err))
			}
		}
	}
	for _, cm := range compiled {
		for _, ext := range cm.Metadata.Extensions {
			if r, ok := ext.(OnModuleRegisterer); ok {
				if err := r.OnModuleRegistration(regCtx); err != nil {
					agg.Add(fmt.Errorf("%w: module %s: %w", ErrExtension, cm.Name(), err))
				}
			}
		}
	}
	if agg.HasErrors() {
		return nil, agg
	}

	// 6. Merge any providers contributed during registration, then freeze.
	for cm, providers := range regCtx.pending {
		cm.Metadata.Providers = append(cm.Metadata.Providers, providers...)
	}

	b.logger.Debug("module registry built", "moduleCount", len(compiled))
	return registry, nil
}

// discover performs the depth-first transitive-import walk, recording each distinct module
// instance exactly once and marking the root implicitly global. Two dynamic-module instances of
// the same authoring type are distinct Module values (see NewModuleRef) and so are both visited
// and recorded; only revisiting the exact same instance is treated as already-discovered.
func (b *RegistryBuilder) discover(root Module) ([]Module, error) {
	var order []Module
	visiting := make(map[Module]bool)

	var visit func(m Module) error
	visit = func(m Module) error {
		if _, seen := b.metadataByModule[m]; seen {
			return nil
		}
		if visiting[m] {
			return fmt.Errorf("%w: module %s references itself during discovery", ErrModuleCycle, m.Name())
		}
		visiting[m] = true

		md := m.Metadata()
		if m == b.root {
			md.IsGlobal = true
		}
		b.metadataByModule[m] = md
		b.discoveryOrder[m] = len(b.discoveryOrder)

		for _, imp := range md.Imports {
			if imp == m {
				return fmt.Errorf("%w: module %s references itself during discovery", ErrModuleCycle, m.Name())
			}
			if err := visit(imp); err != nil {
				return err
			}
		}
		visiting[m] = false
		order = append(order, m)
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	return order, nil
}

// topoSort orders modules such that every imported module precedes its importer, using the same
// DFS-with-recursion-stack technique (and cycle-path reconstruction) as the teacher's service
// dependency resolver, retargeted from service names to module import edges. Nodes are Module
// instances, not Go types, so two dynamic-module instances sharing a type sort and cycle-check
// independently of one another; ties are broken by discovery order instead of a type name, since
// two instances of the same type would otherwise sort identically and non-deterministically.
func (b *RegistryBuilder) topoSort(modules []Module) ([]Module, []dependencyEdge, error) {
	var edges []dependencyEdge
	graph := make(map[Module][]Module)

	for _, m := range modules {
		md := b.metadataByModule[m]
		for _, imp := range md.Imports {
			graph[m] = append(graph[m], imp)
			edges = append(edges, dependencyEdge{from: m, to: imp, kind: edgeImport})
		}
	}

	byDiscoveryOrder := func(a, c Module) int { return b.discoveryOrder[a] - b.discoveryOrder[c] }

	var result []Module
	visited := make(map[Module]bool)
	inStack := make(map[Module]bool)
	var path []Module

	var visit func(m Module) error
	visit = func(m Module) error {
		if inStack[m] {
			return fmt.Errorf("%w: %s", ErrModuleCycle, describeCycle(path, m))
		}
		if visited[m] {
			return nil
		}
		inStack[m] = true
		path = append(path, m)

		deps := append([]Module(nil), graph[m]...)
		slices.SortFunc(deps, byDiscoveryOrder)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		visited[m] = true
		inStack[m] = false
		path = path[:len(path)-1]
		result = append(result, m)
		return nil
	}

	ordered := append([]Module(nil), modules...)
	slices.SortFunc(ordered, byDiscoveryOrder)

	for _, m := range ordered {
		if !visited[m] {
			if err := visit(m); err != nil {
				return nil, nil, err
			}
		}
	}
	return result, edges, nil
}

func describeCycle(path []Module, cycleNode Module) string {
	start := -1
	for i, m := range path {
		if m == cycleNode {
			start = i
			break
		}
	}
	if start == -1 {
		return fmt.Sprintf("cycle detected involving %s", cycleNode.Name())
	}
	cycle := append(append([]Module(nil), path[start:]...), cycleNode)
	parts := make([]string, 0, len(cycle)-1)
	for i := 0; i < len(cycle)-1; i++ {
		parts = append(parts, cycle[i].Name())
	}
	parts = append(parts, cycle[len(cycle)-1].Name())
	return "cycle: " + strings.Join(parts, " imports ")
}
