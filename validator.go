package waku

import (
	"fmt"
	"reflect"
)

// ValidationMode selects how the Accessibility Validator reacts to a violation.
type ValidationMode int

const (
	// Strict aggregates every violation and aborts Factory.Create.
	Strict ValidationMode = iota
	// Lenient logs a warning per violation and continues.
	Lenient
)

// ValidationError describes one accessibility-rule violation: a provider declared in Module
// requires Dependency, but no reachable module exports it.
type ValidationError struct {
	Module            *CompiledModule
	RequiringProvider reflect.Type
	Dependency        reflect.Type
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%s: type %s required by provider %s in module %s is not reachable "+
		"through the import mesh — export it and import %[4]s, mark %[4]s global, or move the "+
		"provider into a module that already sees it",
		ErrDependencyInaccessible, v.Dependency, v.RequiringProvider, v.Module.Name())
}

func (v *ValidationError) Unwrap() error { return ErrDependencyInaccessible }

// ValidationRule lets additional checks participate in the after-init validation pass.
type ValidationRule interface {
	Validate(ctx ValidationContext) []error
}

// ValidationContext exposes the frozen registry to extra validation rules.
type ValidationContext struct {
	Registry *ModuleRegistry
}

// Validator implements the Accessibility Validator described in SPEC_FULL.md §4.3.
type Validator struct {
	Mode   ValidationMode
	Logger Logger
	Extra  []ValidationRule
}

// Validate walks every provider dependency in the registry and reports every inaccessible one.
// In Strict mode it returns an *AggregateError; in Lenient mode it logs and returns nil.
func (v *Validator) Validate(registry *ModuleRegistry) error {
	agg := &AggregateError{}

	for _, m := range registry.Modules {
		for _, p := range m.Metadata.Providers {
			for _, dep := range p.Dependencies() {
				if !v.accessibleFrom(m, dep, registry) {
					agg.Add(&ValidationError{Module: m, RequiringProvider: p.Interface, Dependency: dep})
				}
			}
		}
	}

	for _, rule := range v.Extra {
		for _, err := range rule.Validate(ValidationContext{Registry: registry}) {
			agg.Add(err)
		}
	}

	if !agg.HasErrors() {
		return nil
	}

	if v.Mode == Lenient {
		for _, err := range agg.Errors {
			v.Logger.Warn("accessibility violation", "error", err)
		}
		return nil
	}
	return agg
}

// accessibleFrom implements the five-step short-circuiting order from SPEC_FULL.md §4.3.
func (v *Validator) accessibleFrom(m *CompiledModule, dep reflect.Type, registry *ModuleRegistry) bool {
	// 1. Provided by a global module, or D is an APP-scope context key — these are two
	// independent disjuncts of the same step (spec.md §4.3).
	for _, other := range registry.Modules {
		if other.Metadata.IsGlobal && other.exportsInterface(dep) {
			return true
		}
		if other.Metadata.IsGlobal && providesLocally(other, dep) {
			return true
		}
		for _, p := range other.Metadata.Providers {
			if p.IsContextual && p.Scope == ScopeApp && p.Interface == dep {
				return true
			}
		}
	}

	// 2. Provided locally in M.
	if providesLocally(m, dep) {
		return true
	}

	// 3. M's own context variable.
	for _, p := range m.Metadata.Providers {
		if p.IsContextual && p.Interface == dep {
			return true
		}
	}

	// 4. Exported by a directly-imported module, following whole-module re-exports
	// transitively.
	for _, imp := range m.Imports {
		if reachesExport(imp, dep, make(map[*CompiledModule]bool)) {
			return true
		}
	}

	return false
}

func providesLocally(m *CompiledModule, t reflect.Type) bool {
	for _, p := range m.Metadata.Providers {
		if p.Interface == t {
			return true
		}
	}
	return false
}

// reachesExport follows module's direct interface exports, and whole-module re-exports
// transitively, looking for dep.
func reachesExport(module *CompiledModule, dep reflect.Type, seen map[*CompiledModule]bool) bool {
	if seen[module] {
		return false
	}
	seen[module] = true

	if module.exportsInterface(dep) {
		return true
	}
	for _, e := range module.Metadata.Exports {
		if e.Module == nil {
			continue
		}
		if reexported, ok := findCompiled(module, e.Module); ok {
			if reachesExport(reexported, dep, seen) {
				return true
			}
		}
	}
	return false
}

// findCompiled resolves a re-exported Module value to its CompiledModule among module's own
// imports (a re-export must itself be imported to be reachable).
func findCompiled(module *CompiledModule, target Module) (*CompiledModule, bool) {
	for _, imp := range module.Imports {
		if imp.Owner == target {
			return imp, true
		}
	}
	return nil, false
}
