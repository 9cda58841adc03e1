package waku

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dbIface interface{ Query() string }
type stubDB struct{}

func (stubDB) Query() string { return "rows" }

type consumerIface interface{ Use() string }

func TestValidator_GlobalModuleDependencyIsAlwaysAccessible(t *testing.T) {
	dbProvider := Singleton[dbIface](func(r Resolver) (any, error) { return stubDB{}, nil })
	dbModule := &singleModule{providers: []Provider{dbProvider}, global: true}

	consumer := DependsOn(
		&Provider{Interface: ifaceOf[consumerIface](), Scope: ScopeApp, Cache: true,
			Source: func(r Resolver) (any, error) { return nil, nil }},
		ifaceOf[dbIface](),
	)
	consumerModule := &singleModule{providers: []Provider{*consumer}, imports: []Module{dbModule}}

	registry, err := NewRegistryBuilder(consumerModule, noopLogger{}).Build()
	require.NoError(t, err)

	v := &Validator{Mode: Strict, Logger: noopLogger{}}
	assert.NoError(t, v.Validate(registry))
}

func TestValidator_ExportedThroughDirectImportIsAccessible(t *testing.T) {
	dbProvider := Singleton[dbIface](func(r Resolver) (any, error) { return stubDB{}, nil })
	dbModule := &singleModule{providers: []Provider{dbProvider}, exports: []ExportRef{ExportInterface(ifaceOf[dbIface]())}}

	consumer := DependsOn(
		&Provider{Interface: ifaceOf[consumerIface](), Scope: ScopeApp, Cache: true,
			Source: func(r Resolver) (any, error) { return nil, nil }},
		ifaceOf[dbIface](),
	)
	consumerModule := &singleModule{providers: []Provider{*consumer}, imports: []Module{dbModule}}

	registry, err := NewRegistryBuilder(consumerModule, noopLogger{}).Build()
	require.NoError(t, err)

	v := &Validator{Mode: Strict, Logger: noopLogger{}}
	assert.NoError(t, v.Validate(registry))
}

func TestValidator_UnexportedImportIsInaccessible(t *testing.T) {
	dbProvider := Singleton[dbIface](func(r Resolver) (any, error) { return stubDB{}, nil })
	// No Export() here: dbIface is provided but never exported.
	dbModule := &singleModule{providers: []Provider{dbProvider}}

	consumer := DependsOn(
		&Provider{Interface: ifaceOf[consumerIface](), Scope: ScopeApp, Cache: true,
			Source: func(r Resolver) (any, error) { return nil, nil }},
		ifaceOf[dbIface](),
	)
	consumerModule := &singleModule{providers: []Provider{*consumer}, imports: []Module{dbModule}}

	registry, err := NewRegistryBuilder(consumerModule, noopLogger{}).Build()
	require.NoError(t, err)

	v := &Validator{Mode: Strict, Logger: noopLogger{}}
	err = v.Validate(registry)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyInaccessible)
}

func TestValidator_TransitiveReExportIsAccessible(t *testing.T) {
	dbProvider := Singleton[dbIface](func(r Resolver) (any, error) { return stubDB{}, nil })
	dbModule := &singleModule{providers: []Provider{dbProvider}, exports: []ExportRef{ExportInterface(ifaceOf[dbIface]())}}

	// middle re-exports dbModule wholesale without declaring any providers of its own.
	middle := &singleModule{imports: []Module{dbModule}, exports: []ExportRef{ExportModule(dbModule)}}

	consumer := DependsOn(
		&Provider{Interface: ifaceOf[consumerIface](), Scope: ScopeApp, Cache: true,
			Source: func(r Resolver) (any, error) { return nil, nil }},
		ifaceOf[dbIface](),
	)
	consumerModule := &singleModule{providers: []Provider{*consumer}, imports: []Module{middle}}

	registry, err := NewRegistryBuilder(consumerModule, noopLogger{}).Build()
	require.NoError(t, err)

	v := &Validator{Mode: Strict, Logger: noopLogger{}}
	assert.NoError(t, v.Validate(registry))
}

func TestValidator_LenientModeLogsAndContinues(t *testing.T) {
	dbProvider := Singleton[dbIface](func(r Resolver) (any, error) { return stubDB{}, nil })
	dbModule := &singleModule{providers: []Provider{dbProvider}}

	consumer := DependsOn(
		&Provider{Interface: ifaceOf[consumerIface](), Scope: ScopeApp, Cache: true,
			Source: func(r Resolver) (any, error) { return nil, nil }},
		ifaceOf[dbIface](),
	)
	consumerModule := &singleModule{providers: []Provider{*consumer}, imports: []Module{dbModule}}

	registry, err := NewRegistryBuilder(consumerModule, noopLogger{}).Build()
	require.NoError(t, err)

	v := &Validator{Mode: Lenient, Logger: noopLogger{}}
	assert.NoError(t, v.Validate(registry), "lenient mode must not fail Create even with violations")
}

func TestValidator_OwnContextualVariableIsAccessible(t *testing.T) {
	consumerModule := &singleModule{providers: []Provider{
		Contextual[dbIface](ScopeApp, "db"),
		*DependsOn(
			&Provider{Interface: ifaceOf[consumerIface](), Scope: ScopeApp, Cache: true,
				Source: func(r Resolver) (any, error) { return nil, nil }},
			ifaceOf[dbIface](),
		),
	}}

	registry, err := NewRegistryBuilder(consumerModule, noopLogger{}).Build()
	require.NoError(t, err)

	v := &Validator{Mode: Strict, Logger: noopLogger{}}
	assert.NoError(t, v.Validate(registry))
}
