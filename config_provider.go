package waku

import (
	"fmt"

	"github.com/wakuframework/waku/config"
)

// ConfigProvider exposes a loaded configuration value to code that would rather not import the
// concrete struct type that defines it.
type ConfigProvider interface {
	GetConfig() any
}

// StdConfigProvider is the default ConfigProvider: a fixed value set once at construction.
type StdConfigProvider struct {
	cfg any
}

// NewStdConfigProvider wraps cfg as a ConfigProvider.
func NewStdConfigProvider(cfg any) *StdConfigProvider { return &StdConfigProvider{cfg: cfg} }

func (s *StdConfigProvider) GetConfig() any { return s.cfg }

// Config is one feed pass over a set of target structs, each keyed by the section name its
// values live under in structured sources (JSON/TOML/YAML files normally hold every module's
// section under one top-level key).
type Config struct {
	StructKeys map[string]interface{}
}

// NewConfig starts an empty feed pass.
func NewConfig() *Config {
	return &Config{StructKeys: make(map[string]interface{})}
}

// AddStructKey registers target to be fed under key and returns c for chaining.
func (c *Config) AddStructKey(key string, target interface{}) *Config {
	c.StructKeys[key] = target
	return c
}

// Feed applies every feeder, in the order given, to every registered key (keys are visited in
// map order, not registration order): a ComplexFeeder
// extracts just that key from its structured source, a plain Feeder (env, dotenv) feeds the
// whole target directly since those sources have no notion of keys. Once every feeder has run,
// Feed applies struct-tag defaults, then required-field validation, then — if the target
// implements ConfigSetup — its Setup method, for defaulting or cross-field validation a struct
// tag cannot express.
func (c *Config) Feed(feeders []Feeder) error {
	for key, target := range c.StructKeys {
		for _, f := range feeders {
			var err error
			if cf, ok := f.(ComplexFeeder); ok {
				err = cf.FeedKey(key, target)
			} else {
				err = f.Feed(target)
			}
			if err != nil {
				return fmt.Errorf("waku: feeding config key %q: %w", key, err)
			}
		}
		if err := config.ApplyDefaults(target); err != nil {
			return fmt.Errorf("waku: applying defaults for config key %q: %w", key, err)
		}
		if err := config.ValidateRequired(target); err != nil {
			return fmt.Errorf("waku: validating config key %q: %w", key, err)
		}
		if setup, ok := target.(ConfigSetup); ok {
			if err := setup.Setup(); err != nil {
				return fmt.Errorf("waku: config setup for key %q: %w", key, err)
			}
		}
	}
	return nil
}

// ConfigSetup lets a fed config struct run defaulting or cross-field validation once feeding
// completes.
type ConfigSetup interface {
	Setup() error
}

// ConfigSection returns a Provider that feeds target under key — using feeders if supplied,
// ConfigFeeders otherwise — the first time interface I is resolved, then caches target as the
// app-scoped singleton for I. This is how a module exposes its own configuration struct: declare
// one in Metadata's Provide list alongside everything else the module contributes.
func ConfigSection[I any](key string, target interface{}, feeders ...[]Feeder) Provider {
	fs := ConfigFeeders
	if len(feeders) > 0 {
		fs = feeders[0]
	}
	return Provider{
		Interface: ifaceOf[I](),
		Source: func(r Resolver) (any, error) {
			if err := NewConfig().AddStructKey(key, target).Feed(fs); err != nil {
				return nil, err
			}
			return target, nil
		},
		Scope: ScopeApp,
		Cache: true,
	}
}
