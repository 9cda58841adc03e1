package waku

import (
	"encoding/json"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/golobby/config/v3/pkg/feeder"
	"gopkg.in/yaml.v3"
)

// Feeder reads configuration data into structure, the same contract
// github.com/golobby/config/v3's own feeders satisfy.
type Feeder interface {
	Feed(structure interface{}) error
}

// ComplexFeeder additionally extracts a single named key from its source before feeding —
// satisfied by the structured-file feeders below, whose files hold every module's section under
// one top-level key. Plain Feeder implementations (env, dotenv) have no notion of keys: they feed
// every Configurable struct directly by field tag.
type ComplexFeeder interface {
	Feeder
	FeedKey(key string, target interface{}) error
}

// sectionFeeder is the one ComplexFeeder implementation backing every structured-file format
// Waku ships: it feeds a raw golobby Feeder into a map, then re-marshals the named top-level key
// through format's own codec into target. A single implementation shared across JSON/TOML/YAML
// replaces three near-identical FeedKey bodies.
type sectionFeeder struct {
	raw       Feeder
	format    string
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

func (s sectionFeeder) Feed(target interface{}) error { return s.raw.Feed(target) }

func (s sectionFeeder) FeedKey(key string, target interface{}) error {
	var allData map[string]interface{}
	if err := s.raw.Feed(&allData); err != nil {
		return fmt.Errorf("waku: reading %s config section %q: %w", s.format, key, err)
	}

	value, exists := allData[key]
	if !exists {
		return nil
	}

	raw, err := s.marshal(value)
	if err != nil {
		return fmt.Errorf("waku: marshaling %s config section %q: %w", s.format, key, err)
	}
	if err := s.unmarshal(raw, target); err != nil {
		return fmt.Errorf("waku: unmarshaling %s config section %q: %w", s.format, key, err)
	}
	return nil
}

// JSONSection feeds a module's config struct from one top-level key of a JSON file.
func JSONSection(path string) ComplexFeeder {
	return sectionFeeder{raw: feeder.Json{Path: path}, format: "json", marshal: json.Marshal, unmarshal: json.Unmarshal}
}

// TOMLSection feeds a module's config struct from one top-level key of a TOML file.
func TOMLSection(path string) ComplexFeeder {
	return sectionFeeder{raw: feeder.Toml{Path: path}, format: "toml", marshal: toml.Marshal, unmarshal: toml.Unmarshal}
}

// YAMLSection feeds a module's config struct from one top-level key of a YAML file.
func YAMLSection(path string) ComplexFeeder {
	return sectionFeeder{raw: feeder.Yaml{Path: path}, format: "yaml", marshal: yaml.Marshal, unmarshal: yaml.Unmarshal}
}

// ConfigFeeders is the feeder set ConfigSection uses when it is given no feeders: plain process
// environment variables, fed directly by golobby's own Env feeder
// since a flat key=value source has no notion of a named section to extract.
var ConfigFeeders = []Feeder{
	feeder.Env{},
}
