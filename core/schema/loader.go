package schema

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Definition is the on-disk form of a metamodel: a naming strategy and the
// entities it applies to.
type Definition struct {
	Naming   string              `json:"naming,omitempty" yaml:"naming,omitempty"`
	Entities []*PersistentEntity `json:"entities" yaml:"entities"`
}

// LoadJSON parses a JSON metamodel definition and returns its registry.
func LoadJSON(data []byte) (*Registry, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse metamodel JSON: %w", err)
	}
	return def.Registry()
}

// LoadYAML parses a YAML metamodel definition and returns its registry.
func LoadYAML(data []byte) (*Registry, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse metamodel YAML: %w", err)
	}
	return def.Registry()
}

// Registry builds a Registry from the definition.
func (d *Definition) Registry() (*Registry, error) {
	naming, err := NamingStrategyByName(d.Naming)
	if err != nil {
		return nil, err
	}
	if len(d.Entities) == 0 {
		return nil, fmt.Errorf("metamodel definition declares no entities")
	}
	return NewRegistry(naming, d.Entities...)
}
