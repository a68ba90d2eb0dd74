package entity

import (
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"
)

// ComponentSpec describes one component of an archetype.
type ComponentSpec struct {
	Type       string         `yaml:"type"`
	Script     string         `yaml:"script,omitempty"`
	Properties map[string]any `yaml:"properties,omitempty"`
}

// Archetype is a named template of components and script events.
type Archetype struct {
	Name       string          `yaml:"name"`
	Components []ComponentSpec `yaml:"components"`

	// Events are declared on every entity spawned from the archetype. They
	// accept payloads of any type.
	Events []string `yaml:"events,omitempty"`
}

// Spec returns the component spec for typeName.
func (a Archetype) Spec(typeName string) (ComponentSpec, bool) {
	for _, c := range a.Components {
		if c.Type == typeName {
			return c, true
		}
	}
	return ComponentSpec{}, false
}

// Types returns the component types in declaration order.
func (a Archetype) Types() []string {
	out := make([]string, len(a.Components))
	for i, c := range a.Components {
		out[i] = c.Type
	}
	return out
}

// Validate checks the archetype's structure.
func (a Archetype) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidArchetype)
	}
	seen := make(map[string]bool, len(a.Components))
	for i, c := range a.Components {
		if c.Type == "" {
			return fmt.Errorf("%w: %s: component %d has no type", ErrInvalidArchetype, a.Name, i)
		}
		if seen[c.Type] {
			return fmt.Errorf("%w: %s: component %s listed twice", ErrInvalidArchetype, a.Name, c.Type)
		}
		seen[c.Type] = true
	}
	for _, ev := range a.Events {
		if ev == "" {
			return fmt.Errorf("%w: %s: empty event name", ErrInvalidArchetype, a.Name)
		}
	}
	return nil
}

// clone returns a deep enough copy for the scene to keep.
func (a Archetype) clone() Archetype {
	out := Archetype{
		Name:       a.Name,
		Components: make([]ComponentSpec, len(a.Components)),
		Events:     append([]string(nil), a.Events...),
	}
	for i, c := range a.Components {
		c.Properties = maps.Clone(c.Properties)
		out.Components[i] = c
	}
	return out
}

// archetypeFile is the on-disk layout.
type archetypeFile struct {
	Archetypes []Archetype `yaml:"archetypes"`
}

// ParseArchetypes decodes a YAML archetype document.
func ParseArchetypes(data []byte) ([]Archetype, error) {
	var f archetypeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing archetypes: %w", err)
	}

	names := make(map[string]bool, len(f.Archetypes))
	for _, a := range f.Archetypes {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if names[a.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateArchetype, a.Name)
		}
		names[a.Name] = true
	}
	return f.Archetypes, nil
}

// LoadArchetypes reads and parses an archetype file.
func LoadArchetypes(path string) ([]Archetype, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading archetypes: %w", err)
	}
	archetypes, err := ParseArchetypes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return archetypes, nil
}
