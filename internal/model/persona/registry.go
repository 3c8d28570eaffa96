package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var catalogue []byte

var ErrNotFound = errors.New("persona not found")

// Registry exposes the immutable persona catalogue.
type Registry struct {
	items map[ID]Persona
}

type catalogueFile struct {
	Personas []Persona `yaml:"personas"`
}

// NewRegistry parses a YAML catalogue and checks that it covers the persona set exactly once.
func NewRegistry(data []byte) (*Registry, error) {
	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode persona catalogue: %w", err)
	}

	items := make(map[ID]Persona, len(ids))
	for _, item := range file.Personas {
		if !item.ID.Valid() {
			return nil, fmt.Errorf("%w: %q in catalogue", ErrUnknownPersona, item.ID)
		}
		if _, dup := items[item.ID]; dup {
			return nil, fmt.Errorf("persona %s defined twice", item.ID)
		}
		if strings.TrimSpace(item.Name) == "" {
			return nil, fmt.Errorf("persona %s has no name", item.ID)
		}
		item.Instruction = strings.TrimSpace(item.Instruction)
		if item.Instruction == "" {
			return nil, fmt.Errorf("persona %s has no instruction", item.ID)
		}
		items[item.ID] = item
	}

	for _, id := range ids {
		if _, ok := items[id]; !ok {
			return nil, fmt.Errorf("persona %s missing from catalogue", id)
		}
	}

	return &Registry{items: items}, nil
}

// Default returns the registry built from the embedded catalogue.
func Default() *Registry {
	registry, err := NewRegistry(catalogue)
	if err != nil {
		panic(fmt.Sprintf("embedded persona catalogue: %v", err))
	}
	return registry
}

// List returns every persona in display order.
func (r *Registry) List() []Persona {
	out := make([]Persona, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.items[id].clone())
	}
	return out
}

// Lookup returns the persona for id. ErrNotFound means the caller built an
// identifier outside the persona set.
func (r *Registry) Lookup(id ID) (Persona, error) {
	item, ok := r.items[id]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return item.clone(), nil
}
