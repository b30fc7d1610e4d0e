package config

import (
	"fmt"

	"github.com/vk/evalgraph/internal/registry"
	"github.com/vk/evalgraph/internal/validate"
	"github.com/vk/evalgraph/internal/value"
)

// Page is the format-agnostic representation of a page definition.
type Page struct {
	Entities []*Entity
}

// Entity is one widget, action or script object of a page.
type Entity struct {
	Kind       string
	Name       string
	Parent     string
	Properties []*Property
	// Source is the file the entity was declared in, for error messages.
	Source string
}

// Property is one declared property. Either Value or Formula is set.
type Property struct {
	Name    string
	Type    string
	Value   value.Value
	Formula string
	// Trigger marks an action binding, evaluated only when triggered.
	Trigger bool
}

// Merge appends other's entities to p.
func (p *Page) Merge(other *Page) {
	if other == nil {
		return
	}
	p.Entities = append(p.Entities, other.Entities...)
}

// Specs converts the page into registry definitions, in declaration order.
func (p *Page) Specs() ([]registry.EntitySpec, error) {
	specs := make([]registry.EntitySpec, 0, len(p.Entities))
	seen := make(map[string]string, len(p.Entities))
	for _, e := range p.Entities {
		if prev, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("entity %q declared in %s and %s: %w", e.Name, prev, e.Source, registry.ErrDuplicateEntity)
		}
		seen[e.Name] = e.Source

		spec, err := e.Spec()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Spec converts a single entity.
func (e *Entity) Spec() (registry.EntitySpec, error) {
	kind, err := registry.ParseEntityKind(e.Kind)
	if err != nil {
		return registry.EntitySpec{}, fmt.Errorf("entity %q: %w", e.Name, err)
	}
	spec := registry.EntitySpec{Name: e.Name, Kind: kind, Parent: e.Parent}
	for _, prop := range e.Properties {
		t, err := validate.ParseType(prop.Type)
		if err != nil {
			return registry.EntitySpec{}, fmt.Errorf("entity %q, property %q: %w", e.Name, prop.Name, err)
		}
		spec.Properties = append(spec.Properties, registry.PropertySpec{
			Name:    prop.Name,
			Type:    t,
			Raw:     prop.Value,
			Formula: prop.Formula,
			Trigger: prop.Trigger,
		})
	}
	return spec, nil
}
