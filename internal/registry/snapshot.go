package registry

import (
	"sort"

	"github.com/vk/evalgraph/internal/nodeid"
	"github.com/vk/evalgraph/internal/value"
)

// PropertyState is a property's definition and last evaluation as seen by
// a snapshot.
type PropertyState struct {
	Entity  string
	Spec    PropertySpec
	Value   value.Value
	Status  Status
	Message string
	// Evaluated is false until the property was committed at least once.
	Evaluated bool
}

// EntityState is an entity as seen by a snapshot.
type EntityState struct {
	Name       string
	Kind       EntityKind
	Parent     string
	Properties []string
}

// Snapshot is an immutable view of the registry taken at one revision.
type Snapshot struct {
	Revision uint64
	// Dirty lists the paths mutated since the last commit.
	Dirty []string
	// Removed lists the paths deleted since the last commit.
	Removed []string

	entities map[string]EntityState
	props    map[string]PropertyState
}

// Snapshot copies the current state. Values are immutable so the copy is
// shallow.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := &Snapshot{
		Revision: r.revision,
		Dirty:    sortedSet(r.dirty),
		Removed:  sortedSet(r.removed),
		entities: make(map[string]EntityState, len(r.entities)),
		props:    make(map[string]PropertyState),
	}
	for name, e := range r.entities {
		s.entities[name] = EntityState{
			Name:       name,
			Kind:       e.kind,
			Parent:     e.parent,
			Properties: append([]string(nil), e.order...),
		}
		for _, pn := range e.order {
			p := e.props[pn]
			s.props[nodeid.Join(name, pn)] = PropertyState{
				Entity:    name,
				Spec:      p.spec,
				Value:     p.value,
				Status:    p.status,
				Message:   p.message,
				Evaluated: p.evaluated,
			}
		}
	}
	return s
}

// HasEntity reports whether the snapshot contains an entity named name.
func (s *Snapshot) HasEntity(name string) bool {
	_, ok := s.entities[name]
	return ok
}

// Entity returns the named entity.
func (s *Snapshot) Entity(name string) (EntityState, bool) {
	e, ok := s.entities[name]
	return e, ok
}

// EntityNames returns every entity name in sorted order.
func (s *Snapshot) EntityNames() []string {
	out := make([]string, 0, len(s.entities))
	for n := range s.entities {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Children returns the sorted names of entities whose parent is name.
func (s *Snapshot) Children(name string) []string {
	var out []string
	for n, e := range s.entities {
		if e.Parent == name {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Property returns the state of the property at path.
func (s *Snapshot) Property(path string) (PropertyState, bool) {
	p, ok := s.props[path]
	return p, ok
}

// Paths returns every property path in sorted order.
func (s *Snapshot) Paths() []string {
	out := make([]string, 0, len(s.props))
	for p := range s.props {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Value resolves path, nested parts included, against the snapshot.
func (s *Snapshot) Value(path string) value.Value {
	addr, err := nodeid.Parse(path)
	if err != nil || addr.PropertyName() == "" {
		return value.Undefined()
	}
	p, ok := s.props[nodeid.Join(addr.Entity(), addr.PropertyName())]
	if !ok {
		return value.Undefined()
	}
	return descend(p.Value, addr)
}

// Values returns the flat value tree: property path to last value.
// Triggers hold no value and are left out.
func (s *Snapshot) Values() map[string]value.Value {
	out := make(map[string]value.Value, len(s.props))
	for path, p := range s.props {
		if p.Spec.Trigger {
			continue
		}
		out[path] = p.Value
	}
	return out
}

// Tree returns the value tree as one object per entity.
func (s *Snapshot) Tree() value.Value {
	entities := make(map[string]value.Value, len(s.entities))
	for name, e := range s.entities {
		fields := make(map[string]value.Value, len(e.Properties))
		for _, pn := range e.Properties {
			p := s.props[nodeid.Join(name, pn)]
			if p.Spec.Trigger {
				continue
			}
			fields[pn] = p.Value
		}
		entities[name] = value.Object(fields)
	}
	return value.Object(entities)
}
