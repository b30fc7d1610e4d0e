package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vk/evalgraph/internal/nodeid"
	"github.com/vk/evalgraph/internal/value"
)

type property struct {
	spec      PropertySpec
	value     value.Value
	status    Status
	message   string
	evaluated bool
}

type entity struct {
	name   string
	kind   EntityKind
	parent string
	order  []string
	props  map[string]*property
}

// Registry is the thread-safe store of entities, properties and their last
// evaluated values. Every mutation bumps the revision and fires the
// mutation hooks.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*entity
	revision uint64
	dirty    map[string]struct{}
	removed  map[string]struct{}

	hooksMu sync.RWMutex
	hooks   []func()
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entities: make(map[string]*entity),
		dirty:    make(map[string]struct{}),
		removed:  make(map[string]struct{}),
	}
}

// OnMutation registers fn to be called after every mutation. Hooks run
// outside the registry lock and must not block.
func (r *Registry) OnMutation(fn func()) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.hooks = append(r.hooks, fn)
}

func (r *Registry) fireHooks() {
	r.hooksMu.RLock()
	hooks := append([]func(){}, r.hooks...)
	r.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// mutate runs fn under the write lock and, if it reports a change, bumps
// the revision and fires the hooks.
func (r *Registry) mutate(fn func() (bool, error)) error {
	r.mu.Lock()
	changed, err := fn()
	if changed {
		r.revision++
	}
	r.mu.Unlock()

	if changed {
		r.fireHooks()
	}
	return err
}

// AddEntity adds a new entity with its properties, all dirty and
// Uncomputed. The parent does not need to exist yet.
func (r *Registry) AddEntity(spec EntitySpec) error {
	if err := validateEntityName(spec.Name); err != nil {
		return err
	}
	if spec.Parent == spec.Name {
		return fmt.Errorf("entity %q cannot contain itself: %w", spec.Name, ErrInvalidName)
	}
	seen := make(map[string]struct{}, len(spec.Properties))
	for _, p := range spec.Properties {
		if err := validateProperty(p); err != nil {
			return fmt.Errorf("entity %q: %w", spec.Name, err)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("entity %q: duplicate property %q: %w", spec.Name, p.Name, ErrInvalidName)
		}
		seen[p.Name] = struct{}{}
	}

	return r.mutate(func() (bool, error) {
		if _, exists := r.entities[spec.Name]; exists {
			return false, fmt.Errorf("entity %q: %w", spec.Name, ErrDuplicateEntity)
		}
		e := &entity{
			name:   spec.Name,
			kind:   spec.Kind,
			parent: spec.Parent,
			props:  make(map[string]*property, len(spec.Properties)),
		}
		for _, p := range spec.Properties {
			e.order = append(e.order, p.Name)
			e.props[p.Name] = &property{spec: p}
			if !p.Trigger {
				r.markDirtyLocked(nodeid.Join(e.name, p.Name))
			}
		}
		r.entities[spec.Name] = e
		return true, nil
	})
}

// RemoveEntity deletes an entity and returns the paths of its properties.
func (r *Registry) RemoveEntity(name string) ([]string, error) {
	var paths []string
	err := r.mutate(func() (bool, error) {
		e, ok := r.entities[name]
		if !ok {
			return false, fmt.Errorf("entity %q: %w", name, ErrNotFound)
		}
		for _, prop := range e.order {
			path := nodeid.Join(name, prop)
			paths = append(paths, path)
			delete(r.dirty, path)
			r.removed[path] = struct{}{}
		}
		delete(r.entities, name)
		return true, nil
	})
	sort.Strings(paths)
	return paths, err
}

// SetProperty defines or replaces a property on an existing entity. A
// replaced property keeps its last value until it is re-evaluated.
func (r *Registry) SetProperty(entityName string, spec PropertySpec) error {
	if err := validateProperty(spec); err != nil {
		return fmt.Errorf("entity %q: %w", entityName, err)
	}
	return r.mutate(func() (bool, error) {
		e, ok := r.entities[entityName]
		if !ok {
			return false, fmt.Errorf("entity %q: %w", entityName, ErrNotFound)
		}
		if p, exists := e.props[spec.Name]; exists {
			p.spec = spec
			p.status = StatusUncomputed
			p.message = ""
		} else {
			e.order = append(e.order, spec.Name)
			e.props[spec.Name] = &property{spec: spec}
		}
		path := nodeid.Join(entityName, spec.Name)
		if spec.Trigger {
			delete(r.dirty, path)
		} else {
			r.markDirtyLocked(path)
		}
		return true, nil
	})
}

// RemoveProperty deletes a property from an entity.
func (r *Registry) RemoveProperty(entityName, propName string) error {
	return r.mutate(func() (bool, error) {
		e, ok := r.entities[entityName]
		if !ok {
			return false, fmt.Errorf("entity %q: %w", entityName, ErrNotFound)
		}
		if _, ok := e.props[propName]; !ok {
			return false, fmt.Errorf("property %q: %w", nodeid.Join(entityName, propName), ErrNotFound)
		}
		delete(e.props, propName)
		for i, n := range e.order {
			if n == propName {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
		path := nodeid.Join(entityName, propName)
		delete(r.dirty, path)
		r.removed[path] = struct{}{}
		return true, nil
	})
}

// SetRawValue replaces the raw value of a property, marks it dirty and
// resets its status to Uncomputed. The last value stays readable until the
// next commit. Triggers are never marked dirty.
func (r *Registry) SetRawValue(entityName, propName string, raw value.Value) error {
	return r.mutate(func() (bool, error) {
		p, err := r.propertyLocked(entityName, propName)
		if err != nil {
			return false, err
		}
		if p.spec.IsDerived() {
			return false, fmt.Errorf("property %q: %w", nodeid.Join(entityName, propName), ErrDerivedProperty)
		}
		p.spec.Raw = raw
		if p.spec.Trigger {
			return true, nil
		}
		p.status = StatusUncomputed
		p.message = ""
		r.markDirtyLocked(nodeid.Join(entityName, propName))
		return true, nil
	})
}

// SetParent moves an entity under parent. An empty parent detaches it.
func (r *Registry) SetParent(entityName, parent string) error {
	if parent == entityName {
		return fmt.Errorf("entity %q cannot contain itself: %w", entityName, ErrInvalidName)
	}
	return r.mutate(func() (bool, error) {
		e, ok := r.entities[entityName]
		if !ok {
			return false, fmt.Errorf("entity %q: %w", entityName, ErrNotFound)
		}
		if e.parent == parent {
			return false, nil
		}
		e.parent = parent
		return true, nil
	})
}

// MarkDirty schedules existing paths for re-evaluation without changing
// their definitions. Unknown paths and triggers are ignored.
func (r *Registry) MarkDirty(paths ...string) {
	_ = r.mutate(func() (bool, error) {
		changed := false
		for _, path := range paths {
			addr, err := nodeid.Parse(path)
			if err != nil {
				continue
			}
			p, err := r.propertyLocked(addr.Entity(), addr.PropertyName())
			if err != nil || p.spec.Trigger {
				continue
			}
			r.markDirtyLocked(path)
			changed = true
		}
		return changed, nil
	})
}

func (r *Registry) markDirtyLocked(path string) {
	r.dirty[path] = struct{}{}
	delete(r.removed, path)
}

func (r *Registry) propertyLocked(entityName, propName string) (*property, error) {
	e, ok := r.entities[entityName]
	if !ok {
		return nil, fmt.Errorf("entity %q: %w", entityName, ErrNotFound)
	}
	p, ok := e.props[propName]
	if !ok {
		return nil, fmt.Errorf("property %q: %w", nodeid.Join(entityName, propName), ErrNotFound)
	}
	return p, nil
}

// Revision returns the current mutation counter.
func (r *Registry) Revision() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revision
}

// HasEntity reports whether an entity named name exists.
func (r *Registry) HasEntity(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entities[name]
	return ok
}

// Entity returns the current definition of an entity.
func (r *Registry) Entity(name string) (EntitySpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[name]
	if !ok {
		return EntitySpec{}, false
	}
	spec := EntitySpec{Name: e.name, Kind: e.kind, Parent: e.parent}
	for _, n := range e.order {
		spec.Properties = append(spec.Properties, e.props[n].spec)
	}
	return spec, true
}

// Entities returns every entity name in sorted order.
func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entities))
	for n := range r.entities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Children returns the sorted names of entities whose parent is name.
func (r *Registry) Children(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for n, e := range r.entities {
		if e.parent == name {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Property returns the definition of the property at path.
func (r *Registry) Property(path string) (PropertySpec, bool) {
	addr, err := nodeid.Parse(path)
	if err != nil {
		return PropertySpec{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, err := r.propertyLocked(addr.Entity(), addr.PropertyName())
	if err != nil {
		return PropertySpec{}, false
	}
	return p.spec, true
}

// Value returns the last computed value at path, which may reach into a
// property (`Query1.data[0].id`). It is Undefined when the path does not
// resolve or the property was never evaluated.
func (r *Registry) Value(path string) value.Value {
	addr, err := nodeid.Parse(path)
	if err != nil || addr.PropertyName() == "" {
		return value.Undefined()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, err := r.propertyLocked(addr.Entity(), addr.PropertyName())
	if err != nil {
		return value.Undefined()
	}
	return descend(p.value, addr)
}

// Status returns the status and message of the property at path.
func (r *Registry) Status(path string) (Status, string, error) {
	addr, err := nodeid.Parse(path)
	if err != nil {
		return StatusUncomputed, "", err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, err := r.propertyLocked(addr.Entity(), addr.PropertyName())
	if err != nil {
		return StatusUncomputed, "", err
	}
	return p.status, p.message, nil
}

// Dirty returns the sorted paths waiting for evaluation.
func (r *Registry) Dirty() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedSet(r.dirty)
}

// Result is the outcome of evaluating one property in a batch.
type Result struct {
	Path    string
	Value   value.Value
	Status  Status
	Message string
}

// Commit writes a batch of results if the registry is still at revision
// rev, and clears the dirty and removed sets. Otherwise it writes nothing
// and returns ErrSuperseded; the dirty set survives for the next batch.
func (r *Registry) Commit(rev uint64, results []Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.revision != rev {
		return fmt.Errorf("commit at revision %d, registry at %d: %w", rev, r.revision, ErrSuperseded)
	}
	for _, res := range results {
		addr, err := nodeid.Parse(res.Path)
		if err != nil {
			continue
		}
		p, err := r.propertyLocked(addr.Entity(), addr.PropertyName())
		if err != nil {
			continue
		}
		p.value = res.Value
		p.status = res.Status
		p.message = res.Message
		p.evaluated = true
	}
	clear(r.dirty)
	clear(r.removed)
	return nil
}

// descend follows the nested part of addr into v.
func descend(v value.Value, addr *nodeid.Address) value.Value {
	for i := 1; i < len(addr.Path); i++ {
		seg := addr.Path[i]
		if i > 1 && seg.Name != "" {
			v = v.Get(seg.Name)
		}
		if seg.HasIndex() {
			items := v.Items()
			if v.Kind() != value.KindArray || seg.Index >= len(items) {
				return value.Undefined()
			}
			v = items[seg.Index]
		}
	}
	return v
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
