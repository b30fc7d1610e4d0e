package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vk/evalgraph/internal/binding"
	"github.com/vk/evalgraph/internal/ctxlog"
	"github.com/vk/evalgraph/internal/nodeid"
	"github.com/vk/evalgraph/internal/registry"
	"github.com/vk/evalgraph/internal/validate"
	"github.com/vk/evalgraph/internal/value"
)

const (
	// ChildrenProperty is the derived property of a container listing its
	// visible children.
	ChildrenProperty = "children"
	// VisibilityProperty hides a child from its container when false.
	VisibilityProperty = "isVisible"
)

// Define adds an entity, extracts the bindings of its properties and links
// it into the graph. Sources that referenced the entity before it existed
// are re-extracted and scheduled.
func (e *Engine) Define(ctx context.Context, spec registry.EntitySpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.reg.AddEntity(spec); err != nil {
		return fmt.Errorf("failed to define entity %q: %w", spec.Name, err)
	}

	var dirty []string
	for _, p := range spec.Properties {
		if p.Trigger {
			continue
		}
		path := nodeid.Join(spec.Name, p.Name)
		dirty = append(dirty, others(e.graph.AddNode(path), path)...)
	}
	for _, p := range spec.Properties {
		e.syncLocked(ctx, nodeid.Join(spec.Name, p.Name), p)
	}

	for _, source := range sortedKeys(e.waiting[spec.Name]) {
		p, ok := e.reg.Property(source)
		if !ok {
			continue
		}
		e.syncLocked(ctx, source, p)
		dirty = append(dirty, source)
	}

	e.syncChildrenLocked(ctx, spec.Name)
	if spec.Parent != "" {
		e.syncChildrenLocked(ctx, spec.Parent)
	}
	e.reg.MarkDirty(dirty...)

	ctxlog.FromContext(ctx).Debug("Entity defined.", "entity", spec.Name, "kind", spec.Kind, "properties", len(spec.Properties))
	return nil
}

// DefineAll defines entities in order, stopping at the first failure.
func (e *Engine) DefineAll(ctx context.Context, specs []registry.EntitySpec) error {
	for _, spec := range specs {
		if err := e.Define(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes an entity with every node and edge rooted at its
// properties. Former dependents are scheduled and read undefined.
func (e *Engine) Remove(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	spec, ok := e.reg.Entity(name)
	if !ok {
		return fmt.Errorf("failed to remove entity %q: %w", name, registry.ErrNotFound)
	}
	paths, err := e.reg.RemoveEntity(name)
	if err != nil {
		return fmt.Errorf("failed to remove entity %q: %w", name, err)
	}

	removed := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		removed[p] = struct{}{}
	}
	var dirty []string
	for _, p := range paths {
		for _, d := range e.graph.RemoveNode(p) {
			if _, gone := removed[d]; !gone {
				dirty = append(dirty, d)
			}
		}
		e.clearLocked(p)
	}

	if spec.Parent != "" {
		e.syncChildrenLocked(ctx, spec.Parent)
	}
	e.reg.MarkDirty(dirty...)

	ctxlog.FromContext(ctx).Debug("Entity removed.", "entity", name, "dependents", len(dirty))
	return nil
}

// SetRawValue replaces a property's raw value and re-extracts its bindings.
func (e *Engine) SetRawValue(ctx context.Context, entity, prop string, raw value.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.reg.SetRawValue(entity, prop, raw); err != nil {
		return fmt.Errorf("failed to set %s: %w", nodeid.Join(entity, prop), err)
	}
	path := nodeid.Join(entity, prop)
	spec, _ := e.reg.Property(path)
	e.syncLocked(ctx, path, spec)
	return nil
}

// SetProperty defines or replaces one property of an existing entity.
func (e *Engine) SetProperty(ctx context.Context, entity string, spec registry.PropertySpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.reg.SetProperty(entity, spec); err != nil {
		return fmt.Errorf("failed to set property %s: %w", nodeid.Join(entity, spec.Name), err)
	}
	path := nodeid.Join(entity, spec.Name)
	var dirty []string
	if !spec.Trigger {
		dirty = others(e.graph.AddNode(path), path)
	}
	e.syncLocked(ctx, path, spec)
	e.reg.MarkDirty(dirty...)
	return nil
}

// RemoveProperty deletes one property. Removing a declared children
// property hands the slot back to the generated one.
func (e *Engine) RemoveProperty(ctx context.Context, entity, prop string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.reg.RemoveProperty(entity, prop); err != nil {
		return fmt.Errorf("failed to remove property %s: %w", nodeid.Join(entity, prop), err)
	}
	path := nodeid.Join(entity, prop)
	dirty := e.graph.RemoveNode(path)
	e.clearLocked(path)
	if prop == ChildrenProperty {
		e.syncChildrenLocked(ctx, entity)
	}
	e.reg.MarkDirty(dirty...)
	return nil
}

// SetParent moves entity into parent's containment. An empty parent
// detaches it.
func (e *Engine) SetParent(ctx context.Context, entity, parent string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	spec, ok := e.reg.Entity(entity)
	if !ok {
		return fmt.Errorf("failed to set parent of %q: %w", entity, registry.ErrNotFound)
	}
	if err := e.reg.SetParent(entity, parent); err != nil {
		return fmt.Errorf("failed to set parent of %q: %w", entity, err)
	}
	if spec.Parent != "" {
		e.syncChildrenLocked(ctx, spec.Parent)
	}
	if parent != "" {
		e.syncChildrenLocked(ctx, parent)
	}
	return nil
}

// syncLocked re-extracts the bindings of path and patches its edges.
// Trigger bindings are kept for lookups but never become graph edges.
func (e *Engine) syncLocked(ctx context.Context, path string, spec registry.PropertySpec) {
	var bindings []binding.Binding
	if spec.IsDerived() {
		bindings = []binding.Binding{e.extractor.ExtractFormula(path, spec.Formula, e.reg)}
	} else {
		bindings = e.extractor.Extract(path, spec.Raw, e.reg)
	}

	var changed []string
	if spec.Trigger {
		changed = e.graph.RemoveNode(path)
		e.reg.MarkDirty(changed...)
	} else {
		e.graph.AddNode(path)
		var err error
		changed, err = e.graph.UpdateNode(path, binding.Targets(bindings))
		if err != nil {
			ctxlog.FromContext(ctx).Error("Failed to update dependency graph.", "path", path, "error", err)
			return
		}
	}

	e.setWaitingLocked(path, bindings)
	if len(bindings) == 0 {
		delete(e.bindings, path)
	} else {
		e.bindings[path] = bindings
	}

	ctxlog.FromContext(ctx).Debug("Bindings updated.", "path", path, "bindings", binding.Describe(bindings), "changed", changed)
}

func (e *Engine) clearLocked(path string) {
	e.setWaitingLocked(path, nil)
	delete(e.bindings, path)
}

func (e *Engine) setWaitingLocked(path string, bindings []binding.Binding) {
	for _, root := range e.waitingRoots[path] {
		delete(e.waiting[root], path)
		if len(e.waiting[root]) == 0 {
			delete(e.waiting, root)
		}
	}
	delete(e.waitingRoots, path)

	roots := make(map[string]struct{})
	for _, b := range bindings {
		for _, root := range b.Unresolved {
			roots[root] = struct{}{}
		}
	}
	if len(roots) == 0 {
		return
	}
	for root := range roots {
		sources, ok := e.waiting[root]
		if !ok {
			sources = make(map[string]struct{})
			e.waiting[root] = sources
		}
		sources[path] = struct{}{}
	}
	e.waitingRoots[path] = sortedKeys(roots)
}

// syncChildrenLocked regenerates the children property of parent from the
// current containment. A children property declared by the page wins.
func (e *Engine) syncChildrenLocked(ctx context.Context, parent string) {
	spec, ok := e.reg.Entity(parent)
	if !ok {
		return
	}
	existing, has := spec.Property(ChildrenProperty)
	if has && !existing.Internal {
		return
	}

	path := nodeid.Join(parent, ChildrenProperty)
	children := e.reg.Children(parent)
	if len(children) == 0 {
		if has {
			_ = e.reg.RemoveProperty(parent, ChildrenProperty)
			e.reg.MarkDirty(e.graph.RemoveNode(path)...)
			e.clearLocked(path)
		}
		return
	}

	formula := childrenFormula(children)
	if has && existing.Formula == formula {
		return
	}
	prop := registry.PropertySpec{
		Name:     ChildrenProperty,
		Type:     validate.TypeArray,
		Formula:  formula,
		Internal: true,
	}
	if err := e.reg.SetProperty(parent, prop); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to update container children.", "entity", parent, "error", err)
		return
	}
	e.reg.MarkDirty(others(e.graph.AddNode(path), path)...)
	e.syncLocked(ctx, path, prop)
}

// childrenFormula lists the children whose visibility is not false, e.g.
//
//	[for name, visible in {"Button1" = Button1.isVisible} : name if visible != false]
func childrenFormula(children []string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = fmt.Sprintf("%q = %s.%s", c, c, VisibilityProperty)
	}
	return fmt.Sprintf("[for name, visible in {%s} : name if visible != false]", strings.Join(parts, ", "))
}

func others(paths []string, self string) []string {
	out := paths[:0:0]
	for _, p := range paths {
		if p != self {
			out = append(out, p)
		}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
