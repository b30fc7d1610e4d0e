package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNodeNotFound is returned for operations on paths that are not nodes.
var ErrNodeNotFound = errors.New("node not found")

// NodeID is the interned identifier of a property path.
type NodeID int32

// node is a single vertex stored in the arena.
type node struct {
	id   NodeID
	path string
	// targets is the node's binding multiset: target path -> count.
	targets map[string]int
	// deps holds the nodes this node depends on (resolved targets).
	deps map[NodeID]struct{}
	// dependents holds the nodes that depend on this node.
	dependents map[NodeID]struct{}
}

// Graph is the dependency graph. The zero value is not usable; use New.
type Graph struct {
	mu    sync.RWMutex
	ids   map[string]NodeID
	nodes []*node
	free  []NodeID
	// pending maps a target path that is not a node to the sources that
	// reference it, with multiplicity.
	pending map[string]map[NodeID]int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		ids:     make(map[string]NodeID),
		pending: make(map[string]map[NodeID]int),
	}
}

// AddNode adds path as a node. Sources whose bindings were waiting for
// path gain an edge to it; the returned slice lists every path whose edge
// set changed, including path itself when it was created.
func (g *Graph) AddNode(path string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.ids[path]; ok {
		return nil
	}

	n := &node{
		path:       path,
		targets:    make(map[string]int),
		deps:       make(map[NodeID]struct{}),
		dependents: make(map[NodeID]struct{}),
	}
	if len(g.free) > 0 {
		n.id = g.free[len(g.free)-1]
		g.free = g.free[:len(g.free)-1]
		g.nodes[n.id] = n
	} else {
		n.id = NodeID(len(g.nodes))
		g.nodes = append(g.nodes, n)
	}
	g.ids[path] = n.id

	changed := map[string]struct{}{path: {}}
	for src := range g.pending[path] {
		source := g.nodes[src]
		source.deps[n.id] = struct{}{}
		n.dependents[src] = struct{}{}
		changed[source.path] = struct{}{}
	}
	delete(g.pending, path)

	return sortedKeys(changed)
}

// RemoveNode deletes path and all edges rooted at it. Bindings of other
// nodes that targeted path revert to pending. It returns the former
// dependents, whose inputs changed.
func (g *Graph) RemoveNode(path string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, ok := g.ids[path]
	if !ok {
		return nil
	}
	n := g.nodes[id]

	g.setTargetsLocked(n, nil)

	changed := make(map[string]struct{}, len(n.dependents))
	for depID := range n.dependents {
		dependent := g.nodes[depID]
		delete(dependent.deps, id)
		g.addPendingLocked(path, depID, dependent.targets[path])
		changed[dependent.path] = struct{}{}
	}

	delete(g.ids, path)
	g.nodes[id] = nil
	g.free = append(g.free, id)

	return sortedKeys(changed)
}

// UpdateNode replaces the binding targets owned by path. Duplicated
// targets collapse into a single edge. It returns the paths whose edge
// sets changed: path itself when its dependencies changed, plus every
// target that gained or lost path as a dependent.
func (g *Graph) UpdateNode(path string, targets []string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, ok := g.ids[path]
	if !ok {
		return nil, fmt.Errorf("cannot update %q: %w", path, ErrNodeNotFound)
	}
	return g.setTargetsLocked(g.nodes[id], targets), nil
}

func (g *Graph) setTargetsLocked(n *node, targets []string) []string {
	next := make(map[string]int, len(targets))
	for _, t := range targets {
		next[t]++
	}

	changed := make(map[string]struct{})
	for t := range n.targets {
		if _, keep := next[t]; keep {
			continue
		}
		if tid, exists := g.ids[t]; exists {
			delete(n.deps, tid)
			delete(g.nodes[tid].dependents, n.id)
			changed[t] = struct{}{}
			changed[n.path] = struct{}{}
		} else {
			g.removePendingLocked(t, n.id)
		}
	}
	for t, count := range next {
		if _, had := n.targets[t]; had {
			if _, exists := g.ids[t]; !exists {
				g.addPendingLocked(t, n.id, count)
			}
			continue
		}
		if tid, exists := g.ids[t]; exists {
			n.deps[tid] = struct{}{}
			g.nodes[tid].dependents[n.id] = struct{}{}
			changed[t] = struct{}{}
			changed[n.path] = struct{}{}
		} else {
			g.addPendingLocked(t, n.id, count)
		}
	}
	n.targets = next

	return sortedKeys(changed)
}

func (g *Graph) addPendingLocked(target string, src NodeID, count int) {
	if count <= 0 {
		count = 1
	}
	sources, ok := g.pending[target]
	if !ok {
		sources = make(map[NodeID]int)
		g.pending[target] = sources
	}
	sources[src] = count
}

func (g *Graph) removePendingLocked(target string, src NodeID) {
	sources, ok := g.pending[target]
	if !ok {
		return
	}
	delete(sources, src)
	if len(sources) == 0 {
		delete(g.pending, target)
	}
}

// HasNode reports whether path is a node.
func (g *Graph) HasNode(path string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.ids[path]
	return ok
}

// ID returns the interned ID of path.
func (g *Graph) ID(path string) (NodeID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.ids[path]
	return id, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.ids)
}

// Paths returns every node path in sorted order.
func (g *Graph) Paths() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.ids))
	for p := range g.ids {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Dependencies returns the sorted paths that path depends on.
func (g *Graph) Dependencies(path string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.ids[path]
	if !ok {
		return nil, fmt.Errorf("%q: %w", path, ErrNodeNotFound)
	}
	return g.pathsLocked(g.nodes[id].deps), nil
}

// Dependents returns the sorted paths that depend on path.
func (g *Graph) Dependents(path string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.ids[path]
	if !ok {
		return nil, fmt.Errorf("%q: %w", path, ErrNodeNotFound)
	}
	return g.pathsLocked(g.nodes[id].dependents), nil
}

// Targets returns the binding multiset owned by path.
func (g *Graph) Targets(path string) map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.ids[path]
	if !ok {
		return nil
	}
	out := make(map[string]int, len(g.nodes[id].targets))
	for t, c := range g.nodes[id].targets {
		out[t] = c
	}
	return out
}

// HasEdge reports whether from depends on to.
func (g *Graph) HasEdge(from, to string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	fid, ok := g.ids[from]
	if !ok {
		return false
	}
	tid, ok := g.ids[to]
	if !ok {
		return false
	}
	_, ok = g.nodes[fid].deps[tid]
	return ok
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	count := 0
	for _, id := range g.ids {
		count += len(g.nodes[id].deps)
	}
	return count
}

// PendingTargets returns the sorted target paths referenced by some node
// but not present in the graph.
func (g *Graph) PendingTargets() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.pending))
	for t := range g.pending {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Affected returns the sorted forward closure of changed over dependents,
// changed nodes included. Paths that are not nodes are skipped.
func (g *Graph) Affected(changed []string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pathsLocked(g.affectedLocked(changed))
}

func (g *Graph) affectedLocked(changed []string) map[NodeID]struct{} {
	seen := make(map[NodeID]struct{})
	queue := make([]NodeID, 0, len(changed))
	for _, p := range changed {
		if id, ok := g.ids[p]; ok {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				queue = append(queue, id)
			}
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for dep := range g.nodes[id].dependents {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			queue = append(queue, dep)
		}
	}
	return seen
}

func (g *Graph) pathsLocked(ids map[NodeID]struct{}) []string {
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, g.nodes[id].path)
	}
	sort.Strings(out)
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
