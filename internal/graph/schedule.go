package graph

import (
	"container/heap"
	"sort"
)

// Plan is the evaluation plan for one batch.
type Plan struct {
	// Affected is every node reachable from the changed set over
	// dependents, sorted by path.
	Affected []string
	// Cycles lists the strongly connected components inside Affected that
	// form a cycle. Each component is sorted; components are ordered by
	// their first path.
	Cycles [][]string
	// Order is a topological order of the acyclic part of Affected.
	Order []string
	// Levels groups Order by dependency depth.
	Levels [][]string

	inCycle map[string]int
}

// InCycle reports whether path is part of a cycle in this plan.
func (p *Plan) InCycle(path string) bool {
	_, ok := p.inCycle[path]
	return ok
}

// CycleOf returns the members of the cycle containing path, or nil.
func (p *Plan) CycleOf(path string) []string {
	idx, ok := p.inCycle[path]
	if !ok {
		return nil
	}
	return p.Cycles[idx]
}

// Schedule plans the evaluation of everything affected by changed.
func (g *Graph) Schedule(changed []string) *Plan {
	g.mu.RLock()
	defer g.mu.RUnlock()

	affected := g.affectedLocked(changed)
	plan := &Plan{
		Affected: g.pathsLocked(affected),
		inCycle:  make(map[string]int),
	}

	cyclic := make(map[NodeID]struct{})
	for _, scc := range g.sccLocked(affected) {
		if len(scc) == 1 {
			if _, self := g.nodes[scc[0]].deps[scc[0]]; !self {
				continue
			}
		}
		members := make(map[NodeID]struct{}, len(scc))
		for _, id := range scc {
			members[id] = struct{}{}
			cyclic[id] = struct{}{}
		}
		plan.Cycles = append(plan.Cycles, g.pathsLocked(members))
	}
	sort.Slice(plan.Cycles, func(i, j int) bool { return plan.Cycles[i][0] < plan.Cycles[j][0] })
	for i, c := range plan.Cycles {
		for _, p := range c {
			plan.inCycle[p] = i
		}
	}

	g.orderLocked(affected, cyclic, plan)
	return plan
}

// sccLocked runs Tarjan's algorithm over the subgraph induced by set.
func (g *Graph) sccLocked(set map[NodeID]struct{}) [][]NodeID {
	var (
		index   int
		indices = make(map[NodeID]int, len(set))
		lowlink = make(map[NodeID]int, len(set))
		onStack = make(map[NodeID]bool, len(set))
		stack   []NodeID
		out     [][]NodeID
	)

	var strongConnect func(v NodeID)
	strongConnect = func(v NodeID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for w := range g.nodes[v].deps {
			if _, in := set[w]; !in {
				continue
			}
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []NodeID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			out = append(out, scc)
		}
	}

	for v := range set {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return out
}

// orderLocked runs Kahn's algorithm over set minus cyclic. Dependencies
// outside the set and cycle members are settled before the batch runs, so
// they do not count toward in-degree.
func (g *Graph) orderLocked(set, cyclic map[NodeID]struct{}, plan *Plan) {
	inDegree := make(map[NodeID]int, len(set))
	level := make(map[NodeID]int, len(set))
	ready := &pathHeap{}

	for id := range set {
		if _, skip := cyclic[id]; skip {
			continue
		}
		deg := 0
		for dep := range g.nodes[id].deps {
			if _, in := set[dep]; !in {
				continue
			}
			if _, cyc := cyclic[dep]; cyc {
				continue
			}
			deg++
		}
		inDegree[id] = deg
		if deg == 0 {
			heap.Push(ready, g.nodes[id])
		}
	}

	for ready.Len() > 0 {
		n := heap.Pop(ready).(*node)
		plan.Order = append(plan.Order, n.path)

		lvl := level[n.id]
		for len(plan.Levels) <= lvl {
			plan.Levels = append(plan.Levels, nil)
		}
		plan.Levels[lvl] = append(plan.Levels[lvl], n.path)

		for dep := range n.dependents {
			if _, ok := inDegree[dep]; !ok {
				continue
			}
			level[dep] = max(level[dep], lvl+1)
			inDegree[dep]--
			if inDegree[dep] == 0 {
				heap.Push(ready, g.nodes[dep])
			}
		}
	}
}

// pathHeap is a min-heap of nodes keyed by path.
type pathHeap []*node

func (h pathHeap) Len() int           { return len(h) }
func (h pathHeap) Less(i, j int) bool { return h[i].path < h[j].path }
func (h pathHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *pathHeap) Push(x any)        { *h = append(*h, x.(*node)) }
func (h *pathHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
