// Package graph maintains the dependency graph over property paths and
// plans evaluation batches on it.
//
// # Model
//
// Nodes are property paths (`Entity.property`) interned into dense integer
// IDs and stored in an arena. An edge A -> B means "A's value depends on
// B", so B must be evaluated first:
//
//	  Text1.value ──depends on──▶ Input1.text
//	       │
//	       └────────depends on──▶ Query1.data
//
// Each node owns the multiset of targets produced by its bindings. Edges
// are the set view of that multiset restricted to targets that currently
// exist as nodes; targets that do not exist yet are kept as pending and
// turn into edges when the node is added.
//
// # Planning
//
// Schedule takes the nodes changed by a mutation and returns a Plan:
//
//  1. Affected: the forward closure over dependents of the changed nodes.
//  2. Cycles: Tarjan's SCC algorithm restricted to the affected set. Any
//     cycle touching an affected node lies entirely inside it, so the
//     restriction loses nothing.
//  3. Order: Kahn's algorithm over the remaining nodes; ready nodes are
//     taken in path order so the result is deterministic.
//  4. Levels: nodes grouped by longest-path depth. Nodes in one level have
//     no path between them and may be evaluated concurrently.
//
// # Thread-Safety
//
// All Graph methods are safe for concurrent use. Plans are plain values
// detached from the graph.
package graph
