// Package engine drives incremental re-evaluation of a page.
//
// # Lifecycle of a property
//
//	Uncomputed ─▶ graph updated ─▶ cycle check ─┬─▶ CycleError
//	                                            └─▶ scheduled ─▶ evaluated ─┬─▶ EvalError
//	                                                                        └─▶ validated ─┬─▶ ValidationError
//	                                                                                       └─▶ Valid
//
// Mutations (Define, Remove, SetRawValue, ...) update the registry and
// patch the dependency graph immediately, marking touched properties
// dirty. A batch (RunBatch) then:
//
//  1. takes one registry snapshot and plans the affected subgraph,
//  2. marks cycle members CycleError,
//  3. evaluates the remaining nodes level by level, nodes within a level
//     in parallel on the sandbox pool,
//  4. validates every result against the declared type,
//  5. commits all results at once, unless the registry changed meanwhile.
//
// A node whose dependency errored is still evaluated. Dependencies in
// EvalError or CycleError read as undefined; a dependency in
// ValidationError reads as its stored default.
//
// Start runs batches in the background. A mutation arriving during a batch
// cancels it and the next batch picks up the combined dirty state, so
// results are never applied out of order.
package engine
