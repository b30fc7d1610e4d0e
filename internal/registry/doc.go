// Package registry holds the declarative page configuration and the last
// evaluated value of every property (the value tree).
//
// The Registry is the single mutable source of truth. Evaluation never
// reads it directly: a batch takes one immutable Snapshot, computes new
// values against it, and writes them back with Commit. Commit only
// succeeds when no mutation happened since the snapshot was taken, so a
// superseded batch can never overwrite newer state.
package registry
