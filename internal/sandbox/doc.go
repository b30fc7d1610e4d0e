// Package sandbox evaluates dynamic segments in an isolated HCL context.
//
// Every evaluation gets a fresh hcl.EvalContext that holds only the
// entities the expression references, read from a caller-supplied
// Resolver, and a fixed allow-list of pure go-cty functions. Nothing is
// shared between evaluations except the immutable parse cache, so sibling
// evaluations cannot observe each other.
//
// Each evaluation runs on its own goroutine with a deadline. When the
// deadline passes the result channel is abandoned and the caller gets an
// EvalError of kind Timeout.
package sandbox
