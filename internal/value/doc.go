// Package value defines the closed set of values that flow through the
// evaluation engine: raw configured values, sandbox results and validated
// property values.
//
// A Value is an immutable tagged union. Consumers switch on Kind instead of
// inspecting dynamic Go types, and the conversions to and from go-cty live
// here so the sandbox never hands cty values to the rest of the engine.
package value
