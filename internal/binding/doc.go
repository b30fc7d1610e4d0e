// Package binding finds dynamic segments in raw property values and
// extracts the entity property paths each segment references.
//
// A dynamic segment is text enclosed in `{{` and `}}`. Its body is an HCL
// native-syntax expression; references are collected from the traversals
// HCL reports for the expression, so locals introduced by `for` expressions
// and function names never count as references.
package binding
