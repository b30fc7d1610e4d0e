/*
Package nodeid provides a structured representation of property paths, the
node identifiers of the dependency graph.

The canonical format is a dot-separated sequence of segments where the first
segment names an entity and the second one of its properties, optionally
followed by nested keys or indexes, e.g. `Table1.selectedRow.name` or
`Query1.data[0].id`. Graph nodes are always property-level paths; nested
paths are kept on bindings for display and narrowed with Property.
*/
package nodeid
