package nodeid

// PathSegment represents a single component of an address path, e.g., `name[index]`.
type PathSegment struct {
	Name  string
	Index int // -1 indicates no index is present.
}

// NewPathSegment creates a new path segment without an index.
func NewPathSegment(name string) PathSegment {
	return PathSegment{Name: name, Index: -1}
}

// NewPathSegmentWithIndex creates a new path segment that includes an index.
func NewPathSegmentWithIndex(name string, index int) PathSegment {
	return PathSegment{Name: name, Index: index}
}

// HasIndex returns true if the path segment has an explicit index.
func (ps PathSegment) HasIndex() bool {
	return ps.Index != -1
}

// Address is the structured form of a property path.
type Address struct {
	Path []PathSegment
}

// Of builds the property-level address `entity.property`.
func Of(entity, property string) *Address {
	return &Address{Path: []PathSegment{NewPathSegment(entity), NewPathSegment(property)}}
}

// Join is the string form of Of without allocating an Address.
func Join(entity, property string) string {
	return entity + "." + property
}
