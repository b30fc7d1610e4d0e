package nodeid

import (
	"reflect"
	"strconv"
	"strings"
)

// String serializes the Address into its canonical path string representation.
func (a *Address) String() string {
	if a == nil {
		return ""
	}

	var sb strings.Builder
	for i, segment := range a.Path {
		if i > 0 && segment.Name != "" {
			sb.WriteRune('.')
		}
		sb.WriteString(segment.Name)
		if segment.HasIndex() {
			sb.WriteRune('[')
			sb.WriteString(strconv.Itoa(segment.Index))
			sb.WriteRune(']')
		}
	}

	return sb.String()
}

// Equal checks for deep equality between two Address pointers.
func (a *Address) Equal(other *Address) bool {
	if a == nil || other == nil {
		return a == other
	}
	return reflect.DeepEqual(a.Path, other.Path)
}

// Entity returns the entity name, the first path segment.
func (a *Address) Entity() string {
	if a == nil || len(a.Path) == 0 {
		return ""
	}
	return a.Path[0].Name
}

// PropertyName returns the property name, the second path segment, or ""
// for an entity-only address.
func (a *Address) PropertyName() string {
	if a == nil || len(a.Path) < 2 {
		return ""
	}
	return a.Path[1].Name
}

// Property narrows a nested address to its property-level node. It returns
// nil when the address names only an entity.
func (a *Address) Property() *Address {
	if a == nil || len(a.Path) < 2 {
		return nil
	}
	return Of(a.Path[0].Name, a.Path[1].Name)
}

// IsNested reports whether the address reaches below a property.
func (a *Address) IsNested() bool {
	if a == nil || len(a.Path) < 2 {
		return false
	}
	return len(a.Path) > 2 || a.Path[1].HasIndex()
}
