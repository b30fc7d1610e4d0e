package registry

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/vk/evalgraph/internal/validate"
	"github.com/vk/evalgraph/internal/value"
)

var (
	// ErrNotFound is returned when an entity or property does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEntity is returned when adding an entity whose name is taken.
	ErrDuplicateEntity = errors.New("duplicate entity")
	// ErrDerivedProperty is returned when setting the raw value of a
	// property computed from a formula.
	ErrDerivedProperty = errors.New("derived property has no raw value")
	// ErrInvalidName is returned for entity or property names that cannot
	// be referenced from an expression.
	ErrInvalidName = errors.New("invalid name")
	// ErrSuperseded is returned by Commit when the registry changed after
	// the snapshot was taken.
	ErrSuperseded = errors.New("batch superseded by a newer mutation")
)

// EntityKind tags what an entity is.
type EntityKind int

const (
	KindWidget EntityKind = iota
	KindAction
	KindScriptObject
)

var entityKindNames = map[EntityKind]string{
	KindWidget:       "widget",
	KindAction:       "action",
	KindScriptObject: "script-object",
}

func (k EntityKind) String() string {
	if s, ok := entityKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("EntityKind(%d)", int(k))
}

// ParseEntityKind parses a kind name. An empty name is a widget.
func ParseEntityKind(name string) (EntityKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "widget":
		return KindWidget, nil
	case "action", "query", "api":
		return KindAction, nil
	case "script-object", "script_object", "scriptobject", "jsobject":
		return KindScriptObject, nil
	}
	return KindWidget, fmt.Errorf("unknown entity kind %q", name)
}

// Status is the outcome of the last evaluation of a property.
type Status int

const (
	StatusUncomputed Status = iota
	StatusValid
	StatusValidationError
	StatusEvalError
	StatusCycleError
)

var statusNames = map[Status]string{
	StatusUncomputed:      "Uncomputed",
	StatusValid:           "Valid",
	StatusValidationError: "ValidationError",
	StatusEvalError:       "EvalError",
	StatusCycleError:      "CycleError",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsError reports whether s is one of the error statuses.
func (s Status) IsError() bool {
	return s == StatusValidationError || s == StatusEvalError || s == StatusCycleError
}

// PropertySpec is the declarative definition of a property.
type PropertySpec struct {
	Name string
	Type validate.Type
	// Raw is the configured value; strings may embed {{ }} segments.
	Raw value.Value
	// Formula makes the property derived. A derived property has no raw
	// value of its own.
	Formula string
	// Internal marks properties generated by the engine rather than
	// declared by the page.
	Internal bool
	// Trigger marks an action binding such as onClick. Its raw value is
	// only evaluated on request, never in a batch, and it has no value of
	// its own in the value tree.
	Trigger bool
}

// IsDerived reports whether the property is computed from a formula.
func (p PropertySpec) IsDerived() bool { return p.Formula != "" }

// EntitySpec is the declarative definition of an entity.
type EntitySpec struct {
	Name       string
	Kind       EntityKind
	Parent     string
	Properties []PropertySpec
}

// Property returns the named property spec.
func (e EntitySpec) Property(name string) (PropertySpec, bool) {
	for _, p := range e.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertySpec{}, false
}

var nameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// reserved names cannot be used for entities because expressions give
// them another meaning.
var reserved = map[string]struct{}{
	"this":  {},
	"true":  {},
	"false": {},
	"null":  {},
}

// ValidateName checks that name can be referenced from an expression.
func ValidateName(name string) error {
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func validateEntityName(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, ok := reserved[name]; ok {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	return nil
}

func validateProperty(p PropertySpec) error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if p.IsDerived() && !p.Raw.IsUndefined() {
		return fmt.Errorf("property %q: %w", p.Name, ErrDerivedProperty)
	}
	if p.IsDerived() && p.Trigger {
		return fmt.Errorf("trigger %q cannot have a formula: %w", p.Name, ErrDerivedProperty)
	}
	return nil
}
