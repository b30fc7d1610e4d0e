package validate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vk/evalgraph/internal/value"
)

// ErrUnknownType is returned by ParseType for names outside the closed set.
var ErrUnknownType = errors.New("unknown property type")

// Type is a declared expected type of a property.
type Type int

const (
	// TypeAny accepts every value unchanged. It is the zero value.
	TypeAny Type = iota
	TypeText
	TypeNumber
	TypeBoolean
	TypeObject
	TypeArray
	TypeTableRows
	TypeDate
)

var typeNames = [...]string{
	TypeAny:       "any",
	TypeText:      "text",
	TypeNumber:    "number",
	TypeBoolean:   "boolean",
	TypeObject:    "object",
	TypeArray:     "array",
	TypeTableRows: "table-rows",
	TypeDate:      "date",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// aliases accepted by ParseType in addition to the canonical names.
var aliases = map[string]Type{
	"string":     TypeText,
	"bool":       TypeBoolean,
	"table_rows": TypeTableRows,
	"tablerows":  TypeTableRows,
	"table-data": TypeTableRows,
}

// ParseType parses a type name, case-insensitively. An empty name is
// TypeAny.
func ParseType(name string) (Type, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return TypeAny, nil
	}
	for t, s := range typeNames {
		if s == n {
			return Type(t), nil
		}
	}
	if t, ok := aliases[n]; ok {
		return t, nil
	}
	return TypeAny, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Default returns the value stored when validation against t fails, or
// when a property of type t errors before it was ever evaluated.
func Default(t Type, now time.Time) value.Value {
	switch t {
	case TypeText:
		return value.String("")
	case TypeNumber:
		return value.Number(0)
	case TypeBoolean:
		return value.Bool(false)
	case TypeObject:
		return value.EmptyObject()
	case TypeArray, TypeTableRows:
		return value.EmptyArray()
	case TypeDate:
		return value.String(formatDate(now))
	}
	return value.Null()
}
