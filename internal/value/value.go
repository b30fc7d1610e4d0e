package value

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindString
	KindNumber
	KindBoolean
	KindObject
	KindArray
	KindFunction
)

var kindNames = [...]string{
	KindUndefined: "undefined",
	KindNull:      "null",
	KindString:    "string",
	KindNumber:    "number",
	KindBoolean:   "boolean",
	KindObject:    "object",
	KindArray:     "array",
	KindFunction:  "function",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is an immutable dynamic value. The zero Value is Undefined.
type Value struct {
	kind   Kind
	str    string // string payload, or function name
	num    float64
	flag   bool
	fields map[string]Value
	items  []Value
}

// Undefined returns the value of a property that was never evaluated or a
// reference that resolves to nothing.
func Undefined() Value { return Value{} }

// Null returns the explicit null value.
func Null() Value { return Value{kind: KindNull} }

// String wraps a Go string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a float64.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool wraps a Go bool.
func Bool(b bool) Value { return Value{kind: KindBoolean, flag: b} }

// FunctionRef references a named function, e.g. a script object method.
func FunctionRef(name string) Value { return Value{kind: KindFunction, str: name} }

// Object builds an object value. The map is copied.
func Object(fields map[string]Value) Value {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Value{kind: KindObject, fields: cp}
}

// Array builds an array value. The slice is copied.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, items: cp}
}

// EmptyObject is `{}`.
func EmptyObject() Value { return Value{kind: KindObject, fields: map[string]Value{}} }

// EmptyArray is `[]`.
func EmptyArray() Value { return Value{kind: KindArray, items: []Value{}} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// IsNullish reports whether v is null or undefined.
func (v Value) IsNullish() bool { return v.kind == KindUndefined || v.kind == KindNull }

// Str returns the string payload; only meaningful for KindString.
func (v Value) Str() string { return v.str }

// Num returns the number payload; only meaningful for KindNumber.
func (v Value) Num() float64 { return v.num }

// Truth returns the boolean payload; only meaningful for KindBoolean.
func (v Value) Truth() bool { return v.flag }

// FuncName returns the referenced function name for KindFunction.
func (v Value) FuncName() string {
	if v.kind != KindFunction {
		return ""
	}
	return v.str
}

// Fields returns the object's fields. The map must not be modified.
func (v Value) Fields() map[string]Value { return v.fields }

// Items returns the array's elements. The slice must not be modified.
func (v Value) Items() []Value { return v.items }

// Len returns the number of fields or items, zero for scalars.
func (v Value) Len() int {
	switch v.kind {
	case KindObject:
		return len(v.fields)
	case KindArray:
		return len(v.items)
	}
	return 0
}

// Get returns the named field of an object, or Undefined.
func (v Value) Get(name string) Value {
	if v.kind != KindObject {
		return Undefined()
	}
	return v.fields[name]
}

// Keys returns the object's field names in sorted order.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.fields))
	for k := range v.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Truthy applies JavaScript truthiness.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindUndefined, KindNull:
		return false
	case KindString:
		return v.str != ""
	case KindNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case KindBoolean:
		return v.flag
	}
	return true
}

// Equal reports deep equality. NaN is equal to NaN so that re-evaluation of
// an unchanged expression is not reported as a change.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindUndefined, KindNull:
		return true
	case KindString, KindFunction:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num || (math.IsNaN(v.num) && math.IsNaN(o.num))
	case KindBoolean:
		return v.flag == o.flag
	case KindObject:
		if len(v.fields) != len(o.fields) {
			return false
		}
		for k, fv := range v.fields {
			ov, ok := o.fields[k]
			if !ok || !fv.Equal(ov) {
				return false
			}
		}
		return true
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders the value the way it appears when interpolated into text:
// strings verbatim, numbers in shortest form, composites as JSON.
func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindString:
		return v.str
	case KindNumber:
		return FormatNumber(v.num)
	case KindBoolean:
		return strconv.FormatBool(v.flag)
	case KindFunction:
		return "function " + v.str + "()"
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return "[unprintable " + v.kind.String() + "]"
	}
	return string(b)
}

// FormatNumber formats n the way JavaScript's String(n) does for the common
// cases: integers without a fraction, NaN and infinities by name.
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(n, 'f', -1, 64)
	if strings.HasPrefix(s, "-0") && n == 0 {
		return "0"
	}
	return s
}
