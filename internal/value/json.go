package value

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// MarshalJSON encodes v as JSON. Undefined and NaN encode as null.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToGo())
}

// UnmarshalJSON decodes any JSON document into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseJSON decodes a JSON document into a Value.
func ParseJSON(data []byte) (Value, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Undefined(), err
	}
	return FromGo(raw)
}

// ToGo converts v into plain Go values (map[string]any, []any, string,
// float64, bool, nil) suitable for encoding.
func (v Value) ToGo() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil
		}
		return v.num
	case KindBoolean:
		return v.flag
	case KindFunction:
		return v.str
	case KindObject:
		out := make(map[string]any, len(v.fields))
		for k, fv := range v.fields {
			out[k] = fv.ToGo()
		}
		return out
	case KindArray:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.ToGo()
		}
		return out
	}
	return nil
}

// FromGo converts decoded JSON or YAML data into a Value.
func FromGo(raw any) (Value, error) {
	switch r := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return r, nil
	case string:
		return String(r), nil
	case bool:
		return Bool(r), nil
	case float64:
		return Number(r), nil
	case float32:
		return Number(float64(r)), nil
	case int:
		return Number(float64(r)), nil
	case int32:
		return Number(float64(r)), nil
	case int64:
		return Number(float64(r)), nil
	case uint:
		return Number(float64(r)), nil
	case uint64:
		return Number(float64(r)), nil
	case json.Number:
		f, err := r.Float64()
		if err != nil {
			return Undefined(), fmt.Errorf("invalid number %q: %w", r.String(), err)
		}
		return Number(f), nil
	case time.Time:
		return String(r.UTC().Format(time.RFC3339Nano)), nil
	case map[string]any:
		fields := make(map[string]Value, len(r))
		for k, fv := range r {
			conv, err := FromGo(fv)
			if err != nil {
				return Undefined(), fmt.Errorf("in field %q: %w", k, err)
			}
			fields[k] = conv
		}
		return Value{kind: KindObject, fields: fields}, nil
	case map[any]any:
		fields := make(map[string]Value, len(r))
		for k, fv := range r {
			conv, err := FromGo(fv)
			if err != nil {
				return Undefined(), fmt.Errorf("in field %v: %w", k, err)
			}
			fields[fmt.Sprint(k)] = conv
		}
		return Value{kind: KindObject, fields: fields}, nil
	case []any:
		items := make([]Value, len(r))
		for i, item := range r {
			conv, err := FromGo(item)
			if err != nil {
				return Undefined(), fmt.Errorf("in element %d: %w", i, err)
			}
			items[i] = conv
		}
		return Value{kind: KindArray, items: items}, nil
	}
	return Undefined(), fmt.Errorf("unsupported Go type %T", raw)
}
