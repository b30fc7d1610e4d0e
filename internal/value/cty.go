package value

import (
	"fmt"
	"math"

	"github.com/zclconf/go-cty/cty"
)

// ToCty converts v into a cty.Value for use inside an HCL evaluation
// context. Undefined becomes a dynamically typed null, function references
// cross as their name.
func ToCty(v Value) cty.Value {
	switch v.kind {
	case KindUndefined, KindNull:
		return cty.NullVal(cty.DynamicPseudoType)
	case KindString:
		return cty.StringVal(v.str)
	case KindNumber:
		if math.IsNaN(v.num) {
			return cty.NullVal(cty.Number)
		}
		return cty.NumberFloatVal(v.num)
	case KindBoolean:
		return cty.BoolVal(v.flag)
	case KindFunction:
		return cty.StringVal(v.str)
	case KindObject:
		if len(v.fields) == 0 {
			return cty.EmptyObjectVal
		}
		attrs := make(map[string]cty.Value, len(v.fields))
		for k, fv := range v.fields {
			attrs[k] = ToCty(fv)
		}
		return cty.ObjectVal(attrs)
	case KindArray:
		if len(v.items) == 0 {
			return cty.EmptyTupleVal
		}
		elems := make([]cty.Value, len(v.items))
		for i, item := range v.items {
			elems[i] = ToCty(item)
		}
		return cty.TupleVal(elems)
	}
	return cty.NullVal(cty.DynamicPseudoType)
}

// FromCty converts a cty.Value produced by an HCL evaluation back into a
// Value. Unknown values map to Undefined, nulls to Null.
func FromCty(v cty.Value) (Value, error) {
	if v.IsMarked() {
		v, _ = v.Unmark()
	}
	if !v.IsKnown() {
		return Undefined(), nil
	}
	if v.IsNull() {
		return Null(), nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return String(v.AsString()), nil
	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return Number(f), nil
	case ty == cty.Bool:
		return Bool(v.True()), nil
	case ty.IsObjectType() || ty.IsMapType():
		fields := make(map[string]Value, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			conv, err := FromCty(ev)
			if err != nil {
				return Undefined(), fmt.Errorf("in attribute %q: %w", k.AsString(), err)
			}
			fields[k.AsString()] = conv
		}
		return Value{kind: KindObject, fields: fields}, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		items := make([]Value, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			conv, err := FromCty(ev)
			if err != nil {
				return Undefined(), fmt.Errorf("in element %d: %w", len(items), err)
			}
			items = append(items, conv)
		}
		return Value{kind: KindArray, items: items}, nil
	}
	return Undefined(), fmt.Errorf("unsupported cty type %s", ty.FriendlyName())
}
