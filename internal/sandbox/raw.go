package sandbox

import (
	"context"
	"strings"
	"time"

	"github.com/vk/evalgraph/internal/binding"
	"github.com/vk/evalgraph/internal/value"
)

// EvaluateRaw evaluates every dynamic segment inside a raw property value.
//
// A string that is exactly one segment takes the segment's value and type.
// Strings mixing text and segments are rendered as text, with null and
// undefined results rendered as empty. Objects and arrays are evaluated
// element by element; other literals pass through. The first failing
// segment fails the whole value. All segments share one deadline.
func (e *Evaluator) EvaluateRaw(ctx context.Context, raw value.Value, scope Scope) (value.Value, *EvalError) {
	return e.evaluateRaw(ctx, raw, scope, time.Now().Add(e.timeout))
}

func (e *Evaluator) evaluateRaw(ctx context.Context, raw value.Value, scope Scope, deadline time.Time) (value.Value, *EvalError) {
	switch raw.Kind() {
	case value.KindString:
		return e.evaluateString(ctx, raw, scope, deadline)
	case value.KindObject:
		fields := make(map[string]value.Value, raw.Len())
		for _, k := range raw.Keys() {
			v, err := e.evaluateRaw(ctx, raw.Get(k), scope, deadline)
			if err != nil {
				return value.Undefined(), err
			}
			fields[k] = v
		}
		return value.Object(fields), nil
	case value.KindArray:
		items := make([]value.Value, 0, raw.Len())
		for _, item := range raw.Items() {
			v, err := e.evaluateRaw(ctx, item, scope, deadline)
			if err != nil {
				return value.Undefined(), err
			}
			items = append(items, v)
		}
		return value.Array(items...), nil
	}
	return raw, nil
}

func (e *Evaluator) evaluateString(ctx context.Context, raw value.Value, scope Scope, deadline time.Time) (value.Value, *EvalError) {
	s := raw.Str()
	if seg, ok := binding.IsSingleBinding(s); ok {
		return e.evaluate(ctx, seg.Expr(), scope, deadline)
	}

	segments := binding.Segments(s)
	dynamic := false
	var sb strings.Builder
	for _, seg := range segments {
		if !seg.Dynamic {
			sb.WriteString(seg.Text)
			continue
		}
		dynamic = true
		v, err := e.evaluate(ctx, seg.Expr(), scope, deadline)
		if err != nil {
			return value.Undefined(), err
		}
		if !v.IsNullish() {
			sb.WriteString(v.String())
		}
	}
	if !dynamic {
		return raw, nil
	}
	return value.String(sb.String()), nil
}
