package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/vk/evalgraph/internal/binding"
	"github.com/vk/evalgraph/internal/value"
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 250 * time.Millisecond

// Resolver supplies the current value of entities to an evaluation.
type Resolver interface {
	// EntityValue returns an object of the entity's property values.
	EntityValue(name string) (value.Value, bool)
}

// Scope is what an expression may read: entities from Resolver, and the
// owning entity under the name `this`.
type Scope struct {
	Resolver Resolver
	Self     string
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTimeout sets the per-evaluation deadline. Non-positive values keep
// the default.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithFunctions adds functions to the allow-list, replacing defaults of
// the same name.
func WithFunctions(funcs map[string]function.Function) Option {
	return func(e *Evaluator) {
		for name, fn := range funcs {
			e.functions[name] = fn
		}
	}
}

// Evaluator evaluates expressions. It is safe for concurrent use; the
// function table is read-only after construction.
type Evaluator struct {
	parser    *binding.Parser
	functions map[string]function.Function
	timeout   time.Duration
}

// New creates an Evaluator sharing parser's cache.
func New(parser *binding.Parser, opts ...Option) *Evaluator {
	e := &Evaluator{
		parser:    parser,
		functions: DefaultFunctions(),
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Timeout returns the per-evaluation deadline.
func (e *Evaluator) Timeout() time.Duration { return e.timeout }

// Functions returns the sorted allow-list.
func (e *Evaluator) Functions() []string { return FunctionNames(e.functions) }

// Evaluate evaluates one expression (the inside of a dynamic segment).
func (e *Evaluator) Evaluate(ctx context.Context, src string, scope Scope) (value.Value, *EvalError) {
	return e.evaluate(ctx, src, scope, time.Now().Add(e.timeout))
}

func (e *Evaluator) evaluate(ctx context.Context, src string, scope Scope, deadline time.Time) (value.Value, *EvalError) {
	expr, diags := e.parser.Parse(src)
	if diags.HasErrors() {
		return value.Undefined(), thrown("%s", diagMessage(diags))
	}
	for _, name := range binding.CalledFunctions(expr) {
		if _, ok := e.functions[name]; !ok {
			return value.Undefined(), thrown("function %q is not allowed", name)
		}
	}
	return e.run(ctx, expr, e.evalContext(expr, scope), deadline)
}

type outcome struct {
	val value.Value
	err *EvalError
}

// run evaluates expr on its own goroutine and gives up at deadline.
func (e *Evaluator) run(ctx context.Context, expr hcl.Expression, evalCtx *hcl.EvalContext, deadline time.Time) (value.Value, *EvalError) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return value.Undefined(), e.timedOut()
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: thrown("panic during evaluation: %v", r)}
			}
		}()
		v, diags := expr.Value(evalCtx)
		if diags.HasErrors() {
			done <- outcome{err: thrown("%s", diagMessage(diags))}
			return
		}
		conv, err := value.FromCty(v)
		if err != nil {
			done <- outcome{err: thrown("%v", err)}
			return
		}
		done <- outcome{val: conv}
	}()

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.val, out.err
	case <-timer.C:
		return value.Undefined(), e.timedOut()
	case <-ctx.Done():
		return value.Undefined(), &EvalError{Kind: Canceled, Message: ctx.Err().Error()}
	}
}

func (e *Evaluator) timedOut() *EvalError {
	return &EvalError{Kind: Timeout, Message: fmt.Sprintf("evaluation exceeded %s", e.timeout)}
}

// evalContext builds a fresh context holding only the entities expr
// references. Properties the expression names but the entity lacks are
// present as null, so reading them yields null instead of an error.
func (e *Evaluator) evalContext(expr hcl.Expression, scope Scope) *hcl.EvalContext {
	refs := make(map[string]map[string]struct{})
	for _, traversal := range expr.Variables() {
		root := traversal.RootName()
		names, ok := refs[root]
		if !ok {
			names = make(map[string]struct{})
			refs[root] = names
		}
		if len(traversal) > 1 {
			if name, ok := stepName(traversal[1]); ok {
				names[name] = struct{}{}
			}
		}
	}

	vars := make(map[string]cty.Value, len(refs))
	for root, names := range refs {
		entity := root
		if root == binding.SelfName {
			entity = scope.Self
		}
		if scope.Resolver == nil || entity == "" {
			continue
		}
		obj, ok := scope.Resolver.EntityValue(entity)
		if !ok {
			continue
		}
		vars[root] = entityCty(obj, names)
	}
	return &hcl.EvalContext{Variables: vars, Functions: e.functions}
}

func stepName(step hcl.Traverser) (string, bool) {
	switch s := step.(type) {
	case hcl.TraverseAttr:
		return s.Name, true
	case hcl.TraverseIndex:
		if s.Key.IsKnown() && !s.Key.IsNull() && s.Key.Type() == cty.String {
			return s.Key.AsString(), true
		}
	}
	return "", false
}

func entityCty(obj value.Value, names map[string]struct{}) cty.Value {
	attrs := make(map[string]cty.Value, obj.Len()+len(names))
	for k, v := range obj.Fields() {
		attrs[k] = value.ToCty(v)
	}
	for n := range names {
		if _, ok := attrs[n]; !ok {
			attrs[n] = cty.NullVal(cty.DynamicPseudoType)
		}
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}

func diagMessage(diags hcl.Diagnostics) string {
	var parts []string
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		msg := d.Summary
		if d.Detail != "" {
			msg += ": " + d.Detail
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}
