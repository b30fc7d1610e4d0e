// This file translates the HCL page schema into the format-agnostic page
// model of the config package.

package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/evalgraph/internal/config"
	"github.com/vk/evalgraph/internal/ctxlog"
	"github.com/vk/evalgraph/internal/value"
)

func translateEntity(ctx context.Context, file string, b *EntityBlock) (*config.Entity, error) {
	logger := ctxlog.FromContext(ctx).With("entity_kind", b.Kind, "entity_name", b.Name)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Translating HCL entity to page model.")

	e := &config.Entity{Kind: b.Kind, Name: b.Name, Source: file}
	if b.Parent != nil {
		e.Parent = *b.Parent
	}

	for _, p := range b.Properties {
		typeName, err := typeName(ctx, p.Type)
		if err != nil {
			return nil, fmt.Errorf("in entity '%s', property '%s': %w", b.Name, p.Name, err)
		}
		raw := value.Undefined()
		if isExprDefined(ctx, p.Value, "value") {
			v, diags := p.Value.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("invalid value for property '%s' in entity '%s': %w", p.Name, b.Name, diags)
			}
			if raw, err = value.FromCty(v); err != nil {
				return nil, fmt.Errorf("invalid value for property '%s' in entity '%s': %w", p.Name, b.Name, err)
			}
		}
		e.Properties = append(e.Properties, &config.Property{Name: p.Name, Type: typeName, Value: raw, Trigger: p.Trigger})
	}

	for _, d := range b.Derived {
		typeName, err := typeName(ctx, d.Type)
		if err != nil {
			return nil, fmt.Errorf("in entity '%s', derived property '%s': %w", b.Name, d.Name, err)
		}
		e.Properties = append(e.Properties, &config.Property{Name: d.Name, Type: typeName, Formula: d.Formula})
	}
	return e, nil
}

// typeName reads a property type written either as a bare keyword
// (`type = number`), a call for collection types (`type = list(object)`) or
// a string (`type = "table-rows"`). An omitted type is "any".
func typeName(ctx context.Context, expr hcl.Expression) (string, error) {
	if !isExprDefined(ctx, expr, "type") {
		return "", nil
	}
	if kw := hcl.ExprAsKeyword(expr); kw != "" {
		return keywordType(kw), nil
	}
	if call, ok := expr.(*hclsyntax.FunctionCallExpr); ok {
		switch call.Name {
		case "list", "set", "tuple":
			if len(call.Args) == 1 && hcl.ExprAsKeyword(call.Args[0]) == "object" {
				return "table-rows", nil
			}
			return "array", nil
		case "map", "object":
			return "object", nil
		}
		return "", fmt.Errorf("unsupported type constructor %q", call.Name)
	}

	v, diags := expr.Value(nil)
	if diags.HasErrors() {
		return "", fmt.Errorf("invalid type: %w", diags)
	}
	if v.IsNull() || !v.Type().Equals(cty.String) {
		return "", fmt.Errorf("type must be a keyword or a string")
	}
	return v.AsString(), nil
}

func keywordType(kw string) string {
	switch kw {
	case "string":
		return "text"
	case "list":
		return "array"
	case "map":
		return "object"
	}
	return kw
}
