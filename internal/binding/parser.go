package binding

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultCacheSize bounds the number of parsed expressions kept by a Parser.
const DefaultCacheSize = 4096

// parsed is a cached parse result; diagnostics are cached too so a broken
// expression is not re-parsed on every keystroke that leaves it unchanged.
type parsed struct {
	expr  hclsyntax.Expression
	diags hcl.Diagnostics
}

// Parser parses segment expressions and memoizes the results. It is safe
// for concurrent use; parsed expressions are never mutated after parsing.
type Parser struct {
	cache *lru.Cache
}

// NewParser creates a Parser with an LRU cache of the given size.
func NewParser(size int) (*Parser, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create expression cache: %w", err)
	}
	return &Parser{cache: cache}, nil
}

// Parse returns the syntax tree for src.
func (p *Parser) Parse(src string) (hclsyntax.Expression, hcl.Diagnostics) {
	if cached, ok := p.cache.Get(src); ok {
		res := cached.(parsed)
		return res.expr, res.diags
	}
	expr, diags := hclsyntax.ParseExpression([]byte(src), "binding", hcl.InitialPos)
	p.cache.Add(src, parsed{expr: expr, diags: diags})
	return expr, diags
}

// Len returns the number of cached expressions.
func (p *Parser) Len() int { return p.cache.Len() }

// CalledFunctions returns the sorted, unique names of functions called by expr.
func CalledFunctions(expr hclsyntax.Expression) []string {
	if expr == nil {
		return nil
	}
	seen := make(map[string]struct{})
	hclsyntax.VisitAll(expr, func(n hclsyntax.Node) hcl.Diagnostics {
		if call, ok := n.(*hclsyntax.FunctionCallExpr); ok {
			seen[call.Name] = struct{}{}
		}
		return nil
	})

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
