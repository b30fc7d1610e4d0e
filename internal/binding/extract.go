package binding

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/evalgraph/internal/nodeid"
	"github.com/vk/evalgraph/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// SelfName is the root name a derived formula uses for its own entity.
const SelfName = "this"

// EntityLookup reports whether a root identifier names a known entity.
type EntityLookup interface {
	HasEntity(name string) bool
}

// EntitySet is a static EntityLookup.
type EntitySet map[string]struct{}

func (s EntitySet) HasEntity(name string) bool {
	_, ok := s[name]
	return ok
}

// NewEntitySet builds an EntitySet from names.
func NewEntitySet(names ...string) EntitySet {
	s := make(EntitySet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Reference is one identifier chain found in a dynamic segment.
type Reference struct {
	// Path is the full chain as written, with `this` resolved, e.g.
	// `Query1.data[0].id`.
	Path string
	// Target is the property node the chain resolves to, e.g. `Query1.data`.
	Target string
}

// Binding is one dynamic segment of a property's raw value together with
// the references it makes. A segment without references still yields a
// Binding so that it is evaluated.
type Binding struct {
	Source     string // property path owning the raw value
	Location   string // position inside a nested raw value, "" at the top
	Segment    Segment
	References []Reference
	// Unresolved lists root names that are not known entities. They
	// become references if an entity of that name appears later.
	Unresolved []string
	ParseError error
}

// Extractor turns raw values into bindings.
type Extractor struct {
	parser *Parser
}

// NewExtractor creates an Extractor backed by parser.
func NewExtractor(parser *Parser) *Extractor {
	return &Extractor{parser: parser}
}

// Parser returns the expression parser shared with the evaluator.
func (e *Extractor) Parser() *Parser { return e.parser }

// Extract walks raw (strings, and recursively objects and arrays) and
// returns one Binding per dynamic segment in document order. Object fields
// are visited in sorted key order.
func (e *Extractor) Extract(source string, raw value.Value, known EntityLookup) []Binding {
	var out []Binding
	e.walk(source, ownerOf(source), "", raw, known, &out)
	return out
}

// ExtractFormula returns the single Binding of a derived-property formula,
// which is an expression without markers.
func (e *Extractor) ExtractFormula(source, formula string, known EntityLookup) Binding {
	seg := Segment{Text: openMarker + formula + closeMarker, Dynamic: true}
	return e.bind(source, ownerOf(source), "", seg, known)
}

func ownerOf(source string) string {
	if addr, err := nodeid.Parse(source); err == nil {
		return addr.Entity()
	}
	return ""
}

func (e *Extractor) walk(source, owner, location string, raw value.Value, known EntityLookup, out *[]Binding) {
	switch raw.Kind() {
	case value.KindString:
		for _, seg := range Segments(raw.Str()) {
			if !seg.Dynamic {
				continue
			}
			*out = append(*out, e.bind(source, owner, location, seg, known))
		}
	case value.KindObject:
		for _, k := range raw.Keys() {
			e.walk(source, owner, joinLocation(location, k), raw.Get(k), known, out)
		}
	case value.KindArray:
		for i, item := range raw.Items() {
			e.walk(source, owner, fmt.Sprintf("%s[%d]", location, i), item, known, out)
		}
	}
}

func joinLocation(location, key string) string {
	if location == "" {
		return key
	}
	return location + "." + key
}

func (e *Extractor) bind(source, owner, location string, seg Segment, known EntityLookup) Binding {
	b := Binding{Source: source, Location: location, Segment: seg}
	expr, diags := e.parser.Parse(seg.Expr())
	if diags.HasErrors() {
		b.ParseError = diags
	}
	if expr == nil {
		return b
	}

	unique := make(map[string]Reference)
	unresolved := make(map[string]struct{})
	for _, traversal := range expr.Variables() {
		ref, ok := referenceFor(traversal, owner, known)
		if !ok {
			if root := traversal.RootName(); root != SelfName && !known.HasEntity(root) {
				unresolved[root] = struct{}{}
			}
			continue
		}
		unique[ref.Path] = ref
	}
	for root := range unresolved {
		b.Unresolved = append(b.Unresolved, root)
	}
	sort.Strings(b.Unresolved)

	b.References = make([]Reference, 0, len(unique))
	for _, ref := range unique {
		b.References = append(b.References, ref)
	}
	sort.Slice(b.References, func(i, j int) bool { return b.References[i].Path < b.References[j].Path })
	return b
}

var identRegex = regexp.MustCompile(`^[a-zA-Z_$][a-zA-Z0-9_$-]*$`)

// referenceFor converts a root traversal into a Reference when its root is
// a known entity (or `this`) followed by at least a property name.
func referenceFor(traversal hcl.Traversal, owner string, known EntityLookup) (Reference, bool) {
	root := traversal.RootName()
	if root == SelfName {
		if owner == "" {
			return Reference{}, false
		}
		root = owner
	}
	if !known.HasEntity(root) {
		return Reference{}, false
	}

	addr := &nodeid.Address{Path: []nodeid.PathSegment{nodeid.NewPathSegment(root)}}
	for _, step := range traversal[1:] {
		switch s := step.(type) {
		case hcl.TraverseAttr:
			addr.Path = append(addr.Path, nodeid.NewPathSegment(s.Name))
		case hcl.TraverseIndex:
			if !s.Key.IsKnown() || s.Key.IsNull() {
				return finish(addr)
			}
			switch s.Key.Type() {
			case cty.String:
				key := s.Key.AsString()
				if !identRegex.MatchString(key) {
					return finish(addr)
				}
				addr.Path = append(addr.Path, nodeid.NewPathSegment(key))
			case cty.Number:
				bf := s.Key.AsBigFloat()
				if !bf.IsInt() || len(addr.Path) < 2 {
					return finish(addr)
				}
				idx, _ := bf.Int64()
				addr.Path = append(addr.Path, nodeid.NewPathSegmentWithIndex("", int(idx)))
			default:
				return finish(addr)
			}
		default:
			return finish(addr)
		}
	}
	return finish(addr)
}

func finish(addr *nodeid.Address) (Reference, bool) {
	prop := addr.Property()
	if prop == nil || prop.Path[1].Name == "" {
		return Reference{}, false
	}
	return Reference{Path: addr.String(), Target: prop.String()}, true
}

// Targets returns the property node of every reference across bindings,
// duplicates included, in binding order.
func Targets(bindings []Binding) []string {
	var out []string
	for _, b := range bindings {
		for _, ref := range b.References {
			out = append(out, ref.Target)
		}
	}
	return out
}

// UniqueTargets returns the sorted set of Targets.
func UniqueTargets(bindings []Binding) []string {
	seen := make(map[string]struct{})
	for _, t := range Targets(bindings) {
		seen[t] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Describe renders bindings for logs, e.g. `Text1.value <- Input1.text`.
func Describe(bindings []Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		refs := make([]string, len(b.References))
		for i, r := range b.References {
			refs[i] = r.Path
		}
		parts = append(parts, fmt.Sprintf("%s <- [%s]", b.Source, strings.Join(refs, ", ")))
	}
	return strings.Join(parts, "; ")
}
