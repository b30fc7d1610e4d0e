package binding

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/evalgraph/internal/value"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	p, err := NewParser(16)
	require.NoError(t, err)
	return NewExtractor(p)
}

func refPaths(b Binding) []string {
	out := make([]string, 0, len(b.References))
	for _, r := range b.References {
		out = append(out, r.Path)
	}
	return out
}

func TestExtract_References(t *testing.T) {
	ex := newTestExtractor(t)
	known := NewEntitySet("Input1", "Query1", "Table1")

	testCases := []struct {
		name    string
		raw     string
		refs    [][]string
		targets []string
	}{
		{
			name:    "simple reference",
			raw:     "{{Input1.text}} world",
			refs:    [][]string{{"Input1.text"}},
			targets: []string{"Input1.text"},
		},
		{
			name:    "nested path narrows to property",
			raw:     "{{Query1.data[0].name}}",
			refs:    [][]string{{"Query1.data[0].name"}},
			targets: []string{"Query1.data"},
		},
		{
			name:    "string index",
			raw:     `{{Input1["text"]}}`,
			refs:    [][]string{{"Input1.text"}},
			targets: []string{"Input1.text"},
		},
		{
			name:    "unknown roots and locals are ignored",
			raw:     "{{[for r in Query1.data : upper(r.name)]}}{{ globalThing.x }}",
			refs:    [][]string{{"Query1.data"}, {}},
			targets: []string{"Query1.data"},
		},
		{
			name:    "several references in one segment",
			raw:     "{{ Input1.text == \"\" ? Table1.selectedRow : Query1.data }}",
			refs:    [][]string{{"Input1.text", "Query1.data", "Table1.selectedRow"}},
			targets: []string{"Input1.text", "Query1.data", "Table1.selectedRow"},
		},
		{
			name:    "unknown property kept as candidate",
			raw:     "{{Input1.nonExistent}}",
			refs:    [][]string{{"Input1.nonExistent"}},
			targets: []string{"Input1.nonExistent"},
		},
		{
			name:    "entity without property is not a reference",
			raw:     "{{ Input1 }}",
			refs:    [][]string{{}},
			targets: []string{},
		},
		{
			name: "unterminated yields nothing",
			raw:  "{{ Input1.text",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bindings := ex.Extract("Text1.value", value.String(tc.raw), known)
			require.Len(t, bindings, len(tc.refs))
			for i, b := range bindings {
				assert.Equal(t, "Text1.value", b.Source)
				assert.Equal(t, tc.refs[i], refPaths(b))
			}
			if tc.targets != nil {
				assert.Equal(t, tc.targets, UniqueTargets(bindings))
			}
		})
	}
}

func TestExtract_Nested(t *testing.T) {
	ex := newTestExtractor(t)
	known := NewEntitySet("A", "B")

	raw := value.Object(map[string]value.Value{
		"title": value.String("{{A.x}}"),
		"rows": value.Array(
			value.String("static"),
			value.String("{{B.y}} and {{A.x}}"),
		),
	})

	bindings := ex.Extract("Chart1.config", raw, known)
	require.Len(t, bindings, 3)
	assert.Equal(t, "rows[1]", bindings[0].Location)
	assert.Equal(t, "rows[1]", bindings[1].Location)
	assert.Equal(t, "title", bindings[2].Location)

	assert.Equal(t, []string{"B.y", "A.x", "A.x"}, Targets(bindings))
	assert.Equal(t, []string{"A.x", "B.y"}, UniqueTargets(bindings))
}

func TestExtract_SelfReference(t *testing.T) {
	ex := newTestExtractor(t)
	bindings := ex.Extract("Input1.isValid", value.String(`{{ this.text != "" }}`), NewEntitySet("Input1"))
	require.Len(t, bindings, 1)
	require.Len(t, bindings[0].References, 1)
	assert.Equal(t, "Input1.text", bindings[0].References[0].Target)
}

func TestExtract_ParseErrorStillBinds(t *testing.T) {
	ex := newTestExtractor(t)
	bindings := ex.Extract("Text1.value", value.String("{{ Input1.text + }}"), NewEntitySet("Input1"))
	require.Len(t, bindings, 1)
	assert.Error(t, bindings[0].ParseError)

	bindings = ex.Extract("Text1.value", value.String(`{{ "abc }}`), NewEntitySet("Input1"))
	require.Len(t, bindings, 1)
	assert.Error(t, bindings[0].ParseError)
	assert.Empty(t, bindings[0].References)
}

func TestExtract_NonStringLiteral(t *testing.T) {
	ex := newTestExtractor(t)
	assert.Empty(t, ex.Extract("A.b", value.Number(3), NewEntitySet("A")))
	assert.Empty(t, ex.Extract("A.b", value.Undefined(), NewEntitySet("A")))
}

func TestParser_CacheAndFunctions(t *testing.T) {
	p, err := NewParser(2)
	require.NoError(t, err)

	expr, diags := p.Parse(`upper(lower(A.x)) == join(",", [])`)
	require.False(t, diags.HasErrors())
	assert.Equal(t, []string{"join", "lower", "upper"}, CalledFunctions(expr))

	again, _ := p.Parse(`upper(lower(A.x)) == join(",", [])`)
	assert.Same(t, expr, again)

	p.Parse("1")
	p.Parse("2")
	assert.Equal(t, 2, p.Len())
	assert.Nil(t, CalledFunctions(nil))
}

func TestParser_ConcurrentAccess(t *testing.T) {
	ex := newTestExtractor(t)
	known := NewEntitySet("A")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bindings := ex.Extract("B.c", value.String("{{A.x}}-{{A.y}}"), known)
			assert.Len(t, bindings, 2)
		}()
	}
	wg.Wait()
}

func TestExtract_Unresolved(t *testing.T) {
	ex := newTestExtractor(t)
	bindings := ex.Extract("Text1.value", value.String("{{ Later1.value }} {{ this.x }} {{ Input1.text }}"), NewEntitySet("Input1"))
	require.Len(t, bindings, 3)
	assert.Equal(t, []string{"Later1"}, bindings[0].Unresolved)
	assert.Empty(t, bindings[1].Unresolved, "this is never unresolved")
	assert.Empty(t, bindings[2].Unresolved)
}

func TestExtractFormula(t *testing.T) {
	ex := newTestExtractor(t)
	known := NewEntitySet("Button1", "Text1")

	b := ex.ExtractFormula("Container1.children",
		`[for n, v in {"Button1" = Button1.isVisible, "Text1" = Text1.isVisible} : n if v != false]`, known)
	assert.Nil(t, b.ParseError)
	assert.Equal(t, "Container1.children", b.Source)
	assert.Equal(t, []string{"Button1.isVisible", "Text1.isVisible"}, refPaths(b))

	b = ex.ExtractFormula("Input1.length", "strlen(this.text)", NewEntitySet("Input1"))
	assert.Equal(t, []string{"Input1.text"}, refPaths(b))
}
