package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/evalgraph/internal/registry"
	"github.com/vk/evalgraph/internal/validate"
	"github.com/vk/evalgraph/internal/value"
)

func TestPageSpecs(t *testing.T) {
	page := &Page{Entities: []*Entity{
		{Name: "Input1", Properties: []*Property{{Name: "text", Type: "text", Value: value.String("hi")}}},
		{Name: "JSObject1", Kind: "jsobject", Properties: []*Property{{Name: "n", Type: "number", Formula: "1 + 1"}}},
	}}

	specs, err := page.Specs()
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, registry.KindWidget, specs[0].Kind)
	assert.Equal(t, validate.TypeText, specs[0].Properties[0].Type)
	assert.Equal(t, registry.KindScriptObject, specs[1].Kind)
	assert.Equal(t, "1 + 1", specs[1].Properties[0].Formula)
}

func TestPageSpecs_Errors(t *testing.T) {
	dup := &Page{Entities: []*Entity{{Name: "A", Source: "a.hcl"}, {Name: "A", Source: "b.hcl"}}}
	_, err := dup.Specs()
	assert.ErrorIs(t, err, registry.ErrDuplicateEntity)

	badKind := &Page{Entities: []*Entity{{Name: "A", Kind: "gadget"}}}
	_, err = badKind.Specs()
	assert.Error(t, err)

	badType := &Page{Entities: []*Entity{{Name: "A", Properties: []*Property{{Name: "x", Type: "decimal"}}}}}
	_, err = badType.Specs()
	assert.ErrorIs(t, err, validate.ErrUnknownType)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.hcl", "a.HCL", "sub/c.hcl", "readme.md"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}
	ctx := context.Background()

	files, err := Discover(ctx, []string{".hcl"}, dir, filepath.Join(dir, "b.hcl"), filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.HCL"),
		filepath.Join(dir, "b.hcl"),
		filepath.Join(dir, "sub", "c.hcl"),
	}, files)

	_, err = Discover(ctx, []string{".hcl"}, filepath.Join(dir, "readme.md"))
	assert.Error(t, err)
}

type stubLoader struct {
	exts []string
	name string
}

func (s stubLoader) Extensions() []string { return s.exts }

func (s stubLoader) Load(_ context.Context, files ...string) (*Page, error) {
	page := &Page{}
	for _, f := range files {
		page.Entities = append(page.Entities, &Entity{Name: s.name, Source: f})
	}
	return page, nil
}

func TestMultiLoader(t *testing.T) {
	m := NewMultiLoader(stubLoader{exts: []string{".hcl"}, name: "H"}, stubLoader{exts: []string{".yaml", ".yml"}, name: "Y"})
	assert.Equal(t, []string{".hcl", ".yaml", ".yml"}, m.Extensions())

	page, err := m.Load(context.Background(), "x.yml", "y.hcl")
	require.NoError(t, err)
	require.Len(t, page.Entities, 2)
	assert.Equal(t, "Y", page.Entities[0].Name)
	assert.Equal(t, "H", page.Entities[1].Name)

	_, err = m.Load(context.Background(), "z.json")
	assert.Error(t, err)
}
