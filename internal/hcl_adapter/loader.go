package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/evalgraph/internal/config"
	"github.com/vk/evalgraph/internal/ctxlog"
)

// Loader is the HCL implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new HCL page loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Extensions implements config.Loader.
func (l *Loader) Extensions() []string { return []string{".hcl"} }

// Load parses every file and merges the entities into one page. Blocks
// other than `entity` are ignored.
func (l *Loader) Load(ctx context.Context, files ...string) (*config.Page, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "file_count", len(files))

	page := &config.Page{}
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		p, err := l.decode(ctx, file, hclFile.Body)
		if err != nil {
			return nil, err
		}
		page.Merge(p)
	}

	logger.Debug("HCL loading complete.", "entities", len(page.Entities))
	return page, nil
}

// LoadSource parses a page from memory. filename only labels diagnostics.
func (l *Loader) LoadSource(ctx context.Context, filename string, src []byte) (*config.Page, error) {
	hclFile, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL source %s: %w", filename, diags)
	}
	return l.decode(ctx, filename, hclFile.Body)
}

func (l *Loader) decode(ctx context.Context, file string, body hcl.Body) (*config.Page, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
	}

	page := &config.Page{}
	for _, block := range root.Entities {
		entity, err := translateEntity(ctx, file, block)
		if err != nil {
			return nil, err
		}
		page.Entities = append(page.Entities, entity)
	}
	ctxlog.FromContext(ctx).Debug("Decoded page file.", "path", file, "entities_found", len(page.Entities))
	return page, nil
}
