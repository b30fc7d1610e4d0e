// Package yaml_adapter loads page definitions written in YAML:
//
//	entities:
//	  - name: Input1
//	    kind: widget
//	    properties:
//	      - name: text
//	        type: text
//	        value: hello
//	      - name: shout
//	        formula: upper(this.text)
package yaml_adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vk/evalgraph/internal/config"
	"github.com/vk/evalgraph/internal/ctxlog"
	"github.com/vk/evalgraph/internal/value"
)

type fileRoot struct {
	Entities []entityDoc `yaml:"entities"`
}

type entityDoc struct {
	Name       string        `yaml:"name"`
	Kind       string        `yaml:"kind"`
	Parent     string        `yaml:"parent"`
	Properties []propertyDoc `yaml:"properties"`
}

type propertyDoc struct {
	Name    string     `yaml:"name"`
	Type    string     `yaml:"type"`
	Value   *yaml.Node `yaml:"value"`
	Formula string     `yaml:"formula"`
	Trigger bool       `yaml:"trigger"`
}

// Loader is the YAML implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new YAML page loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Extensions implements config.Loader.
func (l *Loader) Extensions() []string { return []string{".yaml", ".yml"} }

// Load implements config.Loader. A file may hold several documents.
func (l *Loader) Load(ctx context.Context, files ...string) (*config.Page, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("YAML loader started.", "file_count", len(files))

	page := &config.Page{}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read YAML file %s: %w", file, err)
		}
		p, err := l.LoadSource(ctx, file, data)
		if err != nil {
			return nil, err
		}
		page.Merge(p)
	}

	logger.Debug("YAML loading complete.", "entities", len(page.Entities))
	return page, nil
}

// LoadSource decodes a page from memory. filename only labels errors.
func (l *Loader) LoadSource(ctx context.Context, filename string, src []byte) (*config.Page, error) {
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)

	page := &config.Page{}
	for {
		var root fileRoot
		err := dec.Decode(&root)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode YAML file %s: %w", filename, err)
		}
		for _, doc := range root.Entities {
			entity, err := translateEntity(filename, doc)
			if err != nil {
				return nil, err
			}
			page.Entities = append(page.Entities, entity)
		}
	}
	ctxlog.FromContext(ctx).Debug("Decoded page file.", "path", filename, "entities_found", len(page.Entities))
	return page, nil
}

func translateEntity(file string, doc entityDoc) (*config.Entity, error) {
	if doc.Name == "" {
		return nil, fmt.Errorf("%s: entity without a name", file)
	}
	e := &config.Entity{Kind: doc.Kind, Name: doc.Name, Parent: doc.Parent, Source: file}
	for _, p := range doc.Properties {
		if p.Name == "" {
			return nil, fmt.Errorf("%s: entity %q has a property without a name", file, doc.Name)
		}
		prop := &config.Property{Name: p.Name, Type: p.Type, Formula: p.Formula, Trigger: p.Trigger, Value: value.Undefined()}
		if p.Value != nil {
			if p.Formula != "" {
				return nil, fmt.Errorf("%s: property %q of entity %q has both a value and a formula", file, p.Name, doc.Name)
			}
			var raw any
			if err := p.Value.Decode(&raw); err != nil {
				return nil, fmt.Errorf("%s: invalid value for property %q of entity %q: %w", file, p.Name, doc.Name, err)
			}
			v, err := value.FromGo(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid value for property %q of entity %q: %w", file, p.Name, doc.Name, err)
			}
			prop.Value = v
		}
		e.Properties = append(e.Properties, prop)
	}
	return e, nil
}
