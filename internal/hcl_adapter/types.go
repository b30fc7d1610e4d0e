package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes the top-level blocks of a page file.
type fileRoot struct {
	Entities []*EntityBlock `hcl:"entity,block"`
	Remain   hcl.Body       `hcl:",remain"`
}

// EntityBlock is `entity "<kind>" "<name>" { ... }`.
type EntityBlock struct {
	Kind       string           `hcl:"kind,label"`
	Name       string           `hcl:"name,label"`
	Parent     *string          `hcl:"parent,optional"`
	Properties []*PropertyBlock `hcl:"property,block"`
	Derived    []*DerivedBlock  `hcl:"derived,block"`
}

// PropertyBlock is `property "<name>" { type = text, value = ... }`.
// `trigger = true` makes it an action binding such as onClick.
type PropertyBlock struct {
	Name    string         `hcl:"name,label"`
	Type    hcl.Expression `hcl:"type,optional"`
	Value   hcl.Expression `hcl:"value,optional"`
	Trigger bool           `hcl:"trigger,optional"`
}

// DerivedBlock is `derived "<name>" { type = number, formula = "..." }`.
type DerivedBlock struct {
	Name    string         `hcl:"name,label"`
	Type    hcl.Expression `hcl:"type,optional"`
	Formula string         `hcl:"formula"`
}
