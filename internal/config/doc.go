// Package config defines the format-agnostic page model and the Loader
// interface implemented by the HCL and YAML adapters.
//
// A Page is the single source the app feeds into the engine: Specs turns it
// into registry definitions. Concrete loaders live in hcl_adapter and
// yaml_adapter; Discover and Load pick the right one per file extension.
package config
