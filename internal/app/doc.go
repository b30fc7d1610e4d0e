// Package app wires the engine, the page loaders and the observability
// stack together. It defines the App struct, its configuration and the
// run lifecycle, decoupled from the CLI entrypoint.
package app
