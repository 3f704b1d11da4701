// Package config defines the format-agnostic model of a workflow: its nodes,
// connections, cycle metadata, and parameter contracts. Loaders for concrete
// file formats (HCL, YAML) translate into this model; nothing downstream of a
// Loader ever sees format-specific types.
package config
