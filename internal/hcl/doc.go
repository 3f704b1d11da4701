// Package hcl implements the config.Loader interface for HCL workflow files.
// It parses `.hcl` files, decodes them against the schema package, and
// translates the result into the format-agnostic config model. Node config
// attributes are evaluated statically at load time; inter-node data flows
// only through declared connections, so config expressions may not reference
// other nodes.
package hcl
