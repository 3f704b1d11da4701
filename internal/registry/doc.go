// Package registry holds the named Go collaborators a workflow can refer to:
// node handlers and convergence callbacks. A handler declares a parameter
// contract and runs; everything it does internally (network calls, model
// inference, file access) is opaque to the engine.
package registry
