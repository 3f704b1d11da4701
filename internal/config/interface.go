package config

import (
	"context"
)

// Loader is the interface for a format-specific workflow loader.
type Loader interface {
	// Load reads workflow definitions from the given paths (files or
	// directories), translates them into the format-agnostic model, and
	// validates basic well-formedness. Structural validation of the graph
	// itself happens later, in the graph builder.
	Load(ctx context.Context, paths ...string) (*Model, error)
}
