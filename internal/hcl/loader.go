package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/gridloop/internal/config"
	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/fsutil"
	"github.com/vk/gridloop/internal/schema"
)

// Loader implements config.Loader for HCL workflow files.
type Loader struct{}

// NewLoader creates a new HCL loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads all .hcl files under the given paths and merges them into a
// single workflow model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.CollectFiles(paths, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("discovering workflow files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl workflow files found in %v", paths)
	}
	logger.Debug("Discovered workflow files.", "count", len(files))

	parser := hclparse.NewParser()
	model := &config.Model{}

	for _, path := range files {
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s: %w", path, diags)
		}

		var wf schema.Workflow
		if diags := gohcl.DecodeBody(file.Body, nil, &wf); diags.HasErrors() {
			return nil, fmt.Errorf("decoding %s: %w", path, diags)
		}

		for _, n := range wf.Nodes {
			translated, err := l.translateNode(ctx, n)
			if err != nil {
				return nil, fmt.Errorf("%s: node %q: %w", path, n.Name, err)
			}
			model.Nodes = append(model.Nodes, translated)
		}
		for _, c := range wf.Connections {
			translated, err := l.translateConnection(c)
			if err != nil {
				return nil, fmt.Errorf("%s: connection %s -> %s: %w", path, c.Source, c.Target, err)
			}
			model.Connections = append(model.Connections, translated)
		}
	}

	if err := checkDuplicateNames(model); err != nil {
		return nil, err
	}

	logger.Debug("Workflow model loaded.", "nodes", len(model.Nodes), "connections", len(model.Connections))
	return model, nil
}

// ParseBytes decodes a single in-memory HCL document. Primarily used by
// tests that build workflows inline.
func (l *Loader) ParseBytes(ctx context.Context, src []byte, filename string) (*config.Model, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", filename, diags)
	}

	var wf schema.Workflow
	if diags := gohcl.DecodeBody(file.Body, nil, &wf); diags.HasErrors() {
		return nil, fmt.Errorf("decoding %s: %w", filename, diags)
	}

	model := &config.Model{}
	for _, n := range wf.Nodes {
		translated, err := l.translateNode(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.Name, err)
		}
		model.Nodes = append(model.Nodes, translated)
	}
	for _, c := range wf.Connections {
		translated, err := l.translateConnection(c)
		if err != nil {
			return nil, fmt.Errorf("connection %s -> %s: %w", c.Source, c.Target, err)
		}
		model.Connections = append(model.Connections, translated)
	}

	if err := checkDuplicateNames(model); err != nil {
		return nil, err
	}
	return model, nil
}

func checkDuplicateNames(model *config.Model) error {
	seen := make(map[string]struct{}, len(model.Nodes))
	for _, n := range model.Nodes {
		if _, ok := seen[n.Name]; ok {
			return fmt.Errorf("duplicate node instance name %q", n.Name)
		}
		seen[n.Name] = struct{}{}
	}
	return nil
}

var _ config.Loader = (*Loader)(nil)
