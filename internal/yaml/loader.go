// Package yaml implements the config.Loader interface for YAML workflow
// files. It produces the same format-agnostic model as the HCL loader, so
// the two formats are interchangeable from the engine's point of view.
package yaml

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vk/gridloop/internal/config"
	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/ctyconv"
	"github.com/vk/gridloop/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// document mirrors the YAML workflow file structure.
type document struct {
	Nodes       []nodeDoc       `yaml:"nodes"`
	Connections []connectionDoc `yaml:"connections"`
}

type nodeDoc struct {
	Type   string         `yaml:"type"`
	Name   string         `yaml:"name"`
	Config map[string]any `yaml:"config"`
}

type connectionDoc struct {
	Source string            `yaml:"source"`
	Target string            `yaml:"target"`
	Fields map[string]string `yaml:"fields"`
	Cycle  *cycleDoc         `yaml:"cycle"`
}

type cycleDoc struct {
	ID                  string `yaml:"id"`
	MaxIterations       int    `yaml:"max_iterations"`
	Timeout             string `yaml:"timeout"`
	MinIterations       int    `yaml:"min_iterations"`
	ConvergenceCheck    string `yaml:"convergence_check"`
	ConvergenceCallback string `yaml:"convergence_callback"`
}

// Loader implements config.Loader for YAML workflow files.
type Loader struct{}

// NewLoader creates a new YAML loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads all .yaml/.yml files under the given paths and merges them into
// a single workflow model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.CollectFiles(paths, ".yaml", ".yml")
	if err != nil {
		return nil, fmt.Errorf("discovering workflow files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no YAML workflow files found in %v", paths)
	}
	logger.Debug("Discovered workflow files.", "count", len(files))

	model := &config.Model{}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := l.parseInto(model, data, path); err != nil {
			return nil, err
		}
	}

	if err := checkDuplicateNames(model); err != nil {
		return nil, err
	}
	return model, nil
}

// ParseBytes decodes a single in-memory YAML document. Primarily used by
// tests that build workflows inline.
func (l *Loader) ParseBytes(ctx context.Context, src []byte, filename string) (*config.Model, error) {
	model := &config.Model{}
	if err := l.parseInto(model, src, filename); err != nil {
		return nil, err
	}
	if err := checkDuplicateNames(model); err != nil {
		return nil, err
	}
	return model, nil
}

func (l *Loader) parseInto(model *config.Model, data []byte, source string) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%s: workflow document is empty", source)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: decode workflow: %w", source, err)
	}

	for _, n := range doc.Nodes {
		if n.Name == "" || n.Type == "" {
			return fmt.Errorf("%s: node requires both 'type' and 'name'", source)
		}
		cfg := make(map[string]cty.Value, len(n.Config))
		for key, raw := range n.Config {
			val, err := ctyconv.ToCty(raw)
			if err != nil {
				return fmt.Errorf("%s: node %q config %q: %w", source, n.Name, key, err)
			}
			cfg[key] = val
		}
		model.Nodes = append(model.Nodes, &config.Node{
			Type:   n.Type,
			Name:   n.Name,
			Config: cfg,
		})
	}

	for _, c := range doc.Connections {
		if c.Source == "" || c.Target == "" {
			return fmt.Errorf("%s: connection requires both 'source' and 'target'", source)
		}
		conn := &config.Connection{
			Source: c.Source,
			Target: c.Target,
			Fields: c.Fields,
		}
		if c.Cycle != nil {
			spec := &config.CycleSpec{
				ID:                  c.Cycle.ID,
				MaxIterations:       c.Cycle.MaxIterations,
				MinIterations:       c.Cycle.MinIterations,
				ConvergenceCheck:    c.Cycle.ConvergenceCheck,
				ConvergenceCallback: c.Cycle.ConvergenceCallback,
			}
			if c.Cycle.Timeout != "" {
				d, err := time.ParseDuration(c.Cycle.Timeout)
				if err != nil {
					return fmt.Errorf("%s: connection %s -> %s: invalid cycle timeout %q: %w",
						source, c.Source, c.Target, c.Cycle.Timeout, err)
				}
				spec.Timeout = d
			}
			conn.Cycle = spec
		}
		model.Connections = append(model.Connections, conn)
	}

	return nil
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
