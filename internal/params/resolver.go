// Package params computes the effective input set for a node invocation.
//
// Three sources merge in increasing precedence: frozen build-time
// configuration, values delivered by declared connections, and run-level
// runtime overrides. A value reaches the node only if its name appears in
// the node's declared contract; everything else is dropped and logged. That
// gate is a deliberate security boundary against parameter injection, not a
// convenience.
package params

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/gridloop/internal/config"
	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/ctyconv"
	"github.com/vk/gridloop/internal/graph"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// MissingParameterError reports a contract-required parameter that is still
// absent after the full merge. It aborts the run for that node.
type MissingParameterError struct {
	Node      string
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("node %q: required parameter %q missing after merge", e.Node, e.Parameter)
}

// Sources holds the three value sources for one invocation, lowest
// precedence first.
type Sources struct {
	Config    map[string]cty.Value
	Connected map[string]cty.Value
	Overrides map[string]cty.Value
}

// Resolve merges the sources under the node's contract and returns the
// effective inputs. The result is deterministic: resolving twice with
// unchanged sources yields identical values.
//
// A node whose contract has zero required parameters and whose sources are
// all empty still resolves successfully, receiving its declared defaults; an
// all-sources-empty condition never short-circuits default application.
func Resolve(ctx context.Context, node *graph.Node, src Sources) (map[string]cty.Value, error) {
	logger := ctxlog.FromContext(ctx)

	merged := make(map[string]cty.Value)
	layer := func(values map[string]cty.Value, origin string) {
		for _, name := range ctyconv.SortedKeys(values) {
			if _, declared := node.Contract[name]; !declared {
				logger.Warn("Dropping undeclared parameter.",
					"node", node.Name, "parameter", name, "origin", origin)
				continue
			}
			merged[name] = values[name]
		}
	}
	layer(src.Config, "config")
	layer(src.Connected, "connection")
	layer(src.Overrides, "runtime")

	resolved := make(map[string]cty.Value, len(node.Contract))
	for _, name := range sortedContractNames(node.Contract) {
		spec := node.Contract[name]

		val, present := merged[name]
		if !present || val.IsNull() {
			if spec.Default != nil {
				resolved[name] = *spec.Default
				continue
			}
			if spec.Required {
				return nil, &MissingParameterError{Node: node.Name, Parameter: name}
			}
			continue
		}

		if spec.Type != cty.NilType && !spec.Type.HasDynamicTypes() {
			converted, err := convert.Convert(val, spec.Type)
			if err != nil {
				return nil, fmt.Errorf("node %q: parameter %q: cannot convert %s to declared type %s: %w",
					node.Name, name, val.Type().FriendlyName(), spec.Type.FriendlyName(), err)
			}
			val = converted
		}
		resolved[name] = val
	}

	return resolved, nil
}

// ApplyConnection projects a source node's outputs through a connection's
// field mapping into target-parameter names. An empty mapping delivers every
// output under its own name; the target's contract still gates delivery
// during Resolve.
func ApplyConnection(conn *config.Connection, outputs map[string]cty.Value) map[string]cty.Value {
	if len(conn.Fields) == 0 {
		out := make(map[string]cty.Value, len(outputs))
		for name, val := range outputs {
			out[name] = val
		}
		return out
	}

	out := make(map[string]cty.Value, len(conn.Fields))
	for srcField, param := range conn.Fields {
		if val, ok := outputs[srcField]; ok {
			out[param] = val
		}
	}
	return out
}

func sortedContractNames(contract config.Contract) []string {
	names := make([]string, 0, len(contract))
	for name := range contract {
		names = append(names, name)
	}
	// Stable order keeps drop-logging and conversion errors deterministic.
	sort.Strings(names)
	return names
}
