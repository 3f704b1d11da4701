package hcl

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/gridloop/internal/config"
	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// translateNode converts the HCL-specific node schema into the agnostic model.
// Config attributes are evaluated with no variable scope: a config value that
// references anything else is a load-time error, since inter-node data must
// travel through declared connections.
func (l *Loader) translateNode(ctx context.Context, n *schema.Node) (*config.Node, error) {
	logger := ctxlog.FromContext(ctx)

	node := &config.Node{
		Type:   n.HandlerType,
		Name:   n.Name,
		Config: make(map[string]cty.Value),
	}

	if n.Config != nil {
		attrs, diags := n.Config.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("reading config block: %w", diags)
		}
		for name, attr := range attrs {
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("config attribute %q must be a static value: %w", name, diags)
			}
			node.Config[name] = val
		}
	}

	logger.Debug("Translated node.", "name", n.Name, "handler", n.HandlerType, "config_keys", len(node.Config))
	return node, nil
}

// translateConnection converts the HCL-specific connection schema into the
// agnostic model, parsing the cycle timeout into a duration.
func (l *Loader) translateConnection(c *schema.Connection) (*config.Connection, error) {
	conn := &config.Connection{
		Source: c.Source,
		Target: c.Target,
		Fields: c.Fields,
	}

	if c.Cycle != nil {
		spec := &config.CycleSpec{
			ID:                  c.Cycle.ID,
			ConvergenceCheck:    c.Cycle.ConvergenceCheck,
			ConvergenceCallback: c.Cycle.ConvergenceCallback,
		}
		if c.Cycle.MaxIterations != nil {
			spec.MaxIterations = *c.Cycle.MaxIterations
		}
		if c.Cycle.MinIterations != nil {
			spec.MinIterations = *c.Cycle.MinIterations
		}
		if c.Cycle.Timeout != "" {
			d, err := time.ParseDuration(c.Cycle.Timeout)
			if err != nil {
				return nil, fmt.Errorf("invalid cycle timeout %q: %w", c.Cycle.Timeout, err)
			}
			spec.Timeout = d
		}
		conn.Cycle = spec
	}

	return conn, nil
}
