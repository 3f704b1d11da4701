package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/gridloop/internal/config"
	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Validate performs a strict parity check between a loaded workflow model
// and the registered Go collaborators. It verifies that every node's handler
// type is registered, that every referenced convergence callback exists, and
// that each handler's declared contract is internally consistent.
func (r *Registry) Validate(ctx context.Context, model *config.Model) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, node := range model.Nodes {
		handler, ok := r.Handlers[node.Type]
		if !ok {
			errs = append(errs, fmt.Sprintf("node %q: handler type %q is not registered", node.Name, node.Type))
			continue
		}

		contract := handler.DeclareParams()
		for name, spec := range contract {
			if spec == nil {
				errs = append(errs, fmt.Sprintf("handler %q: parameter %q has a nil spec", node.Type, name))
				continue
			}
			if spec.Default == nil {
				continue
			}
			if spec.Required {
				errs = append(errs, fmt.Sprintf("handler %q: parameter %q is required but declares a default", node.Type, name))
			}
			if spec.Type != cty.NilType && !spec.Type.HasDynamicTypes() {
				if _, err := convert.Convert(*spec.Default, spec.Type); err != nil {
					errs = append(errs, fmt.Sprintf("handler %q: parameter %q default does not match declared type %s: %v",
						node.Type, name, spec.Type.FriendlyName(), err))
				}
			}
		}

		// Frozen config keys outside the contract are legal but dead; the
		// resolver will drop them. Surface that early while it is cheap.
		for key := range node.Config {
			if _, declared := contract[key]; !declared {
				logger.Warn("Node config key is not in the handler's contract and will never be delivered.",
					"node", node.Name, "handler", node.Type, "key", key)
			}
		}
	}

	for _, conn := range model.Connections {
		if conn.Cycle == nil || conn.Cycle.ConvergenceCallback == "" {
			continue
		}
		if _, ok := r.Callbacks[conn.Cycle.ConvergenceCallback]; !ok {
			errs = append(errs, fmt.Sprintf("connection %s -> %s: convergence callback %q is not registered",
				conn.Source, conn.Target, conn.Cycle.ConvergenceCallback))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
