package graph

import (
	"context"
	"sort"
	"strings"

	"github.com/vk/gridloop/internal/config"
	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/expr"
	"github.com/vk/gridloop/internal/registry"
)

// buildGroup validates one strongly-connected component and contracts it
// into a cycle group. The component is legal only if the cycles in it are
// entirely explained by marked feedback edges: removing those edges must
// leave an acyclic interior.
func buildGroup(ctx context.Context, g *Graph, members []string, reg *registry.Registry) (*Group, error) {
	logger := ctxlog.FromContext(ctx)

	memberSet := make(map[string]*Node, len(members))
	for _, name := range members {
		memberSet[name] = g.Nodes[name]
	}

	var backEdges []*config.Connection
	for _, name := range members {
		for _, conn := range g.Nodes[name].Out {
			if _, interior := memberSet[conn.Target]; !interior {
				continue
			}
			if conn.IsMarked() {
				backEdges = append(backEdges, conn)
			}
		}
	}

	if len(backEdges) == 0 {
		return nil, structuralf(members, "illegal unmarked cycle; feedback edges must set cycle=true")
	}

	group := &Group{
		BackEdges: backEdges,
		memberSet: memberSet,
	}
	if err := mergeCycleSettings(g, group, members); err != nil {
		return nil, err
	}

	merged := &config.CycleSpec{MaxIterations: group.MaxIterations, Timeout: group.Timeout}
	if !merged.HasSafetyLimit() {
		return nil, structuralf(members,
			"cycle group %q declares neither max_iterations nor timeout; unbounded cycles may not be constructed", group.ID)
	}

	if group.CallbackName != "" {
		if _, ok := reg.Callback(group.CallbackName); !ok {
			return nil, structuralf(members,
				"cycle group %q references unregistered convergence callback %q", group.ID, group.CallbackName)
		}
	}

	order, err := interiorOrder(g, members, memberSet)
	if err != nil {
		return nil, err
	}
	group.Members = order

	if group.Terminal == nil {
		// No feedback edge carries convergence settings; the terminal is
		// the last node of the interior order.
		group.Terminal = order[len(order)-1]
	}

	logger.Debug("Contracted cycle group.",
		"group", group.ID, "members", len(order), "terminal", group.Terminal.Name,
		"max_iterations", group.MaxIterations, "timeout", group.Timeout)
	return group, nil
}

// mergeCycleSettings folds the cycle metadata of every feedback edge into
// the group. Distinct non-zero values for the same setting are ambiguous and
// rejected; so is configuring both a convergence expression and a callback.
func mergeCycleSettings(g *Graph, group *Group, members []string) error {
	var checkSource string

	for _, conn := range group.BackEdges {
		spec := conn.Cycle

		if spec.ConvergenceCheck != "" && spec.ConvergenceCallback != "" {
			return structuralf(members,
				"connection %s -> %s configures both convergence_check and convergence_callback; precedence would be a guess",
				conn.Source, conn.Target)
		}

		if spec.ID != "" {
			if group.ID != "" && group.ID != spec.ID {
				return structuralf(members, "conflicting cycle ids %q and %q in one cycle group", group.ID, spec.ID)
			}
			group.ID = spec.ID
		}
		if spec.MaxIterations > 0 {
			if group.MaxIterations > 0 && group.MaxIterations != spec.MaxIterations {
				return structuralf(members, "conflicting max_iterations values in cycle group %q", group.ID)
			}
			group.MaxIterations = spec.MaxIterations
		}
		if spec.Timeout > 0 {
			if group.Timeout > 0 && group.Timeout != spec.Timeout {
				return structuralf(members, "conflicting timeout values in cycle group %q", group.ID)
			}
			group.Timeout = spec.Timeout
		}
		if spec.MinIterations > 0 {
			if group.MinIterations > 0 && group.MinIterations != spec.MinIterations {
				return structuralf(members, "conflicting min_iterations values in cycle group %q", group.ID)
			}
			group.MinIterations = spec.MinIterations
		}

		if spec.ConvergenceCheck != "" {
			if checkSource != "" && checkSource != spec.ConvergenceCheck {
				return structuralf(members, "conflicting convergence_check expressions in cycle group %q", group.ID)
			}
			checkSource = spec.ConvergenceCheck
			group.Terminal = g.Nodes[conn.Source]
		}
		if spec.ConvergenceCallback != "" {
			if group.CallbackName != "" && group.CallbackName != spec.ConvergenceCallback {
				return structuralf(members, "conflicting convergence_callback names in cycle group %q", group.ID)
			}
			group.CallbackName = spec.ConvergenceCallback
			group.Terminal = g.Nodes[conn.Source]
		}
	}

	if checkSource != "" && group.CallbackName != "" {
		return structuralf(members,
			"cycle group %q configures both convergence_check and convergence_callback; precedence would be a guess", group.ID)
	}

	if checkSource != "" {
		check, err := expr.Compile(checkSource)
		if err != nil {
			return err
		}
		group.Check = check
	}

	if group.ID == "" {
		group.ID = "cycle:" + strings.Join(members, "+")
	}
	return nil
}

// interiorOrder topologically orders a group's members over the interior
// edge set minus the feedback edges. A residual cycle means the component's
// membership is not fully explained by marked edges, which is the same
// illegal-unmarked-cycle condition one level down.
func interiorOrder(g *Graph, members []string, memberSet map[string]*Node) ([]*Node, error) {
	indegree := make(map[string]int, len(members))
	dependents := make(map[string][]string, len(members))
	for _, name := range members {
		indegree[name] = 0
	}
	for _, name := range members {
		for _, conn := range g.Nodes[name].Out {
			if conn.IsMarked() {
				continue
			}
			if _, interior := memberSet[conn.Target]; !interior {
				continue
			}
			indegree[conn.Target]++
			dependents[name] = append(dependents[name], conn.Target)
		}
	}

	var ready []string
	for _, name := range members {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]*Node, 0, len(members))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, memberSet[name])

		var unlocked []string
		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				unlocked = append(unlocked, dep)
			}
		}
		sort.Strings(unlocked)
		ready = append(ready, unlocked...)
	}

	if len(order) != len(members) {
		var stuck []string
		for name, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, structuralf(stuck,
			"illegal unmarked cycle remains inside the group after removing feedback edges")
	}
	return order, nil
}
