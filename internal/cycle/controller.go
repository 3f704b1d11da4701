// Package cycle drives repeated execution of one contracted cycle group
// until convergence, exhaustion, timeout, or cancellation.
//
// The controller is strictly sequential within a group: iteration N+1 never
// begins before iteration N's termination check completes, and the state
// store for the group is touched by exactly one execution path.
package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/graph"
	"github.com/vk/gridloop/internal/params"
	"github.com/vk/gridloop/internal/registry"
	"github.com/vk/gridloop/internal/state"
	"github.com/zclconf/go-cty/cty"
)

// NodeOutcome is one member node's last-iteration result.
type NodeOutcome struct {
	Outputs   map[string]cty.Value
	State     cty.Value
	Iteration int
}

// Outcome is the cycle group's terminal result: its status, how many
// iterations executed, and every member's last outputs. Non-converged
// outcomes still carry the best available results.
type Outcome struct {
	Status     Status
	Iterations int
	Nodes      map[string]*NodeOutcome
}

// Controller iterates one cycle group.
type Controller struct {
	group *graph.Group
	reg   *registry.Registry
	store state.Store
}

// NewController creates a controller for the given group.
func NewController(group *graph.Group, reg *registry.Registry, store state.Store) *Controller {
	return &Controller{group: group, reg: reg, store: store}
}

// Run executes the group until a terminal status is reached.
//
// upstream holds, per member node, the values delivered by connections from
// outside the group; they seed iteration 0 and remain visible on later
// iterations, with feedback values layered on top. overrides are the
// run-level runtime parameter overrides, keyed by node name.
func (c *Controller) Run(
	ctx context.Context,
	runID string,
	upstream map[string]map[string]cty.Value,
	overrides map[string]map[string]cty.Value,
) (*Outcome, error) {
	logger := ctxlog.FromContext(ctx).With("cycle_id", c.group.ID, "run_id", runID)
	logger.Debug("Cycle controller initializing.",
		"members", len(c.group.Members), "max_iterations", c.group.MaxIterations,
		"timeout", c.group.Timeout, "min_iterations", c.group.MinIterations)

	started := time.Now()
	outcome := &Outcome{Nodes: make(map[string]*NodeOutcome, len(c.group.Members))}

	// Outputs of the previous iteration, the source of feedback values.
	var prevOutputs map[string]map[string]cty.Value

	for iteration := 0; ; iteration++ {
		if ctx.Err() != nil {
			logger.Info("Cycle cancelled before iteration start.", "iteration", iteration)
			outcome.Status = StatusCancelled
			return outcome, nil
		}

		iterStart := time.Now()
		outputs, cancelled, err := c.runIteration(ctx, runID, iteration, upstream, prevOutputs, overrides, outcome)
		if err != nil {
			return nil, err
		}
		if cancelled {
			outcome.Status = StatusCancelled
			outcome.Iterations = iteration
			return outcome, nil
		}
		outcome.Iterations = iteration + 1

		converged, err := c.evaluateConvergence(ctx, iteration, outputs, runID)
		if err != nil {
			return nil, err
		}

		logger.Info("Cycle iteration complete.",
			"iteration", iteration,
			"node_id", c.group.Terminal.Name,
			"duration", time.Since(iterStart),
			"converged", converged)

		if converged {
			outcome.Status = StatusConverged
			return outcome, nil
		}
		if c.group.MaxIterations > 0 && iteration+1 >= c.group.MaxIterations {
			logger.Info("Cycle exhausted its iteration budget.", "iterations", iteration+1)
			outcome.Status = StatusExhausted
			return outcome, nil
		}
		if c.group.Timeout > 0 && time.Since(started) >= c.group.Timeout {
			logger.Info("Cycle exceeded its wall-clock budget.", "elapsed", time.Since(started))
			outcome.Status = StatusTimedOut
			return outcome, nil
		}

		prevOutputs = outputs
	}
}

// runIteration executes every member once in interior topological order and
// persists each node's carried state before the next node runs. It returns
// the iteration's outputs per node, or cancelled=true if the run-level
// signal was observed at a node boundary.
func (c *Controller) runIteration(
	ctx context.Context,
	runID string,
	iteration int,
	upstream map[string]map[string]cty.Value,
	prevOutputs map[string]map[string]cty.Value,
	overrides map[string]map[string]cty.Value,
	outcome *Outcome,
) (map[string]map[string]cty.Value, bool, error) {
	logger := ctxlog.FromContext(ctx).With("cycle_id", c.group.ID)

	outputs := make(map[string]map[string]cty.Value, len(c.group.Members))

	for _, node := range c.group.Members {
		if ctx.Err() != nil {
			logger.Info("Cycle cancelled at node boundary.", "iteration", iteration, "node_id", node.Name)
			return nil, true, nil
		}

		connected := c.assembleConnected(node, upstream[node.Name], outputs, prevOutputs, iteration)

		inputs, err := params.Resolve(ctx, node, params.Sources{
			Config:    node.Config,
			Connected: connected,
			Overrides: overrides[node.Name],
		})
		if err != nil {
			return nil, false, err
		}

		key := state.Key{RunID: runID, CycleID: c.group.ID, NodeID: node.Name}
		snapshot, err := c.store.Snapshot(ctx, key)
		if err != nil {
			return nil, false, err
		}

		nodeStart := time.Now()
		result, err := node.Handler.Run(ctx, &registry.Call{
			RunID:     runID,
			CycleID:   c.group.ID,
			Iteration: iteration,
			Inputs:    inputs,
			State:     snapshot,
		})
		if err != nil {
			return nil, false, fmt.Errorf("cycle %q iteration %d: node %q: %w", c.group.ID, iteration, node.Name, err)
		}
		if result == nil {
			result = &registry.Result{}
		}

		carried := snapshot
		if result.State != cty.NilVal && !result.State.IsNull() {
			carried = result.State
			if err := c.store.Save(ctx, key, iteration, carried); err != nil {
				return nil, false, err
			}
		}

		outputs[node.Name] = result.Outputs
		outcome.Nodes[node.Name] = &NodeOutcome{
			Outputs:   result.Outputs,
			State:     carried,
			Iteration: iteration,
		}

		logger.Debug("Cycle node executed.",
			"iteration", iteration, "node_id", node.Name, "duration", time.Since(nodeStart))
	}

	return outputs, false, nil
}

// assembleConnected layers the connection-delivered values for one member:
// upstream seed values first, then feedback fields from the previous
// iteration, then values produced inside the current iteration.
func (c *Controller) assembleConnected(
	node *graph.Node,
	seed map[string]cty.Value,
	current map[string]map[string]cty.Value,
	prev map[string]map[string]cty.Value,
	iteration int,
) map[string]cty.Value {
	connected := make(map[string]cty.Value, len(seed))
	for name, val := range seed {
		connected[name] = val
	}

	if iteration > 0 && prev != nil {
		for _, conn := range node.In {
			if !conn.IsMarked() || !c.group.Contains(conn.Source) {
				continue
			}
			for name, val := range params.ApplyConnection(conn, prev[conn.Source]) {
				connected[name] = val
			}
		}
	}

	for _, conn := range node.In {
		if conn.IsMarked() || !c.group.Contains(conn.Source) {
			continue
		}
		produced, ok := current[conn.Source]
		if !ok {
			continue
		}
		for name, val := range params.ApplyConnection(conn, produced) {
			connected[name] = val
		}
	}

	return connected
}

// evaluateConvergence applies the group's termination condition for the
// iteration that just completed. The minimum-iteration threshold suppresses
// both the expression and the callback until it elapses.
func (c *Controller) evaluateConvergence(
	ctx context.Context,
	iteration int,
	outputs map[string]map[string]cty.Value,
	runID string,
) (bool, error) {
	if c.group.MinIterations > 0 && iteration+1 < c.group.MinIterations {
		return false, nil
	}

	terminalOutputs := outputs[c.group.Terminal.Name]

	if c.group.Check != nil {
		return c.group.Check.Eval(terminalOutputs, iteration)
	}

	if c.group.CallbackName != "" {
		fn, ok := c.reg.Callback(c.group.CallbackName)
		if !ok {
			// Validated at build time; losing it now is a programming error.
			return false, fmt.Errorf("cycle %q: convergence callback %q vanished from registry", c.group.ID, c.group.CallbackName)
		}
		snapshot, err := c.store.Snapshot(ctx, state.Key{
			RunID:   runID,
			CycleID: c.group.ID,
			NodeID:  c.group.Terminal.Name,
		})
		if err != nil {
			return false, err
		}
		return fn(terminalOutputs, iteration, snapshot)
	}

	// Neither configured: the group always runs its full budget.
	return false, nil
}
