// Package scheduler executes the condensed workflow DAG. Linear units run
// directly in dependency order; contracted cycle groups are delegated
// synchronously to the cycle controller, and a group's terminal-iteration
// outputs feed downstream consumers like any other node output. Units with
// no data dependency on each other run concurrently on a bounded worker
// pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/cycle"
	"github.com/vk/gridloop/internal/graph"
	"github.com/vk/gridloop/internal/params"
	"github.com/vk/gridloop/internal/registry"
	"github.com/vk/gridloop/internal/state"
	"github.com/zclconf/go-cty/cty"
)

// NodeExecutionError wraps a failure inside a node's own logic. Routing to
// fallback paths is the caller's concern; the engine just propagates it as a
// run failure.
type NodeExecutionError struct {
	Node string
	Err  error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %q execution failed: %v", e.Node, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// Result is one node's contribution to the run: its last outputs, carried
// state, and, for cycle members, the group's terminal status.
type Result struct {
	NodeID      string
	Iteration   int
	Outputs     map[string]cty.Value
	State       cty.Value
	CycleID     string
	CycleStatus cycle.Status
}

// unit states, stored in an atomic for cross-worker visibility.
const (
	statePending int32 = iota
	stateRunning
	stateDone
	stateFailed
)

// runUnit is the mutable per-run wrapper around an immutable graph unit.
type runUnit struct {
	unit       *graph.Unit
	deps       []*runUnit
	dependents []*runUnit

	depCount atomic.Int32
	state    atomic.Int32
	err      error
	skipOnce sync.Once
}

// Scheduler walks one condensed graph. A Scheduler instance serves a single
// run; the graph itself is immutable and shared.
type Scheduler struct {
	graph   *graph.Graph
	reg     *registry.Registry
	store   state.Store
	workers int

	wg sync.WaitGroup

	// cancelled is set after the run completes if any unit was dropped
	// because the run context ended. Written and read single-threaded.
	cancelled bool

	mu      sync.Mutex
	outputs map[string]map[string]cty.Value
	results map[string]*Result
}

// New creates a scheduler for one run of the given graph.
func New(g *graph.Graph, reg *registry.Registry, store state.Store, workers int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		graph:   g,
		reg:     reg,
		store:   store,
		workers: workers,
		outputs: make(map[string]map[string]cty.Value),
		results: make(map[string]*Result),
	}
}

// Run executes the whole condensed graph and returns per-node results. It
// respects the cancellation signal from the provided context: in-flight
// units finish, pending ones are skipped, and cancellation itself is not an
// error.
func (s *Scheduler) Run(ctx context.Context, runID string, overrides map[string]map[string]cty.Value) (map[string]*Result, error) {
	logger := ctxlog.FromContext(ctx)

	units := make(map[string]*runUnit, len(s.graph.Units))
	for id, u := range s.graph.Units {
		ru := &runUnit{unit: u}
		ru.depCount.Store(int32(len(u.Deps)))
		units[id] = ru
	}
	for id, ru := range units {
		for _, dep := range ru.unit.Deps {
			ru.deps = append(ru.deps, units[dep.ID])
		}
		for _, dependent := range ru.unit.Dependents {
			units[id].dependents = append(units[id].dependents, units[dependent.ID])
		}
	}

	readyChan := make(chan *runUnit, len(units))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rootCount := 0
	for _, ru := range units {
		if ru.depCount.Load() == 0 {
			readyChan <- ru
			rootCount++
		}
	}
	logger.Debug("Scheduler initialized.", "units", len(units), "roots", rootCount, "workers", s.workers)

	s.wg.Add(len(units))
	for i := 0; i < s.workers; i++ {
		go s.worker(runCtx, runID, readyChan, cancel, overrides, i)
	}

	s.wg.Wait()
	close(readyChan)

	var failed []string
	var rootCause error
	for _, ru := range units {
		if ru.state.Load() != stateFailed || ru.err == nil {
			continue
		}
		if errors.Is(ru.err, context.Canceled) || errors.Is(ru.err, context.DeadlineExceeded) {
			// A symptom of the run ending, not a cause.
			s.cancelled = true
			continue
		}
		if strings.HasPrefix(ru.err.Error(), "skipped") {
			continue
		}
		failed = append(failed, ru.unit.ID)
		if rootCause == nil {
			rootCause = ru.err
		}
	}

	if rootCause != nil {
		return s.snapshotResults(), fmt.Errorf("execution failed for %s: %w", strings.Join(failed, ", "), rootCause)
	}
	return s.snapshotResults(), nil
}

// Cancelled reports whether the finished run dropped any unit because the
// run context ended. Valid only after Run returns.
func (s *Scheduler) Cancelled() bool {
	return s.cancelled
}

// worker is the core processing loop for a single concurrent worker.
func (s *Scheduler) worker(ctx context.Context, runID string, readyChan chan *runUnit, cancel context.CancelFunc, overrides map[string]map[string]cty.Value, workerID int) {
	logger := ctxlog.FromContext(ctx)

	for ru := range readyChan {
		unitLogger := logger.With("worker", workerID, "unit", ru.unit.ID)

		if ctx.Err() != nil {
			ru.skipOnce.Do(func() {
				unitLogger.Warn("Context canceled, skipping unit execution.")
				ru.state.Store(stateFailed)
				ru.err = ctx.Err()
				s.wg.Done()
			})
			// Dependents still hold their dep counts; release them the
			// same way a failed unit does, or wg.Wait never returns.
			s.skipDependents(ctx, ru)
			continue
		}

		ru.state.Store(stateRunning)
		var err error
		if ru.unit.Group != nil {
			err = s.executeGroup(ctx, runID, ru.unit.Group, overrides)
		} else {
			err = s.executeNode(ctx, runID, ru.unit.Node, overrides)
		}

		if err != nil {
			unitLogger.Error("Unit execution failed.", "error", err)
			ru.state.Store(stateFailed)
			ru.err = err
			cancel()
			s.skipDependents(ctx, ru)
			s.wg.Done()
			continue
		}

		ru.state.Store(stateDone)
		for _, dependent := range ru.dependents {
			if dependent.depCount.Add(-1) == 0 {
				readyChan <- dependent
			}
		}
		s.wg.Done()
	}
}

// skipDependents recursively marks all downstream units as failed.
func (s *Scheduler) skipDependents(ctx context.Context, ru *runUnit) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range ru.dependents {
		dependent.skipOnce.Do(func() {
			logger.Warn("Skipping dependent unit due to upstream failure.",
				"unit", dependent.unit.ID, "dependency", ru.unit.ID)
			dependent.state.Store(stateFailed)
			dependent.err = fmt.Errorf("skipped due to upstream failure of '%s'", ru.unit.ID)
			s.wg.Done()
			s.skipDependents(ctx, dependent)
		})
	}
}

// executeNode runs a single free-standing node once.
func (s *Scheduler) executeNode(ctx context.Context, runID string, node *graph.Node, overrides map[string]map[string]cty.Value) error {
	logger := ctxlog.FromContext(ctx).With("node_id", node.Name)

	connected := s.connectedValues(node)
	inputs, err := params.Resolve(ctx, node, params.Sources{
		Config:    node.Config,
		Connected: connected,
		Overrides: overrides[node.Name],
	})
	if err != nil {
		return err
	}

	key := state.Key{RunID: runID, NodeID: node.Name}
	snapshot, err := s.store.Snapshot(ctx, key)
	if err != nil {
		return err
	}

	started := time.Now()
	result, err := node.Handler.Run(ctx, &registry.Call{
		RunID:     runID,
		Iteration: 0,
		Inputs:    inputs,
		State:     snapshot,
	})
	if err != nil {
		return &NodeExecutionError{Node: node.Name, Err: err}
	}
	if result == nil {
		result = &registry.Result{}
	}

	carried := snapshot
	if result.State != cty.NilVal && !result.State.IsNull() {
		carried = result.State
		if err := s.store.Save(ctx, key, 0, carried); err != nil {
			return err
		}
	}

	s.recordResult(node.Name, &Result{
		NodeID:    node.Name,
		Iteration: 0,
		Outputs:   result.Outputs,
		State:     carried,
	}, result.Outputs)

	logger.Debug("Node executed.", "duration", time.Since(started))
	return nil
}

// executeGroup delegates a contracted cycle group to the cycle controller
// and republishes every member's terminal outputs for downstream consumers.
func (s *Scheduler) executeGroup(ctx context.Context, runID string, group *graph.Group, overrides map[string]map[string]cty.Value) error {
	logger := ctxlog.FromContext(ctx).With("cycle_id", group.ID)

	upstream := make(map[string]map[string]cty.Value, len(group.Members))
	for _, member := range group.Members {
		seed := make(map[string]cty.Value)
		for _, conn := range member.In {
			if group.Contains(conn.Source) {
				continue
			}
			for name, val := range params.ApplyConnection(conn, s.outputsOf(conn.Source)) {
				seed[name] = val
			}
		}
		if len(seed) > 0 {
			upstream[member.Name] = seed
		}
	}

	controller := cycle.NewController(group, s.reg, s.store)
	outcome, err := controller.Run(ctx, runID, upstream, overrides)
	if err != nil {
		return err
	}

	for name, nodeOutcome := range outcome.Nodes {
		s.recordResult(name, &Result{
			NodeID:      name,
			Iteration:   nodeOutcome.Iteration,
			Outputs:     nodeOutcome.Outputs,
			State:       nodeOutcome.State,
			CycleID:     group.ID,
			CycleStatus: outcome.Status,
		}, nodeOutcome.Outputs)
	}

	logger.Info("Cycle group finished.", "status", outcome.Status, "iterations", outcome.Iterations)

	if outcome.Status == cycle.StatusCancelled {
		return ctx.Err()
	}
	return nil
}

// connectedValues assembles the connection-delivered layer for a
// free-standing node. Every dependency has completed before this unit was
// unlocked, so the outputs map already holds all sources.
func (s *Scheduler) connectedValues(node *graph.Node) map[string]cty.Value {
	connected := make(map[string]cty.Value)
	for _, conn := range node.In {
		for name, val := range params.ApplyConnection(conn, s.outputsOf(conn.Source)) {
			connected[name] = val
		}
	}
	return connected
}

func (s *Scheduler) outputsOf(nodeName string) map[string]cty.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs[nodeName]
}

func (s *Scheduler) recordResult(nodeName string, res *Result, outputs map[string]cty.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[nodeName] = res
	s.outputs[nodeName] = outputs
}

func (s *Scheduler) snapshotResults() map[string]*Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Result, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}
