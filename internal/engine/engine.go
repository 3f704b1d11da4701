// Package engine ties graph, scheduler, and state store into a run: one
// invocation of a built workflow with caller-supplied runtime parameter
// overrides.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/graph"
	"github.com/vk/gridloop/internal/registry"
	"github.com/vk/gridloop/internal/scheduler"
	"github.com/vk/gridloop/internal/state"
	"github.com/zclconf/go-cty/cty"
)

// RunStatus is the overall disposition of one run.
type RunStatus string

const (
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

// NodeResult is one node's contribution to a finished run.
type NodeResult = scheduler.Result

// Overrides are run-level runtime parameter values, keyed by node name then
// parameter name. They take precedence over both frozen config and
// connection-delivered values, subject to each node's contract.
type Overrides = map[string]map[string]cty.Value

// Run is the outcome of one Execute call. Non-converged cycles surface
// through per-node CycleStatus; they do not fail the run.
type Run struct {
	ID      string
	Status  RunStatus
	Results map[string]*NodeResult
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore selects the carried-state backend. Defaults to an in-memory
// store per engine.
func WithStore(s state.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithWorkers bounds the scheduler's worker pool.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithRunTimeout bounds a whole run's wall-clock time, independent of any
// per-cycle timeout.
func WithRunTimeout(d time.Duration) Option {
	return func(e *Engine) { e.runTimeout = d }
}

// WithKeepState disables the end-of-run state discard, leaving carried state
// in the store for postmortem inspection.
func WithKeepState() Option {
	return func(e *Engine) { e.keepState = true }
}

// Engine executes built workflow graphs. Safe for concurrent use; each run
// gets its own scheduler and its own state namespace.
type Engine struct {
	reg        *registry.Registry
	store      state.Store
	workers    int
	runTimeout time.Duration
	keepState  bool
}

// New creates an engine backed by the given registry.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		reg:     reg,
		store:   state.NewMemoryStore(),
		workers: 4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the graph once. Structural problems were already rejected at
// build time; what can still fail here is node logic, contract-required
// parameters missing after merge, and convergence expressions whose errors
// are only detectable on evaluation. Exhausted and timed-out cycles are not
// failures.
func (e *Engine) Execute(ctx context.Context, g *graph.Graph, overrides Overrides) (*Run, error) {
	runID := uuid.NewString()
	logger := ctxlog.FromContext(ctx).With("run_id", runID)
	ctx = ctxlog.WithLogger(ctx, logger)

	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	if !e.keepState {
		defer func() {
			// Carried state lives for the run and is discarded afterwards.
			if err := e.store.Discard(context.WithoutCancel(ctx), runID); err != nil {
				logger.Warn("Failed to discard run state.", "error", err)
			}
		}()
	}

	logger.Info("Run starting.", "units", len(g.Units), "workers", e.workers)
	started := time.Now()

	sched := scheduler.New(g, e.reg, e.store, e.workers)
	results, err := sched.Run(ctx, runID, overrides)

	run := &Run{ID: runID, Results: results}
	switch {
	case err != nil:
		run.Status = RunFailed
		logger.Error("Run failed.", "duration", time.Since(started), "error", err)
		return run, err
	case sched.Cancelled():
		// Cooperative cancellation is a status, never an error. The
		// scheduler's observation is authoritative: a run whose every unit
		// completed is a success even if the context expired on the way out.
		run.Status = RunCancelled
		logger.Info("Run cancelled.", "duration", time.Since(started))
		return run, nil
	default:
		run.Status = RunSucceeded
		logger.Info("Run finished.", "duration", time.Since(started))
		return run, nil
	}
}

// IsCancellation reports whether an error chain is only a cancellation
// artifact rather than a true failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
