package registry

import (
	"context"

	"github.com/vk/gridloop/internal/config"
	"github.com/zclconf/go-cty/cty"
)

// Handler is the two-method contract implemented by every node executable.
// DeclareParams is consulted once at graph build time and frozen; Run may be
// invoked many times (once per cycle iteration) and must not keep implicit
// instance state. Carried state flows through Call.State and Result.State.
type Handler interface {
	// DeclareParams returns the authoritative set of parameters this
	// handler accepts. Anything not declared here is dropped before Run
	// is ever called.
	DeclareParams() config.Contract

	// Run executes the node once with fully resolved inputs.
	Run(ctx context.Context, call *Call) (*Result, error)
}

// Call carries one node invocation's resolved inputs plus its execution
// context: run id, cycle id, iteration index, and the read-only carried-state
// snapshot. On iteration 0 State is an empty object, never a null value.
type Call struct {
	RunID     string
	CycleID   string
	Iteration int
	Inputs    map[string]cty.Value
	State     cty.Value
}

// Result is what a node invocation produced: its output field values and the
// updated carried state. A nil or unset State leaves the stored state
// untouched.
type Result struct {
	Outputs map[string]cty.Value
	State   cty.Value
}

// ConvergenceFunc is a registered convergence callback. It receives the
// terminal node's outputs for the iteration that just completed, the 0-based
// iteration index, and the accumulated carried state of the terminal node,
// and reports whether the cycle has converged.
type ConvergenceFunc func(results map[string]cty.Value, iteration int, state cty.Value) (bool, error)
