package config

import (
	"time"

	"github.com/zclconf/go-cty/cty"
)

// Model is the unified, format-agnostic representation of a workflow
// definition. It is produced once by a Loader and is immutable afterwards.
type Model struct {
	Nodes       []*Node
	Connections []*Connection
}

// Node is the format-agnostic representation of a `node` block. Type names a
// registered handler; Name is the unique instance id within the workflow.
// Config holds the frozen build-time parameter values for this instance.
type Node struct {
	Type   string
	Name   string
	Config map[string]cty.Value
}

// Connection is the format-agnostic representation of a `connection` block:
// a directed data edge from one node's outputs to another node's parameters.
//
// Fields maps source output names to target parameter names. An empty map
// means outputs are delivered to identically named parameters.
type Connection struct {
	Source string
	Target string
	Fields map[string]string
	Cycle  *CycleSpec
}

// CycleSpec marks a connection as an explicit feedback edge and carries the
// safety and termination settings for the cycle it closes. A marked edge must
// declare at least one of MaxIterations/Timeout, and at most one of
// ConvergenceCheck/ConvergenceCallback; both rules are enforced at build time.
type CycleSpec struct {
	ID                  string
	MaxIterations       int
	Timeout             time.Duration
	MinIterations       int
	ConvergenceCheck    string
	ConvergenceCallback string
}

// ParamSpec declares a single parameter a node accepts. Parameters not
// declared in a node's contract are dropped during injection.
type ParamSpec struct {
	Type        cty.Type
	Required    bool
	Default     *cty.Value
	Description string
}

// Contract is the authoritative set of parameters a node will accept,
// keyed by parameter name.
type Contract map[string]*ParamSpec

// IsMarked reports whether the connection is an explicit feedback edge.
func (c *Connection) IsMarked() bool {
	return c.Cycle != nil
}

// HasSafetyLimit reports whether a marked connection declares at least one
// bound on iteration. Unbounded cycles must never be constructible.
func (s *CycleSpec) HasSafetyLimit() bool {
	return s.MaxIterations > 0 || s.Timeout > 0
}
