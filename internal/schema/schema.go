// Package schema declares the HCL block structures for workflow files. These
// types exist only for decoding; the HCL loader translates them into the
// format-agnostic config model.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// NodeConfig represents the content of the 'config' block within a node.
// Attribute values are frozen build-time parameters for the node instance.
type NodeConfig struct {
	Body hcl.Body `hcl:",remain"`
}

// Node represents a `node` block from a workflow file. It is a runnable
// instance of a registered handler type.
type Node struct {
	HandlerType string      `hcl:"handler_type,label"`
	Name        string      `hcl:"instance_name,label"`
	Config      *NodeConfig `hcl:"config,block"`
}

// Cycle represents the `cycle` block on a connection, marking it as an
// explicit feedback edge and carrying termination settings.
type Cycle struct {
	ID                  string `hcl:"id,optional"`
	MaxIterations       *int   `hcl:"max_iterations,optional"`
	Timeout             string `hcl:"timeout,optional"`
	MinIterations       *int   `hcl:"min_iterations,optional"`
	ConvergenceCheck    string `hcl:"convergence_check,optional"`
	ConvergenceCallback string `hcl:"convergence_callback,optional"`
}

// Connection represents a `connection` block: a directed data edge from the
// source node's outputs to the target node's parameters.
type Connection struct {
	Source string            `hcl:"source,label"`
	Target string            `hcl:"target,label"`
	Fields map[string]string `hcl:"fields,optional"`
	Cycle  *Cycle            `hcl:"cycle,block"`
}

// Workflow represents the top-level structure of a workflow file.
type Workflow struct {
	Nodes       []*Node       `hcl:"node,block"`
	Connections []*Connection `hcl:"connection,block"`
	Body        hcl.Body      `hcl:",remain"`
}
