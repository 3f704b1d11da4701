package graph

import (
	"context"
	"sort"
	"time"

	"github.com/vk/gridloop/internal/config"
	"github.com/vk/gridloop/internal/ctxlog"
	"github.com/vk/gridloop/internal/expr"
	"github.com/vk/gridloop/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Node is one executable node of the built graph: a handler instance with
// its frozen configuration and its frozen parameter contract. Immutable for
// the duration of a run, and therefore safe for concurrent read.
type Node struct {
	Name     string
	Type     string
	Config   map[string]cty.Value
	Contract config.Contract
	Handler  registry.Handler

	// In and Out hold every connection touching this node, including
	// feedback edges.
	In  []*config.Connection
	Out []*config.Connection
}

// Group is a contracted cycle group: one strongly-connected component whose
// cycles are entirely closed by marked feedback edges. It is scheduled as a
// single unit and iterated by the cycle controller.
type Group struct {
	ID      string
	Members []*Node // interior topological order, feedback edges removed

	// Terminal is the node whose outputs feed the convergence decision
	// and whose feedback edges carry values into the next iteration.
	Terminal *Node

	// BackEdges are the marked connections interior to the group.
	BackEdges []*config.Connection

	MaxIterations int
	Timeout       time.Duration
	MinIterations int
	Check         *expr.Check
	CallbackName  string

	memberSet map[string]*Node
}

// Contains reports whether the named node is a member of the group.
func (g *Group) Contains(name string) bool {
	_, ok := g.memberSet[name]
	return ok
}

// Unit is one schedulable vertex of the condensed DAG: either a single node
// or a contracted cycle group.
type Unit struct {
	ID    string
	Node  *Node  // set for plain nodes
	Group *Group // set for contracted cycle groups

	Deps       []*Unit
	Dependents []*Unit
}

// Graph is the validated, condensed form of a workflow, ready to schedule.
type Graph struct {
	Nodes map[string]*Node
	Units map[string]*Unit

	// unitOf maps every node name to its owning unit.
	unitOf map[string]*Unit
}

// UnitFor returns the schedulable unit that owns the named node.
func (g *Graph) UnitFor(nodeName string) (*Unit, bool) {
	u, ok := g.unitOf[nodeName]
	return u, ok
}

// Build constructs and validates the executable graph from a loaded model.
// All structural rules are enforced here, never at run time: unknown node
// references, illegal unmarked cycles, feedback edges without safety limits,
// ambiguous convergence configuration, and malformed convergence expressions.
func Build(ctx context.Context, model *config.Model, reg *registry.Registry) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)

	g := &Graph{
		Nodes:  make(map[string]*Node, len(model.Nodes)),
		Units:  make(map[string]*Unit),
		unitOf: make(map[string]*Unit),
	}

	for _, n := range model.Nodes {
		if _, ok := g.Nodes[n.Name]; ok {
			return nil, structuralf([]string{n.Name}, "duplicate node instance name %q", n.Name)
		}
		handler, ok := reg.Handler(n.Type)
		if !ok {
			return nil, structuralf([]string{n.Name}, "handler type %q is not registered", n.Type)
		}
		g.Nodes[n.Name] = &Node{
			Name:     n.Name,
			Type:     n.Type,
			Config:   n.Config,
			Contract: handler.DeclareParams(),
			Handler:  handler,
		}
	}

	for _, conn := range model.Connections {
		src, ok := g.Nodes[conn.Source]
		if !ok {
			return nil, structuralf(nil, "connection references unknown source node %q", conn.Source)
		}
		dst, ok := g.Nodes[conn.Target]
		if !ok {
			return nil, structuralf(nil, "connection references unknown target node %q", conn.Target)
		}
		src.Out = append(src.Out, conn)
		dst.In = append(dst.In, conn)
	}

	components := stronglyConnected(g)

	groups := make([]*Group, 0)
	grouped := make(map[string]*Group)
	for _, comp := range components {
		if len(comp) == 1 && !hasSelfEdge(g.Nodes[comp[0]]) {
			continue
		}
		group, err := buildGroup(ctx, g, comp, reg)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
		for name := range group.memberSet {
			grouped[name] = group
		}
	}

	// A feedback edge that does not actually close a cycle is a
	// configuration bug, not something to silently ignore.
	for _, conn := range model.Connections {
		if !conn.IsMarked() {
			continue
		}
		group, ok := grouped[conn.Source]
		if !ok || !group.Contains(conn.Target) {
			return nil, structuralf([]string{conn.Source, conn.Target},
				"connection is marked cycle=true but does not close a cycle")
		}
	}

	if err := condense(g, groups, grouped); err != nil {
		return nil, err
	}

	logger.Debug("Graph built.", "nodes", len(g.Nodes), "units", len(g.Units), "cycle_groups", len(groups))
	return g, nil
}

// condense builds the unit layer: one unit per free-standing node, one unit
// per cycle group, with deduplicated dependency edges between units.
func condense(g *Graph, groups []*Group, grouped map[string]*Group) error {
	for _, name := range sortedNodeNames(g) {
		if _, ok := grouped[name]; ok {
			continue
		}
		node := g.Nodes[name]
		unit := &Unit{ID: name, Node: node}
		g.Units[name] = unit
		g.unitOf[name] = unit
	}
	for _, group := range groups {
		if _, ok := g.Units[group.ID]; ok {
			return structuralf(nil, "cycle group id %q collides with an existing unit", group.ID)
		}
		unit := &Unit{ID: group.ID, Group: group}
		g.Units[group.ID] = unit
		for name := range group.memberSet {
			g.unitOf[name] = unit
		}
	}

	type unitEdge struct{ from, to string }
	seen := make(map[unitEdge]struct{})
	for _, name := range sortedNodeNames(g) {
		node := g.Nodes[name]
		for _, conn := range node.Out {
			fromUnit := g.unitOf[conn.Source]
			toUnit := g.unitOf[conn.Target]
			if fromUnit == toUnit {
				continue // interior edge of a group
			}
			key := unitEdge{fromUnit.ID, toUnit.ID}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			toUnit.Deps = append(toUnit.Deps, fromUnit)
			fromUnit.Dependents = append(fromUnit.Dependents, toUnit)
		}
	}
	return nil
}

func hasSelfEdge(n *Node) bool {
	for _, conn := range n.Out {
		if conn.Target == n.Name {
			return true
		}
	}
	return false
}

func sortedNodeNames(g *Graph) []string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TopoUnits returns the units of the condensed graph in a deterministic
// topological order. The condensation of a validated graph is always
// acyclic, so this cannot fail after Build succeeds.
func (g *Graph) TopoUnits() []*Unit {
	indegree := make(map[string]int, len(g.Units))
	for id, unit := range g.Units {
		indegree[id] = len(unit.Deps)
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	ordered := make([]*Unit, 0, len(g.Units))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		unit := g.Units[id]
		ordered = append(ordered, unit)

		var unlocked []string
		for _, dep := range unit.Dependents {
			indegree[dep.ID]--
			if indegree[dep.ID] == 0 {
				unlocked = append(unlocked, dep.ID)
			}
		}
		sort.Strings(unlocked)
		ready = append(ready, unlocked...)
	}
	return ordered
}
