package graph

import (
	"sort"
)

// stronglyConnected computes the strongly-connected components of the full
// edge set using Tarjan's algorithm. Components are returned with sorted
// member lists, in a deterministic order.
func stronglyConnected(g *Graph) [][]string {
	names := sortedNodeNames(g)

	adjacency := make(map[string][]string, len(names))
	for _, name := range names {
		node := g.Nodes[name]
		// Self-edges participate too; a marked self-loop is the smallest
		// possible cycle group.
		targets := make(map[string]struct{})
		for _, conn := range node.Out {
			targets[conn.Target] = struct{}{}
		}
		sorted := make([]string, 0, len(targets))
		for t := range targets {
			sorted = append(sorted, t)
		}
		sort.Strings(sorted)
		adjacency[name] = sorted
	}

	index := make(map[string]int, len(names))
	lowlink := make(map[string]int, len(names))
	onStack := make(map[string]bool, len(names))
	var stack []string
	counter := 0

	var components [][]string

	var strongConnect func(v string)
	strongConnect = func(v string) {
		index[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adjacency[v] {
			if _, visited := index[w]; !visited {
				strongConnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
		}

		if lowlink[v] == index[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sort.Strings(comp)
			components = append(components, comp)
		}
	}

	for _, name := range names {
		if _, visited := index[name]; !visited {
			strongConnect(name)
		}
	}

	return components
}
