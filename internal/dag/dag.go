// Package dag provides directed acyclic graph operations for table load
// dependencies: cycle detection with full-path reporting, deterministic
// topological sorting, and level grouping for parallel scheduling.
package dag

import "fmt"

// Graph is a directed graph whose nodes keep their insertion order.
// An edge from A to B means A must complete before B may start.
type Graph struct {
	order    []string
	nodes    map[string]struct{}
	children map[string][]string // node -> nodes that depend on it
	parents  map[string][]string // node -> nodes it depends on
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]struct{}),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddNode adds a node. Re-adding an existing node is a no-op so that the
// first insertion fixes the node's position in the declaration order.
func (g *Graph) AddNode(id string) {
	if _, exists := g.nodes[id]; exists {
		return
	}
	g.nodes[id] = struct{}{}
	g.order = append(g.order, id)
	g.children[id] = nil
	g.parents[id] = nil
}

// AddEdge records that `before` must complete before `after` starts.
func (g *Graph) AddEdge(before, after string) error {
	if _, exists := g.nodes[before]; !exists {
		return fmt.Errorf("node %q does not exist", before)
	}
	if _, exists := g.nodes[after]; !exists {
		return fmt.Errorf("node %q does not exist", after)
	}
	if before == after {
		return fmt.Errorf("self-loop detected: %s", before)
	}

	if !contains(g.children[before], after) {
		g.children[before] = append(g.children[before], after)
	}
	if !contains(g.parents[after], before) {
		g.parents[after] = append(g.parents[after], before)
	}
	return nil
}

// Parents returns the dependencies of a node.
func (g *Graph) Parents(id string) []string {
	return g.parents[id]
}

// Children returns the dependents of a node.
func (g *Graph) Children(id string) []string {
	return g.children[id]
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, c := range g.children {
		count += len(c)
	}
	return count
}

// FindCycle returns a cycle as a closed path (first and last element
// equal), or nil if the graph is acyclic. Nodes are visited in insertion
// order so the reported cycle is deterministic.
func (g *Graph) FindCycle() []string {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	cameFrom := make(map[string]string)

	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, child := range g.children[id] {
			if !visited[child] {
				cameFrom[child] = id
				if dfs(child) {
					return true
				}
			} else if recStack[child] {
				// Walk back from id to child to reconstruct the cycle.
				cycle = []string{child}
				for curr := id; curr != child; curr = cameFrom[curr] {
					cycle = append([]string{curr}, cycle...)
				}
				cycle = append([]string{child}, cycle...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, id := range g.order {
		if !visited[id] {
			if dfs(id) {
				return cycle
			}
		}
	}
	return nil
}

// TopoSort returns the nodes in topological order via repeated removal of
// zero-in-degree nodes. Ties are broken by insertion order, so the result
// is deterministic for a given construction sequence. Returns an error
// naming the cycle if the graph is cyclic.
func (g *Graph) TopoSort() ([]string, error) {
	if cycle := g.FindCycle(); cycle != nil {
		return nil, fmt.Errorf("cycle detected: %v", cycle)
	}

	indegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = len(g.parents[id])
	}

	done := make(map[string]bool, len(g.nodes))
	result := make([]string, 0, len(g.nodes))

	for len(result) < len(g.order) {
		for _, id := range g.order {
			if !done[id] && indegree[id] == 0 {
				done[id] = true
				result = append(result, id)
				for _, child := range g.children[id] {
					indegree[child]--
				}
			}
		}
	}

	return result, nil
}

// Levels groups nodes by dependency depth. Nodes at level N have no
// unfinished dependencies once every node at levels < N has completed,
// so one level's nodes may run in parallel. Within a level, nodes keep
// their insertion order.
func (g *Graph) Levels() ([][]string, error) {
	if cycle := g.FindCycle(); cycle != nil {
		return nil, fmt.Errorf("cycle detected: %v", cycle)
	}

	depth := make(map[string]int)

	var levelOf func(id string) int
	levelOf = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		d := 0
		for _, parent := range g.parents[id] {
			if pd := levelOf(parent) + 1; pd > d {
				d = pd
			}
		}
		depth[id] = d
		return d
	}

	maxDepth := 0
	for _, id := range g.order {
		if d := levelOf(id); d > maxDepth {
			maxDepth = d
		}
	}

	levels := make([][]string, maxDepth+1)
	for _, id := range g.order {
		levels[depth[id]] = append(levels[depth[id]], id)
	}
	return levels, nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
