// Package dag holds column-level dependency graphs. It backs per-statement
// edge pruning and cross-run lineage traces, and tolerates the cycles a
// confused parser can produce.
package dag

import (
	"errors"
	"slices"
)

// ErrSelfLoop is returned when an edge would connect a column to itself.
var ErrSelfLoop = errors.New("dag: self loop")

// Graph is a directed graph of column ids where an edge points from a
// source column to the column derived from it. Adjacency lists keep
// insertion order so traversals are deterministic.
type Graph struct {
	targets map[string][]string
	sources map[string][]string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		targets: make(map[string][]string),
		sources: make(map[string][]string),
	}
}

// Link records that target derives from source, adding both nodes.
// Duplicate links are ignored.
func (g *Graph) Link(source, target string) error {
	if source == target {
		return ErrSelfLoop
	}
	g.Add(source)
	g.Add(target)
	if !slices.Contains(g.targets[source], target) {
		g.targets[source] = append(g.targets[source], target)
		g.sources[target] = append(g.sources[target], source)
	}
	return nil
}

// Add inserts an isolated node. Existing nodes are left untouched.
func (g *Graph) Add(id string) {
	if _, ok := g.targets[id]; !ok {
		g.targets[id] = nil
		g.sources[id] = nil
	}
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.targets[id]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.targets) }

// Sources returns the columns id derives from directly.
func (g *Graph) Sources(id string) []string { return g.sources[id] }

// Targets returns the columns derived directly from id.
func (g *Graph) Targets(id string) []string { return g.targets[id] }

// HasIndirectPath reports whether target is reachable from source through at
// least one intermediate node. The direct hop source->target is ignored.
func (g *Graph) HasIndirectPath(source, target string) bool {
	seen := map[string]bool{source: true}
	var queue []string
	for _, next := range g.targets[source] {
		if next != target {
			seen[next] = true
			queue = append(queue, next)
		}
	}
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, next := range g.targets[curr] {
			if next == target {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// Hop is one edge crossed by Walk, in walk direction.
type Hop struct {
	From  string
	To    string
	Depth int
}

// Walk crosses edges breadth-first from start, towards sources when upstream
// is true and towards targets otherwise. Every edge leaving an expanded node
// is reported and each node is expanded at most once. A depth of zero or
// less is unlimited.
func (g *Graph) Walk(start string, upstream bool, depth int) []Hop {
	adj := g.targets
	if upstream {
		adj = g.sources
	}

	var hops []Hop
	seen := map[string]bool{start: true}
	frontier := []string{start}
	for level := 1; len(frontier) > 0 && (depth <= 0 || level <= depth); level++ {
		var next []string
		for _, id := range frontier {
			for _, nb := range adj[id] {
				hops = append(hops, Hop{From: id, To: nb, Depth: level})
				if !seen[nb] {
					seen[nb] = true
					next = append(next, nb)
				}
			}
		}
		frontier = next
	}
	return hops
}
