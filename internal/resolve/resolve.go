// Package resolve reduces one statement's parser graph to direct column pairs.
//
// Resolution runs in two passes over the statement graph:
//
//  1. Transitive pruning drops a column edge s->t whenever t is also
//     reachable from s through an intermediate node.
//  2. Tracing follows columns owned by subqueries back through subqueries
//     and ephemeral tables to the real table columns they read, and adds
//     a shortcut pair from each real source to the final target.
//
// Tracing recursion carries its own copy of the visited set, so a node seen
// on one branch never blocks a sibling branch while cycles still terminate.
package resolve

import (
	"github.com/leapstack-labs/leaplineage/internal/dag"
	"github.com/leapstack-labs/leaplineage/internal/detect"
	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// Pair is a resolved source to target column link.
type Pair struct {
	Source string
	Target string
}

// Stats counts what resolution did to a statement graph.
type Stats struct {
	Edges     int
	Pruned    int
	Traced    int
	SelfLoops int
}

// Result is the outcome of resolving one statement graph.
type Result struct {
	Pairs []Pair
	// SubQueries holds the ids of subquery nodes, for normalization.
	SubQueries map[string]bool
	// Nodes indexes the graph nodes by id, for candidate lookups.
	Nodes map[string]core.GraphNode
	Stats Stats
}

// Resolve prunes and traces a statement graph. A nil or edgeless graph
// yields an empty result.
func Resolve(g *core.Graph, ephemeral detect.Set) Result {
	if g.Empty() {
		return Result{SubQueries: map[string]bool{}, Nodes: map[string]core.GraphNode{}}
	}

	r := &resolver{
		nodes:      g.NodeIndex(),
		subqueries: g.SubQueryIDs(),
		ephemeral:  ephemeral,
		adj:        dag.NewGraph(),
		memo:       make(map[string][]string),
	}
	edges := r.build(g)

	res := Result{SubQueries: r.subqueries, Nodes: r.nodes, Stats: r.stats}
	seen := make(map[Pair]bool)
	add := func(p Pair) bool {
		if seen[p] {
			return false
		}
		seen[p] = true
		res.Pairs = append(res.Pairs, p)
		return true
	}

	for _, e := range edges {
		if !r.isColumnEdge(e) {
			continue
		}
		if r.adj.HasIndirectPath(e.Source, e.Target) {
			res.Stats.Pruned++
			continue
		}
		add(Pair{Source: e.Source, Target: e.Target})

		if !r.subqueryOwned(e.Source) || r.subqueryOwned(e.Target) {
			continue
		}
		for _, src := range r.realSources(e.Source) {
			if add(Pair{Source: src, Target: e.Target}) {
				res.Stats.Traced++
			}
		}
	}
	return res
}

type resolver struct {
	nodes      map[string]core.GraphNode
	subqueries map[string]bool
	ephemeral  detect.Set
	adj        *dag.Graph
	memo       map[string][]string
	stats      Stats
}

// build loads nodes and edges into the adjacency graph and returns the
// usable edges in parser order. Unknown endpoints become implicit columns.
func (r *resolver) build(g *core.Graph) []core.GraphEdge {
	for _, n := range g.Nodes {
		r.adj.Add(n.ID)
	}

	edges := make([]core.GraphEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if e.Source == "" || e.Target == "" {
			continue
		}
		if e.Source == e.Target {
			r.stats.SelfLoops++
			continue
		}
		// Endpoints differ, so Link cannot fail.
		_ = r.adj.Link(e.Source, e.Target)
		edges = append(edges, e)
	}
	r.stats.Edges = len(edges)
	return edges
}

func (r *resolver) isColumnEdge(e core.GraphEdge) bool {
	return r.isColumn(e.Source) && r.isColumn(e.Target)
}

func (r *resolver) isColumn(id string) bool {
	if !core.IsQualified(id) && len(r.nodes[id].ParentCandidates) == 0 {
		return false
	}
	switch r.nodes[id].Kind {
	case core.NodeTable, core.NodeSubQuery:
		return false
	}
	return true
}

func (r *resolver) subqueryOwned(id string) bool {
	return core.IsQualified(id) && r.subqueries[core.TablePart(id)]
}

func (r *resolver) ephemeralOwned(id string) bool {
	return core.IsQualified(id) && r.ephemeral.Contains(core.TablePart(id))
}

// isReal reports whether id is a column of a persisted, non-ephemeral table.
// Table and subquery nodes are never real sources.
func (r *resolver) isReal(id string) bool {
	if !r.isColumn(id) || r.subqueryOwned(id) || r.ephemeralOwned(id) {
		return false
	}
	hasTable := false
	for _, c := range r.nodes[id].ParentCandidates {
		if c.Kind != core.NodeTable {
			continue
		}
		hasTable = true
		if !r.ephemeral.Contains(c.Name) {
			return true
		}
	}
	if hasTable {
		return false
	}
	return core.IsQualified(id)
}

// realSources returns the real table columns feeding a subquery column,
// memoized per column.
func (r *resolver) realSources(id string) []string {
	if srcs, ok := r.memo[id]; ok {
		return srcs
	}
	srcs := dedupe(r.trace(id, nil))
	r.memo[id] = srcs
	return srcs
}

func (r *resolver) trace(id string, visited map[string]bool) []string {
	if visited[id] {
		return nil
	}
	visited = with(visited, id)

	var out []string
	for _, src := range r.adj.Sources(id) {
		switch {
		case !r.isColumn(src):
			// has_column edges from table nodes carry no column lineage.
		case r.isReal(src):
			out = append(out, src)
		case r.subqueryOwned(src), r.ephemeralOwned(src):
			out = append(out, r.trace(src, visited)...)
		}
	}
	return out
}

// with returns a copy of visited that also contains id.
func with(visited map[string]bool, id string) map[string]bool {
	next := make(map[string]bool, len(visited)+1)
	for k := range visited {
		next[k] = true
	}
	next[id] = true
	return next
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
