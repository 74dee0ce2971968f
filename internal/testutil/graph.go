package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// GraphBuilder assembles statement graphs the way the external parser emits them.
type GraphBuilder struct {
	nodes      []core.GraphNode
	index      map[string]int
	explicit   map[string]bool
	subqueries map[string]bool
	edges      []core.GraphEdge
}

// NewGraph starts an empty graph.
func NewGraph() *GraphBuilder {
	return &GraphBuilder{
		index:      make(map[string]int),
		explicit:   make(map[string]bool),
		subqueries: make(map[string]bool),
	}
}

// Edge adds source -> target, creating Column nodes for unseen endpoints.
// Implicit nodes get their dotted prefix as parent candidate.
func (b *GraphBuilder) Edge(source, target string) *GraphBuilder {
	b.column(source)
	b.column(target)
	b.edges = append(b.edges, core.GraphEdge{Source: source, Target: target})
	return b
}

// Chain adds edges between consecutive ids.
func (b *GraphBuilder) Chain(ids ...string) *GraphBuilder {
	for i := 1; i < len(ids); i++ {
		b.Edge(ids[i-1], ids[i])
	}
	return b
}

// Column adds or replaces a Column node with explicit Table candidates.
func (b *GraphBuilder) Column(id string, tables ...string) *GraphBuilder {
	var cands []core.ParentCandidate
	for _, t := range tables {
		cands = append(cands, core.ParentCandidate{Kind: core.NodeTable, Name: t})
	}
	b.put(core.GraphNode{ID: id, Kind: core.NodeColumn, ParentCandidates: cands})
	b.explicit[id] = true
	return b
}

// SubQuery declares a subquery alias node.
func (b *GraphBuilder) SubQuery(alias string) *GraphBuilder {
	b.put(core.GraphNode{ID: alias, Kind: core.NodeSubQuery})
	b.subqueries[alias] = true
	return b
}

// Table declares a table node.
func (b *GraphBuilder) Table(name string) *GraphBuilder {
	b.put(core.GraphNode{ID: name, Kind: core.NodeTable})
	return b
}

// Build returns the graph. Implicit candidates of subquery columns are
// typed SubQuery.
func (b *GraphBuilder) Build() *core.Graph {
	g := &core.Graph{Edges: append([]core.GraphEdge(nil), b.edges...)}
	for _, n := range b.nodes {
		if !b.explicit[n.ID] {
			for i, c := range n.ParentCandidates {
				if b.subqueries[c.Name] {
					n.ParentCandidates[i].Kind = core.NodeSubQuery
				}
			}
		}
		g.Nodes = append(g.Nodes, n)
	}
	return g
}

func (b *GraphBuilder) column(id string) {
	if _, ok := b.index[id]; ok {
		return
	}
	n := core.GraphNode{ID: id, Kind: core.NodeColumn}
	if i := strings.LastIndex(id, "."); i > 0 {
		n.ParentCandidates = []core.ParentCandidate{{Kind: core.NodeTable, Name: id[:i]}}
	}
	b.put(n)
}

func (b *GraphBuilder) put(n core.GraphNode) {
	if i, ok := b.index[n.ID]; ok {
		b.nodes[i] = n
		return
	}
	b.index[n.ID] = len(b.nodes)
	b.nodes = append(b.nodes, n)
}

// ParseCall records one parser invocation.
type ParseCall struct {
	Statement string
	Dialect   string
	Hint      core.Schema
}

// FakeParser answers statements with scripted graphs or errors.
// Statements are matched with whitespace collapsed and a trailing ; removed.
// Unknown statements yield an empty graph.
type FakeParser struct {
	mu     sync.Mutex
	graphs map[string]*core.Graph
	errs   map[string]error
	panics map[string]bool
	calls  []ParseCall
}

// NewFakeParser creates a parser with no scripted statements.
func NewFakeParser() *FakeParser {
	return &FakeParser{
		graphs: make(map[string]*core.Graph),
		errs:   make(map[string]error),
		panics: make(map[string]bool),
	}
}

// On scripts the graph returned for stmt.
func (p *FakeParser) On(stmt string, g *core.Graph) *FakeParser {
	p.graphs[statementKey(stmt)] = g
	return p
}

// Fail scripts an error for stmt.
func (p *FakeParser) Fail(stmt string, err error) *FakeParser {
	p.errs[statementKey(stmt)] = err
	return p
}

// Panic makes the parser panic on stmt.
func (p *FakeParser) Panic(stmt string) *FakeParser {
	p.panics[statementKey(stmt)] = true
	return p
}

// Parse implements core.Parser.
func (p *FakeParser) Parse(_ context.Context, stmt, dialect string, hint core.Schema) (*core.Graph, error) {
	key := statementKey(stmt)

	p.mu.Lock()
	p.calls = append(p.calls, ParseCall{Statement: key, Dialect: dialect, Hint: hint})
	g, err, panics := p.graphs[key], p.errs[key], p.panics[key]
	p.mu.Unlock()

	if panics {
		panic("fake parser panic on " + key)
	}
	if err != nil {
		return nil, err
	}
	if g == nil {
		return &core.Graph{}, nil
	}
	return g, nil
}

// Calls returns the recorded invocations in call order.
func (p *FakeParser) Calls() []ParseCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ParseCall(nil), p.calls...)
}

func statementKey(stmt string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.Join(strings.Fields(stmt), " "), ";"))
}
