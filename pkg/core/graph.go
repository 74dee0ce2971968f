package core

import "strings"

// NodeKind classifies a node of a parser graph.
type NodeKind string

// Node kinds emitted by the parser.
const (
	NodeTable    NodeKind = "Table"
	NodeSubQuery NodeKind = "SubQuery"
	NodeColumn   NodeKind = "Column"
)

// ParentCandidate is one of the parser's guesses at the table owning a column.
type ParentCandidate struct {
	Kind NodeKind `json:"type"`
	Name string   `json:"name"`
}

// GraphNode is a column, table or subquery identifier in a statement graph.
type GraphNode struct {
	ID               string            `json:"id"`
	Kind             NodeKind          `json:"type"`
	ParentCandidates []ParentCandidate `json:"parent_candidates,omitempty"`
}

// GraphEdge links a source node to a target node derived from it.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the raw dependency graph of a single statement.
// Edge order is preserved as emitted by the parser.
type Graph struct {
	Nodes []GraphNode
	Edges []GraphEdge
}

// Empty reports whether the graph carries no edges.
func (g *Graph) Empty() bool {
	return g == nil || len(g.Edges) == 0
}

// NodeIndex returns the nodes keyed by ID. Later duplicates win.
func (g *Graph) NodeIndex() map[string]GraphNode {
	idx := make(map[string]GraphNode, len(g.Nodes))
	for _, n := range g.Nodes {
		idx[n.ID] = n
	}
	return idx
}

// SubQueryIDs returns the set of node IDs of kind SubQuery.
func (g *Graph) SubQueryIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, n := range g.Nodes {
		if n.Kind == NodeSubQuery {
			ids[n.ID] = true
		}
	}
	return ids
}

// SplitID splits a dotted identifier into its segments.
func SplitID(id string) []string {
	if id == "" {
		return nil
	}
	return strings.Split(id, ".")
}

// TablePart returns the owning table segment of a dotted column id:
// the second-to-last segment, or "" for a bare column.
func TablePart(id string) string {
	parts := SplitID(id)
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

// IsQualified reports whether the id carries at least one dot.
func IsQualified(id string) bool {
	return strings.Contains(id, ".")
}
