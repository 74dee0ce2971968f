package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

func TestDecodeCytoscapeBytes(t *testing.T) {
	raw := `[
		{"data": {"id": "src.t", "type": "Table"}},
		{"data": {"id": "src.t.a", "type": "Column",
			"parent_candidates": [{"type": "Table", "name": "src.t"}, "junk", 3]}},
		{"data": {"id": "dst.u.a", "type": "Column", "parent_candidates": []}},
		{"data": {"id": "e1", "source": "src.t.a", "target": "dst.u.a"}},
		{"data": {"type": "Column"}}
	]`

	g, err := DecodeCytoscapeBytes([]byte(raw))
	require.NoError(t, err)

	require.Len(t, g.Nodes, 3)
	assert.Equal(t, core.NodeTable, g.Nodes[0].Kind)
	assert.Equal(t, []core.ParentCandidate{{Kind: core.NodeTable, Name: "src.t"}}, g.Nodes[1].ParentCandidates)
	assert.Empty(t, g.Nodes[2].ParentCandidates)
	assert.Equal(t, []core.GraphEdge{{Source: "src.t.a", Target: "dst.u.a"}}, g.Edges)
}

func TestDecodeCytoscape_Envelope(t *testing.T) {
	g, err := DecodeCytoscape(strings.NewReader(`{"elements": [{"data": {"id": "a.b.c", "type": "Column"}}]}`))
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 1)

	_, err = DecodeCytoscape(strings.NewReader(`{"error": "syntax error at line 1"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error at line 1")
}

func TestDecodeCytoscape_Empty(t *testing.T) {
	g, err := DecodeCytoscapeBytes([]byte(`[]`))
	require.NoError(t, err)
	assert.True(t, g.Empty())
}

func TestDecodeCytoscape_Invalid(t *testing.T) {
	_, err := DecodeCytoscapeBytes([]byte(`not json`))
	assert.Error(t, err)
}
