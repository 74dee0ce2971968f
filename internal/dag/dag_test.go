package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, edges ...[2]string) *Graph {
	t.Helper()
	g := NewGraph()
	for _, e := range edges {
		require.NoError(t, g.Link(e[0], e[1]))
	}
	return g
}

func TestGraph_Link(t *testing.T) {
	g := build(t, [2]string{"ods.a.x", "tmp.t.x"}, [2]string{"tmp.t.x", "dw.b.x"}, [2]string{"ods.a.x", "tmp.t.x"})

	assert.Equal(t, 3, g.Len())
	assert.Equal(t, []string{"tmp.t.x"}, g.Targets("ods.a.x"))
	assert.Equal(t, []string{"ods.a.x"}, g.Sources("tmp.t.x"))
	assert.ErrorIs(t, g.Link("a", "a"), ErrSelfLoop)
	assert.False(t, g.Has("a"))

	g.Add("lonely")
	assert.True(t, g.Has("lonely"))
	assert.Empty(t, g.Targets("lonely"))
}

func TestGraph_TargetsKeepInsertionOrder(t *testing.T) {
	g := build(t, [2]string{"a", "z"}, [2]string{"a", "m"}, [2]string{"a", "b"})
	assert.Equal(t, []string{"z", "m", "b"}, g.Targets("a"))
}

func TestGraph_HasIndirectPath(t *testing.T) {
	tests := []struct {
		name  string
		edges [][2]string
		want  bool
	}{
		{"chain makes shortcut redundant", [][2]string{{"a", "b"}, {"b", "d"}, {"a", "d"}}, true},
		{"direct edge only", [][2]string{{"a", "d"}}, false},
		{"diamond", [][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}, {"a", "d"}}, true},
		{"cycle does not hang", [][2]string{{"a", "b"}, {"b", "a"}, {"a", "d"}}, false},
		{"long path", [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}, {"a", "d"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := build(t, tt.edges...)
			assert.Equal(t, tt.want, g.HasIndirectPath("a", "d"))
		})
	}
}

func TestGraph_Walk(t *testing.T) {
	g := build(t, [2]string{"a", "b"}, [2]string{"b", "c"}, [2]string{"c", "d"})

	tests := []struct {
		name     string
		start    string
		upstream bool
		depth    int
		want     []Hop
	}{
		{
			name: "downstream limited", start: "a", depth: 2,
			want: []Hop{{"a", "b", 1}, {"b", "c", 2}},
		},
		{
			name: "upstream unlimited", start: "d", upstream: true,
			want: []Hop{{"d", "c", 1}, {"c", "b", 2}, {"b", "a", 3}},
		},
		{
			name: "unknown start", start: "zz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Walk(tt.start, tt.upstream, tt.depth))
		})
	}
}

func TestGraph_WalkCycleTerminates(t *testing.T) {
	g := build(t, [2]string{"a", "b"}, [2]string{"b", "a"})
	assert.Len(t, g.Walk("a", false, 0), 2)
}
