package parser

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

type element struct {
	Data elementData `json:"data"`
}

type elementData struct {
	ID               string            `json:"id"`
	Type             string            `json:"type"`
	Source           *string           `json:"source"`
	Target           *string           `json:"target"`
	ParentCandidates []json.RawMessage `json:"parent_candidates"`
}

// envelope is the object form some tools emit instead of a bare list.
type envelope struct {
	Elements []element `json:"elements"`
	Error    string    `json:"error"`
}

// DecodeCytoscape reads a cytoscape element list, or an object with an
// "elements" list, into a statement graph. An "error" member is returned
// as an error.
func DecodeCytoscape(r io.Reader) (*core.Graph, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph: %w", err)
	}
	return DecodeCytoscapeBytes(raw)
}

// DecodeCytoscapeBytes is DecodeCytoscape over a byte slice.
func DecodeCytoscapeBytes(raw []byte) (*core.Graph, error) {
	var elements []element
	if err := json.Unmarshal(raw, &elements); err != nil {
		var env envelope
		if envErr := json.Unmarshal(raw, &env); envErr != nil {
			return nil, fmt.Errorf("failed to decode graph: %w", err)
		}
		if env.Error != "" {
			return nil, fmt.Errorf("parser reported: %s", env.Error)
		}
		elements = env.Elements
	}

	g := &core.Graph{}
	for _, el := range elements {
		d := el.Data
		if d.Source != nil && d.Target != nil {
			g.Edges = append(g.Edges, core.GraphEdge{Source: *d.Source, Target: *d.Target})
			continue
		}
		if d.ID == "" {
			continue
		}
		g.Nodes = append(g.Nodes, core.GraphNode{
			ID:               d.ID,
			Kind:             core.NodeKind(d.Type),
			ParentCandidates: decodeCandidates(d.ParentCandidates),
		})
	}
	return g, nil
}

// decodeCandidates keeps object candidates and skips anything else.
func decodeCandidates(raw []json.RawMessage) []core.ParentCandidate {
	var out []core.ParentCandidate
	for _, r := range raw {
		var c core.ParentCandidate
		if err := json.Unmarshal(r, &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}
