package graph

import (
	"encoding/json"
)

// The wire format is fixed: top-level version (only when stamped), nodes,
// edges as index pairs, conditionalEdges. Node indices refer to positions
// in the nodes array as emitted.

type wireNode struct {
	Version  string    `json:"version"`
	Payload  string    `json:"payload"`
	Metadata *Metadata `json:"metadata"`
}

type wireGraph struct {
	Version          int                `json:"version,omitempty"`
	Nodes            []wireNode         `json:"nodes"`
	Edges            [][2]int           `json:"edges"`
	ConditionalEdges []ConditionalEdges `json:"conditionalEdges"`
}

// MarshalJSON encodes the graph in its stable wire form. Node metadata keys
// keep insertion order; edges keep insertion order.
func (g *Graph) MarshalJSON() ([]byte, error) {
	wire := wireGraph{
		Version:          g.wireVersion,
		Nodes:            make([]wireNode, 0, len(g.releases)),
		Edges:            make([][2]int, 0, len(g.edges)),
		ConditionalEdges: make([]ConditionalEdges, 0, len(g.conditional)),
	}
	for _, r := range g.releases {
		md := r.Metadata
		if md == nil {
			md = NewMetadata()
		}
		wire.Nodes = append(wire.Nodes, wireNode{
			Version:  r.Version,
			Payload:  r.Payload,
			Metadata: md,
		})
	}
	for _, e := range g.edges {
		wire.Edges = append(wire.Edges, [2]int{g.index[e.From], g.index[e.To]})
	}
	wire.ConditionalEdges = append(wire.ConditionalEdges, g.conditional...)
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the wire form, rebuilding the graph through the
// construction invariants: duplicate versions and dangling or cyclic edges
// are rejected. Unknown top-level fields are ignored.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var wire wireGraph
	if err := json.Unmarshal(data, &wire); err != nil {
		return &MalformedInputError{Message: "decoding graph document", Err: err}
	}

	rebuilt := New()
	rebuilt.wireVersion = wire.Version
	for _, n := range wire.Nodes {
		md := n.Metadata
		if md == nil {
			md = NewMetadata()
		}
		if _, err := rebuilt.AddRelease(Release{Version: n.Version, Payload: n.Payload, Metadata: md}); err != nil {
			return err
		}
	}
	for _, pair := range wire.Edges {
		if err := rebuilt.AddEdge(ReleaseID(pair[0]), ReleaseID(pair[1])); err != nil {
			return err
		}
	}
	for _, ce := range wire.ConditionalEdges {
		if err := rebuilt.AddConditionalEdges(ce); err != nil {
			return err
		}
	}

	*g = *rebuilt
	return nil
}
