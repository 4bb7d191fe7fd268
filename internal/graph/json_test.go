package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleGraph(t *testing.T) *Graph {
	t.Helper()

	g := New()
	md := NewMetadata()
	md.Set(MetadataKeyChannels, "stable-4.1,fast-4.1")
	md.Set(MetadataKeyArch, "amd64")
	a, err := g.AddRelease(Release{Version: "4.1.0", Payload: "quay.io/openshift/release@sha256:aaa", Metadata: md})
	require.NoError(t, err)
	b, err := g.AddRelease(Release{Version: "4.1.1", Payload: "quay.io/openshift/release@sha256:bbb"})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge(a, b))
	require.NoError(t, g.AddConditionalEdges(ConditionalEdges{
		Edges: []ConditionalUpdateEdge{{From: "4.1.0", To: "4.1.1"}},
		Risks: []Risk{{
			URL:     "https://example.com/risk",
			Name:    "SomeRisk",
			Message: "may regress",
			MatchingRules: []MatchingRule{
				{Type: MatchingRulePromQL, PromQL: &PromQLQuery{PromQL: `cluster_feature{name="x"} == 1`}},
				{Type: MatchingRuleAlways},
			},
		}},
	}))
	return g
}

func TestMarshal_WireShape(t *testing.T) {
	t.Parallel()

	g := sampleGraph(t)
	data, err := json.Marshal(g)
	require.NoError(t, err)

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &top))
	require.NotContains(t, top, "version")
	require.Contains(t, top, "nodes")
	require.Contains(t, top, "edges")
	require.Contains(t, top, "conditionalEdges")
	require.Len(t, top, 3)

	var edges [][2]int
	require.NoError(t, json.Unmarshal(top["edges"], &edges))
	require.Equal(t, [][2]int{{0, 1}}, edges)
}

func TestMarshal_VersionedWireShape(t *testing.T) {
	t.Parallel()

	g := sampleGraph(t).WithWireVersion(1)
	data, err := json.Marshal(g)
	require.NoError(t, err)

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &top))
	require.JSONEq(t, "1", string(top["version"]))
}

func TestMarshal_EmptyGraphEmitsArrays(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(New())
	require.NoError(t, err)
	require.JSONEq(t, `{"nodes":[],"edges":[],"conditionalEdges":[]}`, string(data))
}

func TestMarshal_MetadataKeyOrder(t *testing.T) {
	t.Parallel()

	g := New()
	md := NewMetadata()
	md.Set("zzz", "first")
	md.Set("aaa", "second")
	_, err := g.AddRelease(Release{Version: "4.1.0", Payload: "p", Metadata: md})
	require.NoError(t, err)

	data, err := json.Marshal(g)
	require.NoError(t, err)
	require.Contains(t, string(data), `"metadata":{"zzz":"first","aaa":"second"}`)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	g := sampleGraph(t)
	data, err := json.Marshal(g)
	require.NoError(t, err)

	parsed := New()
	require.NoError(t, json.Unmarshal(data, parsed))
	require.True(t, g.Equal(parsed))

	// A second pass must be byte-identical.
	again, err := json.Marshal(parsed)
	require.NoError(t, err)
	require.Equal(t, string(data), string(again))
}

func TestUnmarshal_IgnoresUnknownFields(t *testing.T) {
	t.Parallel()

	doc := `{"nodes":[{"version":"4.1.0","payload":"p","metadata":{}}],"edges":[],"conditionalEdges":[],"extra":"ignored"}`
	g := New()
	require.NoError(t, json.Unmarshal([]byte(doc), g))
	require.Equal(t, 1, g.Len())
}

func TestUnmarshal_RejectsDuplicateVersions(t *testing.T) {
	t.Parallel()

	doc := `{"nodes":[{"version":"4.1.0","payload":"p","metadata":{}},{"version":"4.1.0","payload":"q","metadata":{}}],"edges":[],"conditionalEdges":[]}`
	g := New()
	err := json.Unmarshal([]byte(doc), g)
	var dup *DuplicateVersionError
	require.ErrorAs(t, err, &dup)
}

func TestUnmarshal_RejectsDanglingEdge(t *testing.T) {
	t.Parallel()

	doc := `{"nodes":[{"version":"4.1.0","payload":"p","metadata":{}}],"edges":[[0,7]],"conditionalEdges":[]}`
	g := New()
	err := json.Unmarshal([]byte(doc), g)
	var unknown *UnknownNodeError
	require.ErrorAs(t, err, &unknown)
}

func TestUnmarshal_RejectsMalformedDocument(t *testing.T) {
	t.Parallel()

	g := New()
	err := json.Unmarshal([]byte(`{"nodes": "nope"}`), g)
	var malformed *MalformedInputError
	require.ErrorAs(t, err, &malformed)
}
