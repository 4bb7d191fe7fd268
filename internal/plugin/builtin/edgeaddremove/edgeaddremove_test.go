package edgeaddremove

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/openshift/cincinnati/internal/graph"
	"github.com/openshift/cincinnati/internal/plugin"
)

func release(t *testing.T, g *graph.Graph, version string, metadata map[string]string) {
	t.Helper()
	md := graph.NewMetadata()
	for _, k := range []string{
		graph.MetadataKeyPreviousAdd,
		graph.MetadataKeyNextAdd,
		graph.MetadataKeyPreviousRemove,
		graph.MetadataKeyNextRemove,
		graph.MetadataKeyPreviousRemoveRegex,
		MetadataKeyConditionalPreviousAdd,
		MetadataKeyConditionalRiskName,
		MetadataKeyConditionalRiskPromQL,
	} {
		if v, ok := metadata[k]; ok {
			md.Set(k, v)
		}
	}
	_, err := g.AddRelease(graph.Release{Version: version, Payload: "payload/" + version, Metadata: md})
	require.NoError(t, err)
}

func transform(t *testing.T, g *graph.Graph) (*graph.Graph, error) {
	t.Helper()
	out, err := New(zerolog.Nop()).Transform(context.Background(), plugin.IO{Graph: g, Parameters: plugin.Parameters{}})
	if err != nil {
		return nil, err
	}
	return out.Graph, nil
}

func TestPreviousAddCreatesEdge(t *testing.T) {
	t.Parallel()

	g := graph.New()
	release(t, g, "1.0.0", nil)
	release(t, g, "2.0.0", map[string]string{graph.MetadataKeyPreviousAdd: "1.0.0"})

	out, err := transform(t, g)
	require.NoError(t, err)
	require.Equal(t, []graph.Edge{{From: "1.0.0", To: "2.0.0"}}, out.Edges())
}

func TestNextAddCreatesEdge(t *testing.T) {
	t.Parallel()

	g := graph.New()
	release(t, g, "1.0.0", map[string]string{graph.MetadataKeyNextAdd: "2.0.0"})
	release(t, g, "2.0.0", nil)

	out, err := transform(t, g)
	require.NoError(t, err)
	require.Equal(t, []graph.Edge{{From: "1.0.0", To: "2.0.0"}}, out.Edges())
}

func TestRemoveWinsOverAdd(t *testing.T) {
	t.Parallel()

	g := graph.New()
	release(t, g, "1", nil)
	release(t, g, "2", map[string]string{
		graph.MetadataKeyPreviousAdd:    "1",
		graph.MetadataKeyPreviousRemove: "1",
	})

	out, err := transform(t, g)
	require.NoError(t, err)
	require.Empty(t, out.Edges())
}

func TestAddToUnknownVersionIsSkipped(t *testing.T) {
	t.Parallel()

	g := graph.New()
	release(t, g, "2.0.0", map[string]string{graph.MetadataKeyPreviousAdd: "9.9.9,1.0.0"})
	release(t, g, "1.0.0", nil)

	out, err := transform(t, g)
	require.NoError(t, err)
	require.Equal(t, []graph.Edge{{From: "1.0.0", To: "2.0.0"}}, out.Edges())
}

func TestRemoveRegexDropsMatchingSources(t *testing.T) {
	t.Parallel()

	g := graph.New()
	release(t, g, "4.1.1", nil)
	release(t, g, "4.1.2", nil)
	release(t, g, "4.2.0", map[string]string{
		graph.MetadataKeyPreviousAdd:         "4.1.1,4.1.2",
		graph.MetadataKeyPreviousRemoveRegex: `4\.1\..*`,
	})

	out, err := transform(t, g)
	require.NoError(t, err)
	require.Empty(t, out.Edges())
}

func TestInvalidRemoveRegexFails(t *testing.T) {
	t.Parallel()

	g := graph.New()
	release(t, g, "2.0.0", map[string]string{graph.MetadataKeyPreviousRemoveRegex: "("})

	_, err := transform(t, g)
	require.Error(t, err)
}

func TestCycleAbortsTransform(t *testing.T) {
	t.Parallel()

	g := graph.New()
	release(t, g, "2", map[string]string{graph.MetadataKeyPreviousAdd: "3"})
	release(t, g, "3", map[string]string{graph.MetadataKeyPreviousAdd: "2"})

	_, err := transform(t, g)
	var cycle *graph.CycleError
	require.ErrorAs(t, err, &cycle)
}

func TestConditionalAnnotationsProduceConditionalEdges(t *testing.T) {
	t.Parallel()

	g := graph.New()
	release(t, g, "1.0.0", nil)
	release(t, g, "2.0.0", map[string]string{
		MetadataKeyConditionalPreviousAdd: "1.0.0,9.9.9",
		MetadataKeyConditionalRiskName:    "SomeRisk",
		MetadataKeyConditionalRiskPromQL:  `cluster_feature{name="x"} == 1`,
	})

	out, err := transform(t, g)
	require.NoError(t, err)
	require.Empty(t, out.Edges())

	groups := out.ConditionalEdges()
	require.Len(t, groups, 1)
	require.Equal(t, []graph.ConditionalUpdateEdge{{From: "1.0.0", To: "2.0.0"}}, groups[0].Edges)
	require.Len(t, groups[0].Risks, 1)
	require.Equal(t, "SomeRisk", groups[0].Risks[0].Name)
	require.Equal(t, graph.MatchingRulePromQL, groups[0].Risks[0].MatchingRules[0].Type)
	require.Equal(t, `cluster_feature{name="x"} == 1`, groups[0].Risks[0].MatchingRules[0].PromQL.PromQL)
}

func TestConditionalAnnotationWithoutPromQLUsesAlways(t *testing.T) {
	t.Parallel()

	g := graph.New()
	release(t, g, "1.0.0", nil)
	release(t, g, "2.0.0", map[string]string{
		MetadataKeyConditionalPreviousAdd: "1.0.0",
		MetadataKeyConditionalRiskName:    "SomeRisk",
	})

	out, err := transform(t, g)
	require.NoError(t, err)

	groups := out.ConditionalEdges()
	require.Len(t, groups, 1)
	require.Equal(t, graph.MatchingRuleAlways, groups[0].Risks[0].MatchingRules[0].Type)
}
