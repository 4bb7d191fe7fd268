package channelfilter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openshift/cincinnati/internal/graph"
	"github.com/openshift/cincinnati/internal/plugin"
	cincerrors "github.com/openshift/cincinnati/pkg/errors"
)

func release(t *testing.T, g *graph.Graph, version, channels string) graph.ReleaseID {
	t.Helper()
	md := graph.NewMetadata()
	if channels != "" {
		md.Set(graph.MetadataKeyChannels, channels)
	}
	id, err := g.AddRelease(graph.Release{Version: version, Payload: "payload/" + version, Metadata: md})
	require.NoError(t, err)
	return id
}

func TestKeepsExactlyChannelMembers(t *testing.T) {
	t.Parallel()

	g := graph.New()
	a := release(t, g, "1.0.0", "stable-1")
	b := release(t, g, "1.1.0", "stable-1,fast-1")
	release(t, g, "1.2.0", "")
	require.NoError(t, g.AddEdge(a, b))

	out, err := New().Transform(context.Background(), plugin.IO{
		Graph:      g,
		Parameters: plugin.Parameters{plugin.ParamChannel: "fast-1"},
	})
	require.NoError(t, err)

	releases := out.Graph.Releases()
	require.Len(t, releases, 1)
	require.Equal(t, "1.1.0", releases[0].Version)
	require.Empty(t, out.Graph.Edges())
}

func TestKeepsIncidentEdgesBetweenMembers(t *testing.T) {
	t.Parallel()

	g := graph.New()
	a := release(t, g, "1.0.0", "stable-1")
	b := release(t, g, "1.1.0", "stable-1,fast-1")
	require.NoError(t, g.AddEdge(a, b))

	out, err := New().Transform(context.Background(), plugin.IO{
		Graph:      g,
		Parameters: plugin.Parameters{plugin.ParamChannel: "stable-1"},
	})
	require.NoError(t, err)

	releases := out.Graph.Releases()
	require.Len(t, releases, 2)
	require.Equal(t, "1.0.0", releases[0].Version)
	require.Equal(t, "1.1.0", releases[1].Version)
	require.Equal(t, []graph.Edge{{From: "1.0.0", To: "1.1.0"}}, out.Graph.Edges())
}

func TestRejectsInvalidChannelName(t *testing.T) {
	t.Parallel()

	for _, channel := range []string{"", "Stable-1", "stable_1", "stable 1"} {
		_, err := New().Transform(context.Background(), plugin.IO{
			Graph:      graph.New(),
			Parameters: plugin.Parameters{plugin.ParamChannel: channel},
		})
		var invalid *cincerrors.InvalidParamsError
		require.ErrorAs(t, err, &invalid, "channel %q", channel)
		require.Equal(t, "channel", invalid.Param)
	}
}

func TestWhitespaceAroundChannelMembersIsTolerated(t *testing.T) {
	t.Parallel()

	g := graph.New()
	release(t, g, "1.0.0", "stable-1, fast-1")

	out, err := New().Transform(context.Background(), plugin.IO{
		Graph:      g,
		Parameters: plugin.Parameters{plugin.ParamChannel: "fast-1"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, out.Graph.Len())
}

func TestConditionalEdgesFollowMembership(t *testing.T) {
	t.Parallel()

	g := graph.New()
	release(t, g, "1.0.0", "stable-1")
	release(t, g, "1.1.0", "stable-1")
	release(t, g, "2.0.0", "fast-2")
	require.NoError(t, g.AddConditionalEdges(graph.ConditionalEdges{
		Edges: []graph.ConditionalUpdateEdge{
			{From: "1.0.0", To: "1.1.0"},
			{From: "1.1.0", To: "2.0.0"},
		},
		Risks: []graph.Risk{{Name: "SomeRisk", MatchingRules: []graph.MatchingRule{{Type: graph.MatchingRuleAlways}}}},
	}))

	out, err := New().Transform(context.Background(), plugin.IO{
		Graph:      g,
		Parameters: plugin.Parameters{plugin.ParamChannel: "stable-1"},
	})
	require.NoError(t, err)

	groups := out.Graph.ConditionalEdges()
	require.Len(t, groups, 1)
	require.Equal(t, []graph.ConditionalUpdateEdge{{From: "1.0.0", To: "1.1.0"}}, groups[0].Edges)
}
