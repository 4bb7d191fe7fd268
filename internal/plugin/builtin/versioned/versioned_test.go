package versioned

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openshift/cincinnati/internal/graph"
	"github.com/openshift/cincinnati/internal/plugin"
)

func TestVersionedAcceptWrapsGraph(t *testing.T) {
	t.Parallel()

	out, err := New().Transform(context.Background(), plugin.IO{
		Graph:      graph.New(),
		Parameters: plugin.Parameters{plugin.ParamAccept: MediaTypeCincinnatiV1},
	})
	require.NoError(t, err)

	data, err := json.Marshal(out.Graph)
	require.NoError(t, err)
	require.JSONEq(t, `{"version":1,"nodes":[],"edges":[],"conditionalEdges":[]}`, string(data))
}

func TestPlainAcceptPassesThrough(t *testing.T) {
	t.Parallel()

	for _, accept := range []string{"", MediaTypeJSON} {
		out, err := New().Transform(context.Background(), plugin.IO{
			Graph:      graph.New(),
			Parameters: plugin.Parameters{plugin.ParamAccept: accept},
		})
		require.NoError(t, err)
		require.Equal(t, 0, out.Graph.WireVersion())
	}
}
