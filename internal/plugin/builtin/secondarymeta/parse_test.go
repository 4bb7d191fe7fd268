package secondarymeta

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/openshift/cincinnati/internal/graph"
	"github.com/openshift/cincinnati/internal/plugin"
	cincerrors "github.com/openshift/cincinnati/pkg/errors"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func buildGraph(t *testing.T, versions ...string) *graph.Graph {
	t.Helper()
	g := graph.New()
	for _, v := range versions {
		_, err := g.AddRelease(graph.Release{Version: v, Payload: "payload/" + v})
		require.NoError(t, err)
	}
	return g
}

func parse(t *testing.T, dir string, g *graph.Graph) error {
	t.Helper()
	_, err := NewParse(dir, zerolog.Nop()).Transform(context.Background(), plugin.IO{Graph: g, Parameters: plugin.Parameters{}})
	return err
}

func TestChannelMembershipIsMergedAndSorted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "channels/stable-4.1.yaml", "name: stable-4.1\nversions:\n  - 4.1.0\n  - 4.1.1\n")
	writeFile(t, dir, "channels/fast-4.1.yaml", "name: fast-4.1\nversions:\n  - 4.1.1\n")

	g := buildGraph(t, "4.1.0", "4.1.1")
	require.NoError(t, parse(t, dir, g))

	id, _ := g.FindByVersion("4.1.0")
	r, _ := g.Release(id)
	channels, _ := r.Metadata.Get(graph.MetadataKeyChannels)
	require.Equal(t, "stable-4.1", channels)

	id, _ = g.FindByVersion("4.1.1")
	r, _ = g.Release(id)
	channels, _ = r.Metadata.Get(graph.MetadataKeyChannels)
	require.Equal(t, "fast-4.1,stable-4.1", channels)
}

func TestChannelMergeDeduplicates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "channels/stable-4.1.yaml", "name: stable-4.1\nversions:\n  - 4.1.0\n")

	g := graph.New()
	md := graph.NewMetadata()
	md.Set(graph.MetadataKeyChannels, "stable-4.1,candidate-4.1")
	_, err := g.AddRelease(graph.Release{Version: "4.1.0", Payload: "p", Metadata: md})
	require.NoError(t, err)

	require.NoError(t, parse(t, dir, g))

	id, _ := g.FindByVersion("4.1.0")
	r, _ := g.Release(id)
	channels, _ := r.Metadata.Get(graph.MetadataKeyChannels)
	require.Equal(t, "candidate-4.1,stable-4.1", channels)
}

func TestUnknownReleaseIsLoggedNotFatal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "channels/stable-4.1.yaml", "name: stable-4.1\nversions:\n  - 9.9.9\n")

	g := buildGraph(t, "4.1.0")
	require.NoError(t, parse(t, dir, g))
}

func TestBlockedEdgesAnnotate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "blocked-edges/4.1.1-regression.yaml", "to: 4.1.1\nfrom: 4.1.0\n")
	writeFile(t, dir, "blocked-edges/4.1.1-wildcard.yaml", "to: 4.1.1\nfrom_regex: '4\\.0\\..*'\n")

	g := buildGraph(t, "4.1.0", "4.1.1")
	require.NoError(t, parse(t, dir, g))

	id, _ := g.FindByVersion("4.1.1")
	r, _ := g.Release(id)
	remove, _ := r.Metadata.Get(graph.MetadataKeyPreviousRemove)
	require.Equal(t, "4.1.0", remove)
	re, _ := r.Metadata.Get(graph.MetadataKeyPreviousRemoveRegex)
	require.Equal(t, `4\.0\..*`, re)
}

func TestBlockedEdgeRegexesCombine(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "blocked-edges/a.yaml", "to: 4.1.1\nfrom_regex: '4\\.0\\..*'\n")
	writeFile(t, dir, "blocked-edges/b.yaml", "to: 4.1.1\nfrom_regex: '3\\..*'\n")

	g := buildGraph(t, "4.1.1")
	require.NoError(t, parse(t, dir, g))

	id, _ := g.FindByVersion("4.1.1")
	r, _ := g.Release(id)
	re, _ := r.Metadata.Get(graph.MetadataKeyPreviousRemoveRegex)
	require.Equal(t, `4\.0\..*|3\..*`, re)
}

func TestRawMetadataIsMerged(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "raw/4.1.0.json", `{"version":"4.1.0","metadata":{"url":"https://example.com/errata/1"}}`)

	g := buildGraph(t, "4.1.0")
	require.NoError(t, parse(t, dir, g))

	id, _ := g.FindByVersion("4.1.0")
	r, _ := g.Release(id)
	url, ok := r.Metadata.Get("url")
	require.True(t, ok)
	require.Equal(t, "https://example.com/errata/1", url)
}

func TestMalformedChannelFileIsFatal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "channels/broken.yaml", "{nope\n  - ]")

	err := parse(t, dir, buildGraph(t, "4.1.0"))
	var parseErr *cincerrors.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestChannelFileWithoutNameIsFatal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "channels/anonymous.yaml", "versions:\n  - 4.1.0\n")

	err := parse(t, dir, buildGraph(t, "4.1.0"))
	var parseErr *cincerrors.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestEmptyDirectoryIsANoop(t *testing.T) {
	t.Parallel()

	g := buildGraph(t, "4.1.0")
	snapshot := g.Clone()
	require.NoError(t, parse(t, t.TempDir(), g))
	require.True(t, snapshot.Equal(g))
}
