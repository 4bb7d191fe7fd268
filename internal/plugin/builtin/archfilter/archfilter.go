// Package archfilter keeps only the releases built for the requested
// architecture and strips the architecture suffix from their versions.
package archfilter

import (
	"context"
	"strings"

	"github.com/openshift/cincinnati/internal/graph"
	"github.com/openshift/cincinnati/internal/plugin"
)

// Name is the registry name of this plugin.
const Name = "arch-filter"

// ArchMulti matches multi-architecture release payloads.
const ArchMulti = "multi"

type archFilter struct{}

// New creates the arch-filter plugin.
func New() plugin.Interface {
	return &archFilter{}
}

// Factory constructs the plugin from settings. It takes no options.
func Factory(_ plugin.Settings) (plugin.Interface, error) {
	return New(), nil
}

func (f *archFilter) Name() string {
	return Name
}

func (f *archFilter) Phase() plugin.Phase {
	return plugin.PhaseInternal
}

// Transform keeps a node when its release.arch metadata equals the requested
// architecture, or when the metadata is absent and the request is the
// default. Surviving versions lose a trailing "+<arch>" suffix; edges and
// conditional edges incident to removed nodes are dropped, the rest are
// rewritten to the new version strings.
func (f *archFilter) Transform(_ context.Context, io plugin.IO) (plugin.IO, error) {
	arch := io.Parameters[plugin.ParamArch]
	if arch == "" {
		arch = graph.DefaultArch
	}

	out := graph.New()
	rename := make(map[string]string)
	for _, r := range io.Graph.Releases() {
		nodeArch, present := r.Metadata.Get(graph.MetadataKeyArch)
		switch {
		case present && nodeArch == arch:
		case !present && arch == graph.DefaultArch:
		default:
			continue
		}

		version := strings.TrimSuffix(r.Version, "+"+arch)
		rename[r.Version] = version
		if _, err := out.AddRelease(graph.Release{
			Version:  version,
			Payload:  r.Payload,
			Metadata: r.Metadata.Clone(),
		}); err != nil {
			return plugin.IO{}, err
		}
	}

	for _, e := range io.Graph.Edges() {
		from, okFrom := rename[e.From]
		to, okTo := rename[e.To]
		if !okFrom || !okTo {
			continue
		}
		if err := out.AddEdgeByVersion(from, to); err != nil {
			return plugin.IO{}, err
		}
	}

	for _, group := range io.Graph.ConditionalEdges() {
		kept := group
		kept.Edges = nil
		for _, e := range group.Edges {
			from, okFrom := rename[e.From]
			to, okTo := rename[e.To]
			if !okFrom || !okTo {
				continue
			}
			kept.Edges = append(kept.Edges, graph.ConditionalUpdateEdge{From: from, To: to})
		}
		if len(kept.Edges) == 0 {
			continue
		}
		if err := out.AddConditionalEdges(kept); err != nil {
			return plugin.IO{}, err
		}
	}

	io.Graph = out
	return io, nil
}
