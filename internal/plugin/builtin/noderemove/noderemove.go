// Package noderemove drops releases explicitly marked for removal.
package noderemove

import (
	"context"

	"github.com/openshift/cincinnati/internal/graph"
	"github.com/openshift/cincinnati/internal/plugin"
)

// Name is the registry name of this plugin.
const Name = "node-remove"

type nodeRemove struct{}

// New creates the node-remove plugin.
func New() plugin.Interface {
	return &nodeRemove{}
}

// Factory constructs the plugin from settings. It takes no options.
func Factory(_ plugin.Settings) (plugin.Interface, error) {
	return New(), nil
}

func (p *nodeRemove) Name() string {
	return Name
}

func (p *nodeRemove) Phase() plugin.Phase {
	return plugin.PhaseInternal
}

// Transform removes every node whose release.remove metadata is "true",
// together with its incident edges. The operation is idempotent.
func (p *nodeRemove) Transform(_ context.Context, io plugin.IO) (plugin.IO, error) {
	var doomed []string
	for _, r := range io.Graph.Releases() {
		if v, ok := r.Metadata.Get(graph.MetadataKeyRemove); ok && v == "true" {
			doomed = append(doomed, r.Version)
		}
	}
	for _, version := range doomed {
		io.Graph.RemoveRelease(version)
	}
	return io, nil
}
