// Package versioned stamps the wire schema version onto graphs served to
// clients that negotiated the versioned content type.
package versioned

import (
	"context"

	"github.com/openshift/cincinnati/internal/plugin"
)

// Name is the registry name of this plugin.
const Name = "versioned-graph"

// Media types negotiated on the graph endpoint.
const (
	MediaTypeJSON         = "application/json"
	MediaTypeCincinnatiV1 = "application/vnd.redhat.cincinnati.v1+json"
)

type versionedGraph struct{}

// New creates the versioned-graph plugin.
func New() plugin.Interface {
	return &versionedGraph{}
}

// Factory constructs the plugin from settings. It takes no options.
func Factory(_ plugin.Settings) (plugin.Interface, error) {
	return New(), nil
}

func (p *versionedGraph) Name() string {
	return Name
}

func (p *versionedGraph) Phase() plugin.Phase {
	return plugin.PhaseInternal
}

// Transform wraps the graph with schema version 1 when the accept parameter
// selected the versioned media type; otherwise it passes through unchanged.
func (p *versionedGraph) Transform(_ context.Context, io plugin.IO) (plugin.IO, error) {
	if io.Parameters[plugin.ParamAccept] == MediaTypeCincinnatiV1 {
		io.Graph = io.Graph.WithWireVersion(1)
	}
	return io, nil
}
