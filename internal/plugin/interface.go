// Package plugin defines the graph transform contract shared by the graph
// builder and the policy engine, the registry that constructs named plugins
// from configuration, and the pipeline that runs them.
package plugin

import (
	"context"

	"github.com/openshift/cincinnati/internal/graph"
)

// Phase classifies where a plugin may block.
type Phase string

const (
	// PhaseInternal marks pure CPU-only transforms.
	PhaseInternal Phase = "Internal"
	// PhaseExternal marks transforms that perform outbound network I/O.
	PhaseExternal Phase = "External"
	// PhaseInternalIO marks transforms that touch local disk.
	PhaseInternalIO Phase = "InternalIO"
)

// Parameter keys with meaning across plugins. Parameters a plugin does not
// recognize pass through untouched.
const (
	ParamChannel  = "channel"
	ParamArch     = "arch"
	ParamBaseArch = "basearch"
	ParamAccept   = "accept"
	ParamID       = "id"
	ParamVersion  = "version"

	// ParamRequestID carries the correlation id assigned by the HTTP layer.
	ParamRequestID = "request_id"
)

// Parameters carries per-request data through a pipeline run.
type Parameters map[string]string

// Clone returns an independent copy.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// IO is the value passed between pipeline steps: the graph being
// transformed plus the request parameters.
type IO struct {
	Graph      *graph.Graph
	Parameters Parameters
}

// Interface is a named graph-to-graph transform. Transform owns the input
// graph for the duration of the call and returns a graph the caller owns;
// it must honor ctx cancellation at its suspension points.
type Interface interface {
	Name() string
	Phase() Phase
	Transform(ctx context.Context, io IO) (IO, error)
}
