// Package channelfilter keeps only the releases that are members of the
// requested channel.
package channelfilter

import (
	"context"
	"regexp"
	"strings"

	"github.com/openshift/cincinnati/internal/graph"
	"github.com/openshift/cincinnati/internal/plugin"
	cincerrors "github.com/openshift/cincinnati/pkg/errors"
)

// Name is the registry name of this plugin.
const Name = "channel-filter"

var channelNameRE = regexp.MustCompile(`^[0-9a-z.\-]+$`)

type channelFilter struct{}

// New creates the channel-filter plugin.
func New() plugin.Interface {
	return &channelFilter{}
}

// Factory constructs the plugin from settings. It takes no options.
func Factory(_ plugin.Settings) (plugin.Interface, error) {
	return New(), nil
}

func (f *channelFilter) Name() string {
	return Name
}

func (f *channelFilter) Phase() plugin.Phase {
	return plugin.PhaseInternal
}

// Transform keeps a node exactly when the requested channel appears in its
// release.channels list. Edges and conditional edges incident to removed
// nodes are dropped.
func (f *channelFilter) Transform(_ context.Context, io plugin.IO) (plugin.IO, error) {
	channel := io.Parameters[plugin.ParamChannel]
	if !channelNameRE.MatchString(channel) {
		return plugin.IO{}, cincerrors.NewInvalidParamsError(plugin.ParamChannel, "invalid channel name: "+channel)
	}

	out := graph.New()
	kept := make(map[string]struct{})
	for _, r := range io.Graph.Releases() {
		if !hasChannel(r.Metadata, channel) {
			continue
		}
		kept[r.Version] = struct{}{}
		if _, err := out.AddRelease(graph.Release{
			Version:  r.Version,
			Payload:  r.Payload,
			Metadata: r.Metadata.Clone(),
		}); err != nil {
			return plugin.IO{}, err
		}
	}

	for _, e := range io.Graph.Edges() {
		if _, ok := kept[e.From]; !ok {
			continue
		}
		if _, ok := kept[e.To]; !ok {
			continue
		}
		if err := out.AddEdgeByVersion(e.From, e.To); err != nil {
			return plugin.IO{}, err
		}
	}

	for _, group := range io.Graph.ConditionalEdges() {
		filtered := group
		filtered.Edges = nil
		for _, e := range group.Edges {
			if _, ok := kept[e.From]; !ok {
				continue
			}
			if _, ok := kept[e.To]; !ok {
				continue
			}
			filtered.Edges = append(filtered.Edges, e)
		}
		if len(filtered.Edges) == 0 {
			continue
		}
		if err := out.AddConditionalEdges(filtered); err != nil {
			return plugin.IO{}, err
		}
	}

	io.Graph = out
	return io, nil
}

func hasChannel(md *graph.Metadata, channel string) bool {
	raw, ok := md.Get(graph.MetadataKeyChannels)
	if !ok {
		return false
	}
	for _, member := range strings.Split(raw, ",") {
		if strings.TrimSpace(member) == channel {
			return true
		}
	}
	return false
}
