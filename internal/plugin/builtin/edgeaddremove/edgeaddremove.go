// Package edgeaddremove applies the per-release edge annotations: explicit
// additions, explicit removals, regex removals, and conditional edge
// declarations. Removals always win over additions.
package edgeaddremove

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openshift/cincinnati/internal/graph"
	"github.com/openshift/cincinnati/internal/plugin"
)

// Name is the registry name of this plugin.
const Name = "edge-add-remove"

// Conditional edge annotations follow the previous/next grammar but produce
// conditionalEdges entries instead of plain edges. The risk fields describe
// why the produced edges need gating.
const (
	MetadataKeyConditionalPreviousAdd = graph.MetadataKeyPrefix + ".conditional.previous.add"
	MetadataKeyConditionalRiskName    = graph.MetadataKeyPrefix + ".conditional.risk.name"
	MetadataKeyConditionalRiskMessage = graph.MetadataKeyPrefix + ".conditional.risk.message"
	MetadataKeyConditionalRiskURL     = graph.MetadataKeyPrefix + ".conditional.risk.url"
	MetadataKeyConditionalRiskPromQL  = graph.MetadataKeyPrefix + ".conditional.risk.promql"
)

type edgeAddRemove struct {
	logger zerolog.Logger
}

// New creates the edge-add-remove plugin.
func New(logger zerolog.Logger) plugin.Interface {
	return &edgeAddRemove{logger: logger}
}

// Factory constructs the plugin from settings. It takes no options.
func Factory(_ plugin.Settings) (plugin.Interface, error) {
	return New(zerolog.Nop()), nil
}

func (p *edgeAddRemove) Name() string {
	return Name
}

func (p *edgeAddRemove) Phase() plugin.Phase {
	return plugin.PhaseInternal
}

// Transform walks the nodes in insertion order and applies, in this order:
// every *.add annotation, every *.remove and *.remove_regex annotation, and
// the conditional edge annotations. The whole graph is re-validated for
// acyclicity before returning.
func (p *edgeAddRemove) Transform(_ context.Context, io plugin.IO) (plugin.IO, error) {
	g := io.Graph

	for _, r := range g.Releases() {
		if err := p.applyAdds(g, r); err != nil {
			return plugin.IO{}, err
		}
	}
	for _, r := range g.Releases() {
		if err := p.applyRemoves(g, r); err != nil {
			return plugin.IO{}, err
		}
	}
	for _, r := range g.Releases() {
		if err := p.applyConditional(g, r); err != nil {
			return plugin.IO{}, err
		}
	}

	if err := g.Validate(); err != nil {
		return plugin.IO{}, err
	}
	return io, nil
}

func (p *edgeAddRemove) applyAdds(g *graph.Graph, r graph.Release) error {
	for _, previous := range splitList(r.Metadata, graph.MetadataKeyPreviousAdd) {
		if err := p.addEdge(g, previous, r.Version); err != nil {
			return err
		}
	}
	for _, next := range splitList(r.Metadata, graph.MetadataKeyNextAdd) {
		if err := p.addEdge(g, r.Version, next); err != nil {
			return err
		}
	}
	return nil
}

// addEdge inserts one annotated edge. Unknown endpoints are logged and
// skipped; cycles abort the whole transform.
func (p *edgeAddRemove) addEdge(g *graph.Graph, from, to string) error {
	err := g.AddEdgeByVersion(from, to)
	if err == nil {
		return nil
	}
	var unknown *graph.UnknownNodeError
	if errors.As(err, &unknown) {
		p.logger.Info().
			Str("from", from).
			Str("to", to).
			Str("missing", unknown.Version).
			Msg("skipping edge annotation for unknown release")
		return nil
	}
	return err
}

func (p *edgeAddRemove) applyRemoves(g *graph.Graph, r graph.Release) error {
	for _, previous := range splitList(r.Metadata, graph.MetadataKeyPreviousRemove) {
		g.RemoveEdge(previous, r.Version)
	}
	for _, next := range splitList(r.Metadata, graph.MetadataKeyNextRemove) {
		g.RemoveEdge(r.Version, next)
	}

	pattern, ok := r.Metadata.Get(graph.MetadataKeyPreviousRemoveRegex)
	if !ok {
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("release %s: invalid %s: %w", r.Version, graph.MetadataKeyPreviousRemoveRegex, err)
	}
	for _, e := range g.Edges() {
		if e.To == r.Version && re.MatchString(e.From) {
			g.RemoveEdge(e.From, e.To)
		}
	}
	return nil
}

// applyConditional turns conditional.previous.add annotations into a
// conditionalEdges group gated by the release's declared risk. A PromQL
// annotation yields a PromQL matching rule, otherwise the risk always
// applies.
func (p *edgeAddRemove) applyConditional(g *graph.Graph, r graph.Release) error {
	previous := splitList(r.Metadata, MetadataKeyConditionalPreviousAdd)
	if len(previous) == 0 {
		return nil
	}

	group := graph.ConditionalEdges{}
	for _, from := range previous {
		if _, ok := g.FindByVersion(from); !ok {
			p.logger.Info().
				Str("from", from).
				Str("to", r.Version).
				Msg("skipping conditional edge annotation for unknown release")
			continue
		}
		group.Edges = append(group.Edges, graph.ConditionalUpdateEdge{From: from, To: r.Version})
	}
	if len(group.Edges) == 0 {
		return nil
	}

	risk := graph.Risk{
		Name:    metadataValue(r.Metadata, MetadataKeyConditionalRiskName),
		Message: metadataValue(r.Metadata, MetadataKeyConditionalRiskMessage),
		URL:     metadataValue(r.Metadata, MetadataKeyConditionalRiskURL),
	}
	if promql, ok := r.Metadata.Get(MetadataKeyConditionalRiskPromQL); ok && promql != "" {
		risk.MatchingRules = []graph.MatchingRule{{Type: graph.MatchingRulePromQL, PromQL: &graph.PromQLQuery{PromQL: promql}}}
	} else {
		risk.MatchingRules = []graph.MatchingRule{{Type: graph.MatchingRuleAlways}}
	}
	group.Risks = []graph.Risk{risk}

	return g.AddConditionalEdges(group)
}

func splitList(md *graph.Metadata, key string) []string {
	raw, ok := md.Get(key)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func metadataValue(md *graph.Metadata, key string) string {
	v, _ := md.Get(key)
	return v
}
