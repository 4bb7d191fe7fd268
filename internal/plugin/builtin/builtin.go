// Package builtin wires the built-in plugin factories into a registry.
package builtin

import (
	"github.com/openshift/cincinnati/internal/plugin"
	"github.com/openshift/cincinnati/internal/plugin/builtin/archfilter"
	"github.com/openshift/cincinnati/internal/plugin/builtin/channelfilter"
	"github.com/openshift/cincinnati/internal/plugin/builtin/edgeaddremove"
	"github.com/openshift/cincinnati/internal/plugin/builtin/graphfetch"
	"github.com/openshift/cincinnati/internal/plugin/builtin/noderemove"
	"github.com/openshift/cincinnati/internal/plugin/builtin/registryscrape"
	"github.com/openshift/cincinnati/internal/plugin/builtin/secondarymeta"
	"github.com/openshift/cincinnati/internal/plugin/builtin/versioned"
)

// Register adds every built-in plugin factory to the registry.
func Register(r *plugin.Registry) error {
	factories := map[string]plugin.Factory{
		archfilter.Name:                   archfilter.Factory,
		channelfilter.Name:                channelfilter.Factory,
		edgeaddremove.Name:                edgeaddremove.Factory,
		noderemove.Name:                   noderemove.Factory,
		versioned.Name:                    versioned.Factory,
		graphfetch.Name:                   graphfetch.Factory,
		registryscrape.Name:               registryscrape.Factory,
		secondarymeta.ScrapeGithubName:    secondarymeta.GithubFactory,
		secondarymeta.ScrapeGitName:       secondarymeta.GitFactory,
		secondarymeta.ScrapeDockerv2Name:  secondarymeta.Dockerv2Factory,
		secondarymeta.ParseName:           secondarymeta.ParseFactory,
	}
	for name, factory := range factories {
		if err := r.Register(name, factory); err != nil {
			return err
		}
	}
	return nil
}
