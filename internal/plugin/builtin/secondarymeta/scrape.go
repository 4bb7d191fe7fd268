// Package secondarymeta fetches the secondary metadata repository into a
// working directory and folds its contents into release metadata. The
// scrape plugins only populate the directory; the parse plugin is the sole
// reader.
package secondarymeta

import (
	"context"

	"github.com/openshift/cincinnati/internal/dockerv2"
	"github.com/openshift/cincinnati/internal/plugin"
)

// Registry names of the scrape plugin variants.
const (
	ScrapeGithubName   = "secondary-metadata-scrape-github"
	ScrapeGitName      = "secondary-metadata-scrape-git"
	ScrapeDockerv2Name = "secondary-metadata-scrape-dockerv2"
)

// Verifier checks the authenticity of a fetched metadata directory, e.g.
// against a GPG signature shipped alongside it. The implementation is
// plugged in by the caller; verification internals are out of scope here.
type Verifier interface {
	Verify(ctx context.Context, dir string) error
}

// NoopVerifier accepts everything.
type NoopVerifier struct{}

// Verify implements Verifier.
func (NoopVerifier) Verify(context.Context, string) error {
	return nil
}

// Scrape materializes the metadata repository. It performs no graph
// changes; the graph and parameters pass through untouched.
type Scrape struct {
	name      string
	fetcher   Fetcher
	verifier  Verifier
	outputDir string
}

// NewScrape creates a scrape plugin around a fetcher.
func NewScrape(name string, fetcher Fetcher, verifier Verifier, outputDir string) *Scrape {
	if verifier == nil {
		verifier = NoopVerifier{}
	}
	return &Scrape{name: name, fetcher: fetcher, verifier: verifier, outputDir: outputDir}
}

// GithubFactory constructs the github tarball variant. Options: url
// (required), output_directory (required).
func GithubFactory(settings plugin.Settings) (plugin.Interface, error) {
	url, err := settings.Require("url")
	if err != nil {
		return nil, err
	}
	dir, err := settings.Require("output_directory")
	if err != nil {
		return nil, err
	}
	return NewScrape(ScrapeGithubName, &GithubTarballFetcher{URL: url}, nil, dir), nil
}

// GitFactory constructs the git clone variant. Options: repository
// (required), branch (optional), output_directory (required).
func GitFactory(settings plugin.Settings) (plugin.Interface, error) {
	repository, err := settings.Require("repository")
	if err != nil {
		return nil, err
	}
	dir, err := settings.Require("output_directory")
	if err != nil {
		return nil, err
	}
	fetcher := &GitFetcher{URL: repository, Branch: settings.String("branch", "")}
	return NewScrape(ScrapeGitName, fetcher, nil, dir), nil
}

// Dockerv2Factory constructs the container image variant. Options:
// registry, repository, output_directory (required); tag, credentials_path
// (optional).
func Dockerv2Factory(settings plugin.Settings) (plugin.Interface, error) {
	registry, err := settings.Require("registry")
	if err != nil {
		return nil, err
	}
	repository, err := settings.Require("repository")
	if err != nil {
		return nil, err
	}
	dir, err := settings.Require("output_directory")
	if err != nil {
		return nil, err
	}

	var opts []dockerv2.Option
	if path := settings.String("credentials_path", ""); path != "" {
		opts = append(opts, dockerv2.WithCredentialsFile(path, registry))
	}
	fetcher := &Dockerv2Fetcher{
		Client:     dockerv2.NewHTTPClient(registry, opts...),
		Repository: repository,
		Tag:        settings.String("tag", "latest"),
	}
	return NewScrape(ScrapeDockerv2Name, fetcher, nil, dir), nil
}

func (s *Scrape) Name() string {
	return s.name
}

func (s *Scrape) Phase() plugin.Phase {
	return plugin.PhaseExternal
}

// Transform fetches and verifies the metadata directory.
func (s *Scrape) Transform(ctx context.Context, io plugin.IO) (plugin.IO, error) {
	if err := s.fetcher.Fetch(ctx, s.outputDir); err != nil {
		return plugin.IO{}, err
	}
	if err := s.verifier.Verify(ctx, s.outputDir); err != nil {
		return plugin.IO{}, err
	}
	return io, nil
}

// WithVerifier returns a copy of the plugin using the given verifier.
func (s *Scrape) WithVerifier(v Verifier) *Scrape {
	out := *s
	out.verifier = v
	return &out
}
