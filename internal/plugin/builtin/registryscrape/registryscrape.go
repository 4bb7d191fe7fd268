// Package registryscrape builds the initial graph by scraping release
// payloads from a container registry. Tags carrying a Cincinnati primary
// metadata document become nodes; their previous/next lists become edges.
package registryscrape

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	version "github.com/hashicorp/go-version"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/openshift/cincinnati/internal/dockerv2"
	"github.com/openshift/cincinnati/internal/graph"
	"github.com/openshift/cincinnati/internal/metrics"
	"github.com/openshift/cincinnati/internal/plugin"
)

// Name is the registry name of this plugin.
const Name = "release-scrape-dockerv2"

// DefaultFetchConcurrency bounds parallel manifest fetches.
const DefaultFetchConcurrency = 16

// MetadataKind is the required kind of the primary metadata document.
const MetadataKind = "cincinnati-metadata-v0"

// primaryMetadata is the JSON document embedded in release payloads.
type primaryMetadata struct {
	Kind     string            `json:"kind"`
	Version  string            `json:"version"`
	Previous []string          `json:"previous"`
	Next     []string          `json:"next"`
	Metadata map[string]string `json:"metadata"`
}

// Scraper scrapes one registry repository into a graph.
type Scraper struct {
	client      dockerv2.Client
	registry    string
	repository  string
	concurrency int
	logger      zerolog.Logger
}

// New creates a scrape plugin over the given registry capability.
func New(client dockerv2.Client, registry, repository string, concurrency int, logger zerolog.Logger) *Scraper {
	if concurrency <= 0 {
		concurrency = DefaultFetchConcurrency
	}
	return &Scraper{
		client:      client,
		registry:    registry,
		repository:  repository,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Factory constructs the plugin from settings. registry and repository are
// required; credentials_path and fetch_concurrency are optional.
func Factory(settings plugin.Settings) (plugin.Interface, error) {
	registry, err := settings.Require("registry")
	if err != nil {
		return nil, err
	}
	repository, err := settings.Require("repository")
	if err != nil {
		return nil, err
	}
	concurrency, err := settings.Int("fetch_concurrency", DefaultFetchConcurrency)
	if err != nil {
		return nil, err
	}

	var opts []dockerv2.Option
	if path := settings.String("credentials_path", ""); path != "" {
		opts = append(opts, dockerv2.WithCredentialsFile(path, registry))
	}
	client := dockerv2.NewHTTPClient(registry, opts...)
	return New(client, registry, repository, concurrency, zerolog.Nop()), nil
}

func (s *Scraper) Name() string {
	return Name
}

func (s *Scraper) Phase() plugin.Phase {
	return plugin.PhaseExternal
}

type scraped struct {
	tag    string
	digest string
	meta   *primaryMetadata
	err    error
}

// Transform replaces the pipeline graph with a fresh scrape of the
// repository. Per-tag failures are tolerated as long as at least one tag
// yields a release; they are surfaced through the warning counter.
func (s *Scraper) Transform(ctx context.Context, io plugin.IO) (plugin.IO, error) {
	tags, err := s.client.ListTags(ctx, s.repository)
	if err != nil {
		return plugin.IO{}, fmt.Errorf("list tags for %s/%s: %w", s.registry, s.repository, err)
	}

	results := make([]scraped, len(tags))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrency)
	for i, tag := range tags {
		eg.Go(func() error {
			digest, meta, err := s.scrapeTag(egCtx, tag)
			results[i] = scraped{tag: tag, digest: digest, meta: meta, err: err}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return plugin.IO{}, err
	}
	if err := ctx.Err(); err != nil {
		return plugin.IO{}, err
	}

	// Resolve duplicates in tag order so the scrape is deterministic:
	// the first observed version wins.
	accepted := make([]scraped, 0, len(results))
	seen := make(map[string]string)
	failures := 0
	for _, r := range results {
		switch {
		case r.err != nil:
			failures++
			metrics.ScrapeWarnings.WithLabelValues("fetch_failed").Inc()
			s.logger.Warn().Str("tag", r.tag).Err(r.err).Msg("skipping unscrapable tag")
		case r.meta == nil:
			// Tag without a primary metadata document; not a release payload.
		case seen[r.meta.Version] != "":
			metrics.ScrapeWarnings.WithLabelValues("duplicate_version").Inc()
			s.logger.Warn().
				Str("tag", r.tag).
				Str("version", r.meta.Version).
				Str("kept_tag", seen[r.meta.Version]).
				Msg("dropping duplicate release version")
		default:
			seen[r.meta.Version] = r.tag
			accepted = append(accepted, r)
		}
	}

	if len(accepted) == 0 && failures > 0 {
		return plugin.IO{}, fmt.Errorf("scrape of %s/%s failed for all %d tags", s.registry, s.repository, failures)
	}

	io.Graph = s.buildGraph(accepted)
	return io, nil
}

// scrapeTag fetches one tag's manifest and primary metadata document. A nil
// metadata return means the tag is not a release payload.
func (s *Scraper) scrapeTag(ctx context.Context, tag string) (string, *primaryMetadata, error) {
	manifest, digest, err := s.client.FetchManifest(ctx, s.repository, tag)
	if err != nil {
		return "", nil, fmt.Errorf("fetch manifest: %w", err)
	}

	var parsed struct {
		Config struct {
			Digest string `json:"digest"`
		} `json:"config"`
	}
	if err := json.Unmarshal(manifest, &parsed); err != nil || parsed.Config.Digest == "" {
		// Not an image manifest (e.g. a manifest list); skip quietly.
		return digest, nil, nil
	}

	blob, err := s.client.FetchBlob(ctx, s.repository, parsed.Config.Digest)
	if err != nil {
		return "", nil, fmt.Errorf("fetch config blob: %w", err)
	}

	var meta primaryMetadata
	if err := json.Unmarshal(blob, &meta); err != nil {
		return digest, nil, nil
	}
	if meta.Kind != MetadataKind {
		return digest, nil, nil
	}
	if meta.Version == "" {
		metrics.ScrapeWarnings.WithLabelValues("malformed_metadata").Inc()
		s.logger.Warn().Str("tag", tag).Msg("skipping metadata document without version")
		return digest, nil, nil
	}
	return digest, &meta, nil
}

// buildGraph assembles nodes ordered by semantic version and the edges
// declared by each release's previous/next lists. Endpoints not present in
// the scrape are skipped.
func (s *Scraper) buildGraph(accepted []scraped) *graph.Graph {
	sort.SliceStable(accepted, func(i, j int) bool {
		vi, erri := version.NewVersion(accepted[i].meta.Version)
		vj, errj := version.NewVersion(accepted[j].meta.Version)
		if erri != nil || errj != nil {
			return accepted[i].meta.Version < accepted[j].meta.Version
		}
		return vi.LessThan(vj)
	})

	g := graph.New()
	for _, r := range accepted {
		md := graph.NewMetadata()
		for _, key := range sortedKeys(r.meta.Metadata) {
			md.Set(key, r.meta.Metadata[key])
		}
		md.Set(graph.MetadataKeyManifestRef, r.digest)

		payload := fmt.Sprintf("%s/%s@%s", s.registry, s.repository, r.digest)
		if _, err := g.AddRelease(graph.Release{Version: r.meta.Version, Payload: payload, Metadata: md}); err != nil {
			// Duplicates were resolved above; anything here is a bug.
			s.logger.Error().Str("version", r.meta.Version).Err(err).Msg("dropping release")
		}
	}

	for _, r := range accepted {
		for _, previous := range r.meta.Previous {
			s.addEdge(g, previous, r.meta.Version)
		}
		for _, next := range r.meta.Next {
			s.addEdge(g, r.meta.Version, next)
		}
	}
	return g
}

func (s *Scraper) addEdge(g *graph.Graph, from, to string) {
	if _, ok := g.FindByVersion(from); !ok {
		return
	}
	if _, ok := g.FindByVersion(to); !ok {
		return
	}
	if err := g.AddEdgeByVersion(from, to); err != nil {
		metrics.ScrapeWarnings.WithLabelValues("edge_rejected").Inc()
		s.logger.Warn().Str("from", from).Str("to", to).Err(err).Msg("dropping scraped edge")
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WithLogger returns a copy of the scraper using the given logger.
func (s *Scraper) WithLogger(logger zerolog.Logger) *Scraper {
	out := *s
	out.logger = logger
	return &out
}
