// Package graphfetch sources the policy engine's graph from an upstream
// Cincinnati endpoint, with a TTL cache and single-flight coalescing so a
// burst of cold requests costs one upstream call.
package graphfetch

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openshift/cincinnati/internal/graph"
	"github.com/openshift/cincinnati/internal/metrics"
	"github.com/openshift/cincinnati/internal/plugin"
	cincerrors "github.com/openshift/cincinnati/pkg/errors"
)

// Name is the registry name of this plugin.
const Name = "cincinnati-graph-fetch"

// Defaults applied when the corresponding setting is absent.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultCacheTTL       = 60 * time.Second
)

type cacheEntry struct {
	graph   *graph.Graph
	fetched time.Time
}

// GraphFetch fetches and caches the upstream graph. Safe for concurrent use
// by parallel pipeline runs.
type GraphFetch struct {
	upstream string
	ttl      time.Duration
	client   *http.Client

	group singleflight.Group
	mu    sync.RWMutex
	cache *cacheEntry
}

// New creates a graph-fetch plugin against the given upstream URL.
func New(upstream string, requestTimeout, cacheTTL time.Duration) *GraphFetch {
	return &GraphFetch{
		upstream: upstream,
		ttl:      cacheTTL,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

// Factory constructs the plugin from settings. The upstream option is
// required; request_timeout and cache_ttl are whole seconds.
func Factory(settings plugin.Settings) (plugin.Interface, error) {
	upstream, err := settings.Require("upstream")
	if err != nil {
		return nil, err
	}
	timeout, err := settings.Seconds("request_timeout", DefaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	ttl, err := settings.Seconds("cache_ttl", DefaultCacheTTL)
	if err != nil {
		return nil, err
	}
	return New(upstream, timeout, ttl), nil
}

func (p *GraphFetch) Name() string {
	return Name
}

func (p *GraphFetch) Phase() plugin.Phase {
	return plugin.PhaseExternal
}

// Transform replaces the pipeline graph with the upstream graph, from cache
// when fresh. Parameters pass through untouched.
func (p *GraphFetch) Transform(ctx context.Context, io plugin.IO) (plugin.IO, error) {
	g, err := p.graph(ctx)
	if err != nil {
		return plugin.IO{}, err
	}
	io.Graph = g
	return io, nil
}

func (p *GraphFetch) graph(ctx context.Context) (*graph.Graph, error) {
	if g, ok := p.fresh(); ok {
		metrics.UpstreamCacheHits.Inc()
		return g, nil
	}

	// All concurrent cold callers share one upstream request. A failed
	// fetch is not cached; the next request retries.
	v, err, _ := p.group.Do("graph", func() (interface{}, error) {
		if g, ok := p.fresh(); ok {
			metrics.UpstreamCacheHits.Inc()
			return g, nil
		}
		g, err := p.fetch(ctx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.cache = &cacheEntry{graph: g, fetched: time.Now()}
		p.mu.Unlock()
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*graph.Graph), nil
}

func (p *GraphFetch) fresh() (*graph.Graph, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cache == nil || time.Since(p.cache.fetched) > p.ttl {
		return nil, false
	}
	return p.cache.graph, true
}

func (p *GraphFetch) fetch(ctx context.Context) (*graph.Graph, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.upstream, nil)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("error").Inc()
		return nil, cincerrors.NewUpstreamError(cincerrors.UpstreamKindUnreachable, 0, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("error").Inc()
		return nil, cincerrors.NewUpstreamError(cincerrors.UpstreamKindUnreachable, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamRequests.WithLabelValues("bad_status").Inc()
		return nil, cincerrors.NewUpstreamError(cincerrors.UpstreamKindBadStatus, resp.StatusCode,
			fmt.Errorf("upstream returned %s", resp.Status))
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			metrics.UpstreamRequests.WithLabelValues("malformed").Inc()
			return nil, cincerrors.NewUpstreamError(cincerrors.UpstreamKindMalformed, resp.StatusCode, err)
		}
		defer gz.Close()
		body = gz
	}

	data, err := io.ReadAll(body)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("error").Inc()
		return nil, cincerrors.NewUpstreamError(cincerrors.UpstreamKindUnreachable, resp.StatusCode, err)
	}

	g := graph.New()
	if err := json.Unmarshal(data, g); err != nil {
		metrics.UpstreamRequests.WithLabelValues("malformed").Inc()
		return nil, cincerrors.NewUpstreamError(cincerrors.UpstreamKindMalformed, resp.StatusCode, err)
	}

	metrics.UpstreamRequests.WithLabelValues("success").Inc()
	return g, nil
}
