// Package metrics declares the prometheus collectors shared by both
// services. Collectors are package-level and registered onto a registry
// owned by the caller so tests can use isolated registries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PluginDuration tracks per-plugin transform latency.
	PluginDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cincinnati_plugin_duration_seconds",
			Help:    "Duration of plugin transforms in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"plugin"},
	)

	// PluginRuns counts plugin transform outcomes.
	PluginRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cincinnati_plugin_runs_total",
			Help: "Total number of plugin transforms by outcome",
		},
		[]string{"plugin", "result"},
	)

	// BuildAttempts counts graph builder build outcomes.
	BuildAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cincinnati_gb_build_attempts_total",
			Help: "Total number of graph build attempts by outcome",
		},
		[]string{"result"},
	)

	// BuildDuration tracks graph build latency.
	BuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cincinnati_gb_build_duration_seconds",
			Help:    "Duration of graph builds in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// GraphLastUpdated records the publication time of the current snapshot.
	GraphLastUpdated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cincinnati_gb_graph_last_updated_timestamp_seconds",
			Help: "Unix timestamp of the last successful snapshot publication",
		},
	)

	// GraphNodes records the node count of the current snapshot.
	GraphNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cincinnati_gb_graph_nodes",
			Help: "Number of releases in the current snapshot",
		},
	)

	// ScrapeWarnings counts tolerated per-tag scrape failures.
	ScrapeWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cincinnati_gb_scrape_warnings_total",
			Help: "Total number of tolerated scrape warnings by reason",
		},
		[]string{"reason"},
	)

	// UpstreamRequests counts upstream graph fetches by outcome.
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cincinnati_pe_upstream_requests_total",
			Help: "Total number of upstream graph requests by outcome",
		},
		[]string{"result"},
	)

	// UpstreamCacheHits counts graph-fetch cache hits.
	UpstreamCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cincinnati_pe_upstream_cache_hits_total",
			Help: "Total number of upstream graph cache hits",
		},
	)

	// HTTPRequests counts served HTTP requests.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cincinnati_http_requests_total",
			Help: "Total number of HTTP requests by path and status",
		},
		[]string{"path", "status"},
	)

	// HTTPDuration tracks HTTP handler latency.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cincinnati_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

// Register attaches every collector to the given registry.
func Register(r *prometheus.Registry) {
	r.MustRegister(
		PluginDuration,
		PluginRuns,
		BuildAttempts,
		BuildDuration,
		GraphLastUpdated,
		GraphNodes,
		ScrapeWarnings,
		UpstreamRequests,
		UpstreamCacheHits,
		HTTPRequests,
		HTTPDuration,
	)
}
