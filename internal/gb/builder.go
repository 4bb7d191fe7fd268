// Package gb drives the graph builder: a periodic build loop that publishes
// immutable graph snapshots read lock-free by the HTTP layer.
package gb

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/openshift/cincinnati/internal/graph"
	"github.com/openshift/cincinnati/internal/metrics"
	"github.com/openshift/cincinnati/internal/plugin"
	cincerrors "github.com/openshift/cincinnati/pkg/errors"
)

// Snapshot is one published build result. Snapshots are immutable; readers
// hold them across a request while the loop publishes successors.
type Snapshot struct {
	Graph   *graph.Graph
	JSON    []byte
	BuiltAt time.Time
}

// Builder owns the build loop and the snapshot slot. Exactly one build runs
// at a time; publication is an atomic pointer swap, so readers never block.
type Builder struct {
	newPipeline func() (*plugin.Pipeline, error)
	pause       time.Duration
	timeout     time.Duration
	logger      zerolog.Logger

	slot atomic.Pointer[Snapshot]
}

// New creates a builder. newPipeline is called once per build attempt so
// every attempt runs a fresh pipeline instance.
func New(newPipeline func() (*plugin.Pipeline, error), pause, timeout time.Duration, logger zerolog.Logger) *Builder {
	return &Builder{
		newPipeline: newPipeline,
		pause:       pause,
		timeout:     timeout,
		logger:      logger,
	}
}

// Snapshot returns the current snapshot, or nil before the first success.
func (b *Builder) Snapshot() *Snapshot {
	return b.slot.Load()
}

// Ready reports whether a snapshot has been published.
func (b *Builder) Ready() bool {
	return b.slot.Load() != nil
}

// Run executes build attempts separated by the configured pause until ctx
// is cancelled. A failed attempt leaves the previous snapshot intact.
func (b *Builder) Run(ctx context.Context) {
	for {
		if err := b.BuildOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Error().Err(err).Msg("graph build failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.pause):
		}
	}
}

// BuildOnce runs a single build attempt bounded by the scrape timeout and
// publishes the result on success.
func (b *Builder) BuildOnce(ctx context.Context) error {
	buildCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()
	pipeline, err := b.newPipeline()
	if err != nil {
		metrics.BuildAttempts.WithLabelValues("pipeline_error").Inc()
		return err
	}

	out, err := pipeline.Run(buildCtx, plugin.IO{Graph: graph.New(), Parameters: plugin.Parameters{}})
	duration := time.Since(start)
	metrics.BuildDuration.Observe(duration.Seconds())

	if err != nil {
		metrics.BuildAttempts.WithLabelValues(buildFailureReason(err)).Inc()
		return err
	}

	data, err := json.Marshal(out.Graph)
	if err != nil {
		metrics.BuildAttempts.WithLabelValues("serialize_failed").Inc()
		return err
	}

	snapshot := &Snapshot{Graph: out.Graph, JSON: data, BuiltAt: time.Now()}
	b.slot.Store(snapshot)

	metrics.BuildAttempts.WithLabelValues("success").Inc()
	metrics.GraphLastUpdated.SetToCurrentTime()
	metrics.GraphNodes.Set(float64(out.Graph.Len()))
	b.logger.Info().
		Int("nodes", out.Graph.Len()).
		Int("edges", len(out.Graph.Edges())).
		Dur("duration", duration).
		Msg("graph published")
	return nil
}

// buildFailureReason maps a build error onto the failure taxonomy used in
// metrics and logs.
func buildFailureReason(err error) string {
	var cycle *graph.CycleError
	if errors.As(err, &cycle) {
		return "cycle_detected"
	}
	var parse *cincerrors.ParseError
	if errors.As(err, &parse) {
		return "parse_failed"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "scrape_failed"
}
