package plugin

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/openshift/cincinnati/internal/metrics"
	cincerrors "github.com/openshift/cincinnati/pkg/errors"
)

// DefaultExternalTimeout bounds a single External-phase transform unless
// overridden.
const DefaultExternalTimeout = 30 * time.Second

// RunState describes where a pipeline run is in its lifecycle.
type RunState string

const (
	StatePending   RunState = "Pending"
	StateRunning   RunState = "Running"
	StateSucceeded RunState = "Succeeded"
	StateFailed    RunState = "Failed"
	StateCancelled RunState = "Cancelled"
)

// Pipeline runs an ordered list of plugins. Plugins within one run execute
// sequentially; distinct runs of the same pipeline may execute concurrently,
// so plugins holding state (caches) must be safe for concurrent Transform
// calls.
type Pipeline struct {
	plugins         []Interface
	logger          zerolog.Logger
	externalTimeout time.Duration
}

// Option configures a pipeline.
type Option func(*Pipeline)

// WithLogger injects the pipeline logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithExternalTimeout overrides the per-plugin timeout applied to
// External-phase transforms. Zero disables the timeout.
func WithExternalTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.externalTimeout = d
	}
}

// NewPipeline constructs a pipeline over the given plugins.
func NewPipeline(plugins []Interface, opts ...Option) *Pipeline {
	p := &Pipeline{
		plugins:         plugins,
		logger:          zerolog.Nop(),
		externalTimeout: DefaultExternalTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plugins returns the ordered plugin list.
func (p *Pipeline) Plugins() []Interface {
	out := make([]Interface, len(p.plugins))
	copy(out, p.plugins)
	return out
}

// Run invokes each plugin in order, feeding the output of step i into step
// i+1. The first error aborts the run, wrapped with the plugin's name and
// phase. Cancellation of ctx stops the run before the next step starts and
// interrupts the running plugin at its next suspension point.
func (p *Pipeline) Run(ctx context.Context, io IO) (IO, error) {
	logger := p.logger
	if id, ok := io.Parameters[ParamRequestID]; ok {
		logger = logger.With().Str("request_id", id).Logger()
	}
	logger.Debug().Str("state", string(StatePending)).Int("plugins", len(p.plugins)).Msg("pipeline run")

	current := io
	for step, plug := range p.plugins {
		if err := ctx.Err(); err != nil {
			logger.Warn().Str("state", string(StateCancelled)).Int("step", step).Msg("pipeline run")
			return IO{}, cincerrors.NewPluginError(plug.Name(), string(plug.Phase()), err)
		}

		logger.Debug().
			Str("state", string(StateRunning)).
			Int("step", step).
			Str("plugin", plug.Name()).
			Str("phase", string(plug.Phase())).
			Msg("pipeline run")

		start := time.Now()
		next, err := p.runStep(ctx, plug, current)
		duration := time.Since(start)
		metrics.PluginDuration.WithLabelValues(plug.Name()).Observe(duration.Seconds())

		if err != nil {
			metrics.PluginRuns.WithLabelValues(plug.Name(), "failure").Inc()
			state := StateFailed
			if errors.Is(err, context.Canceled) {
				state = StateCancelled
			}
			logger.Warn().
				Str("state", string(state)).
				Int("step", step).
				Str("plugin", plug.Name()).
				Dur("duration", duration).
				Err(err).
				Msg("pipeline run")
			return IO{}, cincerrors.NewPluginError(plug.Name(), string(plug.Phase()), err)
		}

		metrics.PluginRuns.WithLabelValues(plug.Name(), "success").Inc()
		logger.Debug().
			Int("step", step).
			Str("plugin", plug.Name()).
			Dur("duration", duration).
			Msg("plugin transform done")
		current = next
	}

	logger.Debug().Str("state", string(StateSucceeded)).Msg("pipeline run")
	return current, nil
}

// runStep applies the per-phase timeout and shields the pipeline from a
// transform that ignores cancellation: on timeout or cancellation the step
// returns even if the plugin goroutine is still draining.
func (p *Pipeline) runStep(ctx context.Context, plug Interface, io IO) (IO, error) {
	if plug.Phase() == PhaseExternal && p.externalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.externalTimeout)
		defer cancel()
	}

	type result struct {
		io  IO
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := plug.Transform(ctx, io)
		done <- result{io: out, err: err}
	}()

	select {
	case r := <-done:
		return r.io, r.err
	case <-ctx.Done():
		return IO{}, ctx.Err()
	}
}
