package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openshift/cincinnati/internal/config"
	"github.com/openshift/cincinnati/internal/gb"
	"github.com/openshift/cincinnati/internal/logger"
	"github.com/openshift/cincinnati/internal/metrics"
	"github.com/openshift/cincinnati/internal/plugin"
	"github.com/openshift/cincinnati/internal/plugin/builtin"
	"github.com/openshift/cincinnati/internal/server"
)

// envPrefix namespaces environment overrides: GB_SERVICE_PORT and friends.
const envPrefix = "GB"

type rootFlags struct {
	configPath string
	verbosity  int
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "graph-builder",
		Short:         "Builds and serves the canonical update graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGraphBuilder(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Path to the TOML configuration file")
	cmd.PersistentFlags().CountVarP(&flags.verbosity, "verbose", "v", "Increase verbosity (-v, -vv, -vvv)")
	cmd.MarkFlagRequired("config")

	return cmd
}

func runGraphBuilder(ctx context.Context, flags *rootFlags) error {
	cfg, err := config.Load(flags.configPath, envPrefix)
	if err != nil {
		return err
	}

	log := logger.New("graph-builder", flags.verbosity)

	registry := plugin.NewRegistry()
	if err := builtin.Register(registry); err != nil {
		return err
	}

	plugins, err := cfg.Plugins()
	if err != nil {
		return err
	}
	if len(plugins) == 0 {
		return fmt.Errorf("configuration declares no plugins")
	}

	// Every build attempt runs a fresh pipeline instance; resolve the
	// configuration once at startup so bad plugin settings fail fast.
	newPipeline := func() (*plugin.Pipeline, error) {
		instances := make([]plugin.Interface, 0, len(plugins))
		for _, entry := range plugins {
			p, err := registry.New(entry.Name, entry.Settings)
			if err != nil {
				return nil, err
			}
			instances = append(instances, p)
		}
		return plugin.NewPipeline(instances, plugin.WithLogger(logger.Component(log, "pipeline"))), nil
	}
	if _, err := newPipeline(); err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	metrics.Register(promRegistry)

	builder := gb.New(
		newPipeline,
		secondsDuration(cfg.Service.PauseSecs),
		secondsDuration(cfg.Service.ScrapeTimeoutSecs),
		logger.Component(log, "graph-builder"),
	)

	router := server.NewRouter(logger.Component(log, "http"))
	gb.NewHandler(builder).RegisterRoutes(router, cfg.Service.PathPrefix)
	statusRouter := server.NewStatusRouter(builder.Ready, promRegistry)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		builder.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		return server.Serve(groupCtx, listenAddr(cfg.Service.Address, cfg.Service.Port), router, logger.Component(log, "http"))
	})
	group.Go(func() error {
		return server.Serve(groupCtx, listenAddr(cfg.Status.Address, cfg.Status.Port), statusRouter, logger.Component(log, "status"))
	})

	log.Info().Str("config", flags.configPath).Msg("graph builder started")
	if err := group.Wait(); err != nil {
		return &runtimeError{err: err}
	}
	log.Info().Msg("graph builder stopped")
	return nil
}

func listenAddr(address string, port int) string {
	return net.JoinHostPort(address, strconv.Itoa(port))
}
