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
	"github.com/openshift/cincinnati/internal/logger"
	"github.com/openshift/cincinnati/internal/metrics"
	"github.com/openshift/cincinnati/internal/pe"
	"github.com/openshift/cincinnati/internal/plugin"
	"github.com/openshift/cincinnati/internal/plugin/builtin"
	"github.com/openshift/cincinnati/internal/server"
)

// envPrefix namespaces environment overrides: PE_SERVICE_PORT and friends.
const envPrefix = "PE"

type rootFlags struct {
	configPath string
	verbosity  int
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "policy-engine",
		Short:         "Serves per-client filtered views of the update graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPolicyEngine(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Path to the TOML configuration file")
	cmd.PersistentFlags().CountVarP(&flags.verbosity, "verbose", "v", "Increase verbosity (-v, -vv, -vvv)")
	cmd.MarkFlagRequired("config")

	return cmd
}

func runPolicyEngine(ctx context.Context, flags *rootFlags) error {
	cfg, err := config.Load(flags.configPath, envPrefix)
	if err != nil {
		return err
	}

	log := logger.New("policy-engine", flags.verbosity)

	registry := plugin.NewRegistry()
	if err := builtin.Register(registry); err != nil {
		return err
	}

	entries, err := cfg.Plugins()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("configuration declares no plugins")
	}

	// One pipeline instance serves every request so source plugins keep
	// their caches across requests.
	instances := make([]plugin.Interface, 0, len(entries))
	for _, entry := range entries {
		p, err := registry.New(entry.Name, entry.Settings)
		if err != nil {
			return err
		}
		instances = append(instances, p)
	}
	pipeline := plugin.NewPipeline(instances, plugin.WithLogger(logger.Component(log, "pipeline")))

	promRegistry := prometheus.NewRegistry()
	metrics.Register(promRegistry)

	handler := pe.NewHandler(pipeline, logger.Component(log, "policy-engine"))
	router := server.NewRouter(logger.Component(log, "http"))
	handler.RegisterRoutes(router, cfg.Service.PathPrefix)
	statusRouter := server.NewStatusRouter(handler.Ready, promRegistry)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return server.Serve(groupCtx, listenAddr(cfg.Service.Address, cfg.Service.Port), router, logger.Component(log, "http"))
	})
	group.Go(func() error {
		return server.Serve(groupCtx, listenAddr(cfg.Status.Address, cfg.Status.Port), statusRouter, logger.Component(log, "status"))
	})

	log.Info().Str("config", flags.configPath).Msg("policy engine started")
	if err := group.Wait(); err != nil {
		return &runtimeError{err: err}
	}
	log.Info().Msg("policy engine stopped")
	return nil
}

func listenAddr(address string, port int) string {
	return net.JoinHostPort(address, strconv.Itoa(port))
}
