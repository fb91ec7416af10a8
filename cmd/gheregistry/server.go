package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/gheregistry/pkg/api"
	"github.com/ethpandaops/gheregistry/pkg/auth"
	"github.com/ethpandaops/gheregistry/pkg/config"
	"github.com/ethpandaops/gheregistry/pkg/github"
	"github.com/ethpandaops/gheregistry/pkg/metrics"
	"github.com/ethpandaops/gheregistry/pkg/registry"
	"github.com/ethpandaops/gheregistry/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServerCmd(log *logrus.Logger) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the gheregistry server",
		Long:  `Start the HTTP API server and the reachability monitor.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), log, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml",
		"Path to configuration file")

	return cmd
}

// newStore builds the store for the configured database driver.
func newStore(log logrus.FieldLogger, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return store.NewSQLiteStore(log, cfg.Database.SQLite.Path), nil
	case "postgres":
		return store.NewPostgresStore(log, cfg.GetDSN()), nil
	case "redis":
		return store.NewRedisStore(log, &redis.Options{
			Addr:     cfg.Database.Redis.Addr,
			Password: cfg.Database.Redis.Password,
			DB:       cfg.Database.Redis.DB,
		}, cfg.Database.Redis.KeyPrefix), nil
	case "memory":
		return store.NewMemoryStore(log), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

func runServer(ctx context.Context, log *logrus.Logger, configPath string) error {
	log.WithField("path", configPath).Info("Loading configuration")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Info("Configuration loaded:\n" + cfg.String())

	st, err := newStore(log, cfg)
	if err != nil {
		return err
	}

	if err := st.Start(ctx); err != nil {
		return err
	}

	defer st.Stop()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	m := metrics.New()
	m.SetBuildInfo(Version, GitCommit, BuildDate)

	prober := github.NewProber(log, cfg.Probe, m, nil)

	registrySvc := registry.NewService(log, st, prober, m)

	if err := registrySvc.Start(ctx); err != nil {
		return err
	}

	defer registrySvc.Stop()

	authSvc := auth.NewService(log, cfg.Auth)

	if err := authSvc.Start(ctx); err != nil {
		return err
	}

	defer authSvc.Stop()

	monitor := github.NewMonitor(log, prober, st, m, cfg.Probe.MonitorInterval)

	// The API server registers its callbacks on the monitor, so it is
	// created before the monitor runs its first check.
	srv := api.NewServer(log, cfg, st, registrySvc, authSvc, monitor, m)

	if err := monitor.Start(ctx); err != nil {
		return err
	}

	defer monitor.Stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}

	defer srv.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.WithField("addr", srv.Addr()).Info("Server is running. Press Ctrl+C to stop.")

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig).Info("Received shutdown signal")
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	log.Info("Shutting down...")

	return nil
}
