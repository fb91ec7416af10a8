package main

import (
	"context"

	"github.com/ethpandaops/gheregistry/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newMigrateCmd(log *logrus.Logger) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long: `Create the servers schema in the configured database and report how many
servers it holds. The server command migrates on startup as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			return runMigrate(cmd.Context(), log, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml",
		"Path to configuration file")

	return cmd
}

func runMigrate(ctx context.Context, log logrus.FieldLogger, cfg *config.Config) error {
	log = log.WithField("driver", cfg.Database.Driver)

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

	servers, err := st.ListServers(ctx)
	if err != nil {
		return err
	}

	log.WithField("servers", len(servers)).Info("Database schema is up to date")

	return nil
}
