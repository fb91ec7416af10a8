package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Build info, set via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if err := newRootCmd(log).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(log *logrus.Logger) *cobra.Command {
	var logLevel, logFormat string

	root := &cobra.Command{
		Use:   "gheregistry",
		Short: "GitHub Enterprise server registry",
		Long: `gheregistry keeps track of GitHub Enterprise servers per organization.

Servers are only accepted after their API endpoint has been probed and
identified as GitHub. Registered servers are re-checked in the background
and reachability changes are streamed to connected clients.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return configureLogger(log, logLevel, logFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level (trace, debug, info, warn, error, fatal)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text",
		"Log format (text, json)")

	root.AddCommand(
		newServerCmd(log),
		newMigrateCmd(log),
		newProbeCmd(log),
		newVersionCmd(),
	)

	return root
}

// configureLogger applies the --log-level and --log-format flags to log.
func configureLogger(log *logrus.Logger, level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}

	log.SetLevel(lvl)

	switch format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	return nil
}
