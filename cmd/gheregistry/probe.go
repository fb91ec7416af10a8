package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/ethpandaops/gheregistry/pkg/config"
	"github.com/ethpandaops/gheregistry/pkg/github"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newProbeCmd(log *logrus.Logger) *cobra.Command {
	var cfg config.ProbeConfig

	cmd := &cobra.Command{
		Use:   "probe <api-url>",
		Short: "Check whether a URL is a GitHub API endpoint",
		Long: `Probe a URL the same way the server does before registering it and
print the result as JSON. Exits non-zero when the URL is not accepted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd.Context(), log, cfg, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", 10*time.Second,
		"Probe timeout")
	cmd.Flags().StringVar(&cfg.UserAgent, "user-agent", "gheregistry",
		"User-Agent header sent with the probe")
	cmd.Flags().StringVar(&cfg.Token, "token", os.Getenv("GITHUB_TOKEN"),
		"Bearer token sent with the probe (defaults to $GITHUB_TOKEN)")

	return cmd
}

func runProbe(
	ctx context.Context,
	log logrus.FieldLogger,
	cfg config.ProbeConfig,
	apiURL string,
	out io.Writer,
) error {
	prober := github.NewProber(log, cfg, nil, nil)

	result, probeErr := prober.Probe(ctx, apiURL)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if err := enc.Encode(result); err != nil {
		return err
	}

	return probeErr
}
