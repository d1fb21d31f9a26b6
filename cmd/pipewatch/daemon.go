package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pipewatch/pipewatch/internal/candidate"
	"github.com/pipewatch/pipewatch/internal/daemon"
	"github.com/pipewatch/pipewatch/internal/jaeger"
	"github.com/pipewatch/pipewatch/internal/metrics"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the metrics exporter daemon",
	Long: `Periodically fetch traces for the configured service (or every
service the backend knows about), resolve candidate stages across each
trace's span tree and expose cumulative metrics on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		// The only fatal error class; nothing past this point may
		// terminate the process.
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if err := candidate.ValidateStageTable(); err != nil {
			return err
		}

		agg := metrics.NewAggregator()
		client := jaeger.NewClient(
			cfg.URL,
			&http.Client{Timeout: cfg.Daemon.FetchTimeout},
			jaeger.ClientOptions{RequestsPerSecond: cfg.Daemon.RateLimitRPS},
			logger,
		)
		d := daemon.New(cfg, client, agg, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Info("Starting pipewatch daemon",
			zap.String("url", cfg.URL),
			zap.String("service", cfg.Service),
			zap.String("lookback", cfg.Lookback),
			zap.Int("limit", cfg.Limit),
		)
		return d.Run(ctx)
	},
}

func init() {
	daemonCmd.Flags().Int("frequency", 5000, "tick interval in milliseconds")
	daemonCmd.Flags().Int("port", 9186, "metrics endpoint port")
	daemonCmd.Flags().Bool("recurse-parents", false, "search ancestor spans for missing attributes")
	daemonCmd.Flags().Bool("recurse-children", false, "search descendant spans for missing attributes (slower)")
	daemonCmd.Flags().Bool("include-unknown", false, "count stage-only spans under a sentinel candidate and keep unknown stage labels")
	daemonCmd.Flags().Int("max-hops", 16, "traversal bound for attribute resolution")

	rootCmd.AddCommand(daemonCmd)
}
