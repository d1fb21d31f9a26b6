// pipewatch observes the candidate pipeline of validator nodes through
// their Jaeger traces and republishes per-stage latency and liveness
// metrics for scraping.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pipewatch/pipewatch/internal/config"
)

var (
	cfgFile  string
	logLevel string
	logger   *zap.Logger
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pipewatch",
	Short: "Candidate pipeline metrics from Jaeger traces",
	Long: `pipewatch queries a Jaeger backend for validator traces, correlates
candidate hash and stage tags across each trace's span tree, and exports
per-stage latency histograms and per-candidate liveness gauges.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if logLevel == "debug" {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		cfg, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (info, debug)")
	rootCmd.PersistentFlags().String("url", "http://localhost:16686", "Jaeger query service URL")
	rootCmd.PersistentFlags().String("service", "", "service reporting to the backend to query traces for")
	rootCmd.PersistentFlags().Int("limit", 50, "maximum number of traces to return per query")
	rootCmd.PersistentFlags().String("lookback", "1h", "how far back to search for traces")
	rootCmd.PersistentFlags().Bool("pretty-print", false, "indent JSON output")
}
