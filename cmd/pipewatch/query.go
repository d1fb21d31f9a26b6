package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pipewatch/pipewatch/internal/jaeger"
)

var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "Search traces and print the backend response",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()
		client := newClient()
		body, err := client.RawSearch(cmd.Context(), jaeger.SearchParams{
			Service:  cfg.Service,
			Limit:    cfg.Limit,
			Lookback: cfg.Lookback,
		})
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Fetch a single trace by its hex ID",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()
		id, _ := cmd.Flags().GetString("id")
		client := newClient()
		body, err := client.RawTrace(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List services reporting to the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()
		client := newClient()
		body, err := client.RawServices(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

func newClient() *jaeger.Client {
	return jaeger.NewClient(
		cfg.URL,
		&http.Client{Timeout: cfg.Daemon.FetchTimeout},
		jaeger.ClientOptions{RequestsPerSecond: cfg.Daemon.RateLimitRPS},
		logger,
	)
}

func printJSON(body []byte) error {
	if cfg.PrettyPrint {
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err != nil {
			return fmt.Errorf("indent response: %w", err)
		}
		body = buf.Bytes()
	}
	fmt.Println(string(body))
	return nil
}

func init() {
	traceCmd.Flags().String("id", "", "hex trace ID, e.g. 3c58a09870e2dced")
	traceCmd.MarkFlagRequired("id")

	rootCmd.AddCommand(tracesCmd, traceCmd, servicesCmd)
}
