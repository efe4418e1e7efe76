package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var healthcheckTimeout time.Duration

// healthcheckCmd is the container probe: it exits non-zero unless url
// answers 2xx.
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck [url]",
	Short: "Probe a gateway endpoint and exit 0 on a 2xx response",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := "http://localhost:8774/readyz"
		if len(args) == 1 {
			url = args[0]
		}
		return probe(cmd.Context(), url, healthcheckTimeout)
	},
}

func init() {
	healthcheckCmd.Flags().DurationVar(&healthcheckTimeout, "timeout", 5*time.Second, "request timeout")
	rootCmd.AddCommand(healthcheckCmd)
}

func probe(ctx context.Context, url string, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("healthcheck failed: status %d", resp.StatusCode)
}
