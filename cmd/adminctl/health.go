package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check gateway liveness and readiness",
	Long: `Check gateway liveness and readiness. The command fails when the
gateway is up but not ready, so it can gate deploy scripts.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, _ []string) error {
	client := newClient()

	var live struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	if err := client.getJSON("/healthz", &live); err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}

	var ready struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	code, err := client.getStatus("/readyz", &ready)
	if err != nil {
		ready.Status, ready.Reason = "unknown", err.Error()
	}

	h := gatewayHealth{Liveness: live.Status, Uptime: live.Uptime, Readiness: ready.Status, Reason: ready.Reason}
	if err := fieldReport(h,
		[2]string{"Liveness", h.Liveness},
		[2]string{"Uptime", h.Uptime},
		[2]string{"Readiness", h.Readiness},
		[2]string{"Reason", h.Reason},
	).write(cmd.OutOrStdout()); err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("gateway is not ready: %s", h.Readiness)
	}
	return nil
}
