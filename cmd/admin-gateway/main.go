// Package main provides the admin-gateway server entry point.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/cloudcompute/admin-gateway/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "admin-gateway",
	Short: "Administrative action gateway for the compute control plane",
	Long: `admin-gateway serves administrative actions on compute instances
(pause, migrate, createBackup, os-resetState, ...) and host administration.

Configuration is read from --config (or admin-gateway.yaml in the working
directory or /etc/admin-gateway), ADMIN_GATEWAY_* environment variables and
flags, in increasing precedence.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server, conductor workers and history retention",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			glog.Fatalf("Failed to load config: %v", err)
		}
		return serve(cmd.Context(), cfg)
	},
}

var routesCmd = &cobra.Command{
	Use:   "actions",
	Short: "List the registered admin actions and their compatible states",
	RunE: func(cmd *cobra.Command, _ []string) error {
		printActions(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	config.RegisterFlags(serveCmd.Flags())

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(routesCmd)
}

func main() {
	// glog is used for fatal startup errors only.
	_ = flag.Set("logtostderr", "true")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
