package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
	userName  string
	roleName  string
	projectID string
	token     string
)

var rootCmd = &cobra.Command{
	Use:   "adminctl",
	Short: "CLI for the compute admin action gateway",
	Long: `adminctl runs administrative actions on compute instances through
admin-gateway and inspects their history.

Callers are identified with --user/--role (header mode) or --token, which is
sent as a bearer token (jwt mode). ADMINCTL_TOKEN is used when --token is
not given.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8774", "Gateway server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&userName, "user", "", "Caller name sent as X-Remote-User")
	rootCmd.PersistentFlags().StringVar(&roleName, "role", "", "Caller role sent as X-User-Role (viewer, operator, admin)")
	rootCmd.PersistentFlags().StringVar(&projectID, "project", "", "Caller project sent as X-Project-Id")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token for jwt mode")

	for _, a := range simpleActions {
		rootCmd.AddCommand(newSimpleActionCmd(a))
	}
	rootCmd.AddCommand(backupCmd())
	rootCmd.AddCommand(liveMigrateCmd())
	rootCmd.AddCommand(resetStateCmd())
	rootCmd.AddCommand(diagnosticsCmd)
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(cloudpipeCmd())
	rootCmd.AddCommand(floatingIPsCmd())
	rootCmd.AddCommand(healthCmd)
}

// resolvedToken returns --token, falling back to ADMINCTL_TOKEN.
func resolvedToken() string {
	if token != "" {
		return token
	}
	return os.Getenv("ADMINCTL_TOKEN")
}
