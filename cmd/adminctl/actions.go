package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

type simpleAction struct {
	use    string
	action string
	short  string
}

// simpleActions take no parameters.
var simpleActions = []simpleAction{
	{"pause", "pause", "Pause a server"},
	{"unpause", "unpause", "Unpause a paused server"},
	{"suspend", "suspend", "Suspend a server"},
	{"resume", "resume", "Resume a suspended server"},
	{"migrate", "migrate", "Cold-migrate a server to another host"},
	{"lock", "lock", "Lock a server against non-admin changes"},
	{"unlock", "unlock", "Unlock a server"},
	{"reset-network", "resetNetwork", "Reset a server's networking"},
	{"inject-network-info", "injectNetworkInfo", "Inject network info into a server"},
	{"rescue", "rescue", "Boot a server into rescue mode"},
	{"unrescue", "unrescue", "Leave rescue mode"},
}

func newSimpleActionCmd(a simpleAction) *cobra.Command {
	return &cobra.Command{
		Use:   a.use + " [server-id]",
		Short: a.short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient().runAction(args[0], a.action, nil)
			if err != nil {
				return fmt.Errorf("action %q failed: %w", a.action, err)
			}
			return actionReport(res).write(cmd.OutOrStdout())
		},
	}
}

func backupCmd() *cobra.Command {
	var (
		name       string
		backupType string
		rotation   int
		metadata   map[string]string
	)
	cmd := &cobra.Command{
		Use:   "backup [server-id]",
		Short: "Create a backup image and rotate old backups of the same type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]any{
				"name":        name,
				"backup_type": backupType,
				"rotation":    rotation,
			}
			if len(metadata) > 0 {
				params["metadata"] = metadata
			}
			res, err := newClient().runAction(args[0], "createBackup", params)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}
			return actionReport(res).write(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Backup image name")
	cmd.Flags().StringVar(&backupType, "type", "daily", "Backup type, e.g. daily or weekly")
	cmd.Flags().IntVar(&rotation, "rotation", 1, "Number of backups of this type to keep")
	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "Image metadata as key=value pairs")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func liveMigrateCmd() *cobra.Command {
	var (
		host           string
		blockMigration bool
		diskOverCommit bool
	)
	cmd := &cobra.Command{
		Use:   "live-migrate [server-id]",
		Short: "Live-migrate a running server",
		Long:  "Live-migrate a running server. Without --host the scheduler picks the destination.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]any{
				"host":             nil,
				"block_migration":  blockMigration,
				"disk_over_commit": diskOverCommit,
			}
			if host != "" {
				params["host"] = host
			}
			res, err := newClient().runAction(args[0], "os-migrateLive", params)
			if err != nil {
				return fmt.Errorf("live migration failed: %w", err)
			}
			return actionReport(res).write(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Destination host")
	cmd.Flags().BoolVar(&blockMigration, "block-migration", false, "Copy local disks during migration")
	cmd.Flags().BoolVar(&diskOverCommit, "disk-over-commit", false, "Allow disk over-commit on the destination")
	return cmd
}

func resetStateCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "reset-state [server-id]",
		Short: "Force a server's vm_state (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient().runAction(args[0], "os-resetState", map[string]any{"state": state})
			if err != nil {
				return fmt.Errorf("reset-state failed: %w", err)
			}
			return actionReport(res).write(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&state, "state", "active", "Target state: active or error")
	return cmd
}

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics [server-id]",
	Short: "Show hypervisor diagnostics for a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var res actionResult
		if err := newClient().getJSON(serverPath(args[0])+"/diagnostics", &res); err != nil {
			return fmt.Errorf("diagnostics failed: %w", err)
		}
		keys := make([]string, 0, len(res.Diagnostics))
		for k := range res.Diagnostics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, []string{k, fmt.Sprint(res.Diagnostics[k])})
		}
		return report{value: res, headers: []string{"Metric", "Value"}, rows: rows}.write(cmd.OutOrStdout())
	},
}
