package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func cloudpipeCmd() *cobra.Command {
	var (
		vpnIP   string
		vpnPort int
	)
	configure := &cobra.Command{
		Use:   "configure",
		Short: "Point the project's networks at a cloudpipe VPN endpoint (admin only)",
		Long: `Point every network of the caller's project at a cloudpipe VPN endpoint.
The project comes from --project or the token's project claim.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]any{
				"configure_project": map[string]any{"vpn_ip": vpnIP, "vpn_port": vpnPort},
			}
			if err := newClient().putJSON("/v2/os-cloudpipe/configure-project", body, nil); err != nil {
				return fmt.Errorf("cloudpipe configure failed: %w", err)
			}
			res := map[string]any{"vpn_ip": vpnIP, "vpn_port": vpnPort, "status": "accepted"}
			return fieldReport(res,
				[2]string{"VPN IP", vpnIP},
				[2]string{"VPN port", itoa(vpnPort)},
				[2]string{"Status", "accepted"},
			).write(cmd.OutOrStdout())
		},
	}
	configure.Flags().StringVar(&vpnIP, "vpn-ip", "", "Public address of the VPN endpoint")
	configure.Flags().IntVar(&vpnPort, "vpn-port", 1194, "Public port of the VPN endpoint")
	_ = configure.MarkFlagRequired("vpn-ip")

	cmd := &cobra.Command{
		Use:   "cloudpipe",
		Short: "Manage the project's cloudpipe VPN endpoint",
	}
	cmd.AddCommand(configure)
	return cmd
}

func floatingIPsCmd() *cobra.Command {
	list := &cobra.Command{
		Use:   "list",
		Short: "List the project's floating IPs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp floatingIPsResponse
			if err := newClient().getJSON("/v2/os-floating-ips", &resp); err != nil {
				return err
			}
			rows := make([][]string, 0, len(resp.FloatingIPs))
			for _, ip := range resp.FloatingIPs {
				rows = append(rows, []string{ip.ID, ip.IP, ip.Pool, ip.InstanceID, ip.FixedIP})
			}
			return report{
				value:   resp,
				headers: []string{"ID", "IP", "Pool", "Server", "Fixed IP"},
				rows:    rows,
			}.write(cmd.OutOrStdout())
		},
	}
	show := &cobra.Command{
		Use:   "show [id]",
		Short: "Show one floating IP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp floatingIPResponse
			if err := newClient().getJSON("/v2/os-floating-ips/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			ip := resp.FloatingIP
			return fieldReport(resp,
				[2]string{"ID", ip.ID},
				[2]string{"IP", ip.IP},
				[2]string{"Pool", ip.Pool},
				[2]string{"Server", ip.InstanceID},
				[2]string{"Fixed IP", ip.FixedIP},
			).write(cmd.OutOrStdout())
		},
	}

	cmd := &cobra.Command{
		Use:   "floating-ips",
		Short: "Inspect the project's floating IPs",
	}
	cmd.AddCommand(list, show)
	return cmd
}
