package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List hosts and enable or disable them for scheduling",
}

func init() {
	var service string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/v2/os-hosts"
			if service != "" {
				path += "?service=" + url.QueryEscape(service)
			}
			var resp hostsResponse
			if err := newClient().getJSON(path, &resp); err != nil {
				return err
			}
			rows := make([][]string, 0, len(resp.Hosts))
			for _, h := range resp.Hosts {
				status := "enabled"
				if !h.Enabled {
					status = "disabled"
				}
				rows = append(rows, []string{h.Name, h.Service, h.Zone, status, h.HypervisorType, strconv.Itoa(h.HypervisorVersion)})
			}
			return report{
				value:   resp,
				headers: []string{"Host", "Service", "Zone", "Status", "Hypervisor", "Version"},
				rows:    rows,
			}.write(cmd.OutOrStdout())
		},
	}
	listCmd.Flags().StringVar(&service, "service", "", "Only list hosts running this service")

	hostsCmd.AddCommand(listCmd)
	hostsCmd.AddCommand(hostStatusCmd("enable"), hostStatusCmd("disable"))
}

func hostStatusCmd(status string) *cobra.Command {
	return &cobra.Command{
		Use:   status + " [host]",
		Short: fmt.Sprintf("Mark a host %sd for scheduling (admin only)", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp hostUpdateResponse
			body := map[string]string{"status": status}
			if err := newClient().putJSON("/v2/os-hosts/"+url.PathEscape(args[0]), body, &resp); err != nil {
				return err
			}
			return report{
				value:   resp,
				headers: []string{"Host", "Status"},
				rows:    [][]string{{resp.Host, resp.Status}},
			}.write(cmd.OutOrStdout())
		},
	}
}
