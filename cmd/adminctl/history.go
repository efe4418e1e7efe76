package main

import (
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var (
		pageSize  int
		pageToken string
	)
	cmd := &cobra.Command{
		Use:   "history [server-id] [request-id]",
		Short: "List a server's action history, or show one request",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			w := cmd.OutOrStdout()
			base := serverPath(args[0]) + "/os-instance-actions"

			if len(args) == 2 {
				var resp instanceActionResponse
				if err := client.getJSON(base+"/"+url.PathEscape(args[1]), &resp); err != nil {
					return err
				}
				a := resp.InstanceAction
				return fieldReport(resp,
					[2]string{"Request", a.RequestID},
					[2]string{"Action", a.Action},
					[2]string{"User", a.UserID},
					[2]string{"Role", a.Role},
					[2]string{"Outcome", a.Outcome},
					[2]string{"Status", itoa(a.StatusCode)},
					[2]string{"Error", a.ErrorKind},
					[2]string{"Message", a.Message},
					[2]string{"Prior state", a.PriorState},
					[2]string{"Started", a.StartTime.Format(time.RFC3339)},
					[2]string{"Finished", a.FinishTime.Format(time.RFC3339)},
				).write(w)
			}

			q := url.Values{}
			if pageSize > 0 {
				q.Set("pageSize", strconv.Itoa(pageSize))
			}
			if pageToken != "" {
				q.Set("nextPageToken", pageToken)
			}
			path := base
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var resp instanceActionsResponse
			if err := client.getJSON(path, &resp); err != nil {
				return err
			}
			rows := make([][]string, 0, len(resp.InstanceActions))
			for _, a := range resp.InstanceActions {
				rows = append(rows, []string{
					a.StartTime.Format(time.RFC3339),
					a.Action,
					a.UserID,
					a.Outcome,
					strconv.Itoa(a.StatusCode),
					truncate(a.Message, 50),
					a.RequestID,
				})
			}
			out := report{
				value:   resp,
				headers: []string{"Started", "Action", "User", "Outcome", "Code", "Message", "Request"},
				rows:    rows,
			}
			if resp.NextPageToken != "" {
				out.note = "More results: --page-token " + resp.NextPageToken
			}
			return out.write(w)
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Maximum number of entries to return")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Continue from a previous page")
	return cmd
}
