package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ezbox-project/go-ezcfg/internal/api"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long:  `Show the daemon version, uptime, worker usage and the open listeners.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(adminURL, adminToken)
		data, err := client.Request("GET", "/admin/status", nil)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if output == "json" {
			return printJSON(w, data)
		}

		var resp api.StatusResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		fmt.Fprintf(w, "%s %s, up %s\n", resp.Service, resp.Version,
			(time.Duration(resp.UptimeSeconds) * time.Second).String())
		fmt.Fprintf(w, "Running: %t  Workers: %d  Busy: %d  Queued: %d  Event subscribers: %d\n\n",
			resp.Server.Running, resp.Server.Workers, resp.Server.Busy, resp.Server.Queued, resp.EventSubscribers)

		if len(resp.Server.Listeners) == 0 {
			fmt.Fprintln(w, "No listeners open.")
			return nil
		}

		headers := []string{"NAME", "PROTOCOL", "NETWORK", "ADDRESS", "BOUND", "SOURCE"}
		rows := make([][]string, len(resp.Server.Listeners))
		for i, l := range resp.Server.Listeners {
			rows[i] = []string{l.Name, l.Protocol, l.Network, l.Address, l.Bound, l.Source}
		}
		printTable(w, headers, rows)
		return nil
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the daemon configuration",
	Long: `Ask the daemon to re-read its configuration file, commit the NVRAM
store and reconcile its listeners. This is the same as sending SIGUSR1.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(adminURL, adminToken)
		if _, err := client.Request("POST", "/admin/reload", nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration reloaded.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reloadCmd)
}
