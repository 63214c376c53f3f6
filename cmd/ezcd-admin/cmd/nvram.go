package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ezbox-project/go-ezcfg/internal/storage"
)

// NVRAMListResponse represents the list entries response
type NVRAMListResponse struct {
	Entries []storage.Entry `json:"entries"`
	Count   int             `json:"count"`
}

var nvramFilter string

var nvramCmd = &cobra.Command{
	Use:   "nvram",
	Short: "Inspect the NVRAM store",
	Long:  `Commands for inspecting the NVRAM configuration store.`,
}

var nvramListCmd = &cobra.Command{
	Use:   "list",
	Short: "List NVRAM entries",
	Long: `List NVRAM entries sorted by name. --filter takes a name prefix,
or "!prefix" to exclude names starting with it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/admin/nvram"
		if nvramFilter != "" {
			path += "?filter=" + url.QueryEscape(nvramFilter)
		}

		client := NewClient(adminURL, adminToken)
		data, err := client.Request("GET", path, nil)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if output == "json" {
			return printJSON(w, data)
		}

		var resp NVRAMListResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		if len(resp.Entries) == 0 {
			fmt.Fprintln(w, "No entries found.")
			return nil
		}

		rows := make([][]string, len(resp.Entries))
		for i, e := range resp.Entries {
			rows[i] = []string{e.Name, e.Value}
		}
		printTable(w, []string{"NAME", "VALUE"}, rows)
		return nil
	},
}

var nvramInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show NVRAM space and storage",
	Long:  `Show the NVRAM version, space usage and persistence targets.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(adminURL, adminToken)
		data, err := client.Request("GET", "/admin/nvram/info", nil)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if output == "json" {
			return printJSON(w, data)
		}

		var info storage.Info
		if err := json.Unmarshal(data, &info); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		printTable(w, []string{"VERSION", "TOTAL", "USED", "FREE"}, [][]string{{
			info.Version,
			strconv.Itoa(info.TotalSpace),
			strconv.Itoa(info.UsedSpace),
			strconv.Itoa(info.FreeSpace),
		}})
		fmt.Fprintln(w)

		rows := make([][]string, len(info.Storage))
		for i, s := range info.Storage {
			rows[i] = []string{s.Backend, s.Coding, s.Path}
		}
		printTable(w, []string{"BACKEND", "CODING", "PATH"}, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nvramCmd)
	nvramCmd.AddCommand(nvramListCmd)
	nvramCmd.AddCommand(nvramInfoCmd)

	nvramListCmd.Flags().StringVarP(&nvramFilter, "filter", "f", "", "Name prefix, or !prefix to exclude")
}
