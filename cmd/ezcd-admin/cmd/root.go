// Package cmd contains all CLI commands for ezcd-admin.
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	adminURL   string
	adminToken string
	output     string
)

// Client wraps HTTP client for admin API calls
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new admin API client
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Request makes an HTTP request to the admin API
func (c *Client) Request(method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			if errResp.Message != "" {
				return nil, fmt.Errorf("API error (%d): %s: %s", resp.StatusCode, errResp.Error, errResp.Message)
			}
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// printJSON formats and prints JSON output
func printJSON(w io.Writer, data []byte) error {
	var formatted bytes.Buffer
	if err := json.Indent(&formatted, data, "", "  "); err != nil {
		// not JSON, print as-is
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := fmt.Fprintln(w, formatted.String())
	return err
}

// printJSONValue prints v as one line of JSON
func printJSONValue(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printTable prints data in a simple table format
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range headers {
		fmt.Fprintf(w, "%-*s  ", widths[i], h)
	}
	fmt.Fprintln(w)

	for i := range headers {
		fmt.Fprintf(w, "%s  ", strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(w)

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(w, "%-*s  ", widths[i], cell)
			}
		}
		fmt.Fprintln(w)
	}
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ezcd-admin",
	Short: "CLI tool for the ezcd admin API",
	Long: `ezcd-admin talks to the admin API of a running ezcd.

It provides commands for:
  - status: Server state, workers and listeners
  - nvram:  NVRAM entries and space usage
  - reload: Re-read the daemon configuration
  - events: Follow NVRAM changes as they happen

Examples:
  # Show the listeners
  ezcd-admin status

  # List the LAN settings
  ezcd-admin nvram list --filter lan_

  # Follow changes to WAN settings
  ezcd-admin events --filter wan_

Environment Variables:
  EZCD_ADMIN_URL    Base URL of the admin API (default: http://127.0.0.1:8881)
  EZCD_ADMIN_TOKEN  Bearer token of the admin API`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&adminURL, "url", "u", getEnvOrDefault("EZCD_ADMIN_URL", "http://127.0.0.1:8881"), "Admin API base URL")
	rootCmd.PersistentFlags().StringVarP(&adminToken, "token", "t", os.Getenv("EZCD_ADMIN_TOKEN"), "Admin API bearer token")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table, json")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
