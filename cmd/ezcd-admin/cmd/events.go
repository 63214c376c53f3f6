package cmd

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	ezws "github.com/ezbox-project/go-ezcfg/internal/websocket"
)

var eventsFilter string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow NVRAM changes",
	Long: `Stream NVRAM change events until interrupted. --filter takes a name
prefix, or "!prefix" to exclude names starting with it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dialEvents(adminURL, adminToken)
		if err != nil {
			return err
		}
		defer conn.Close()

		if eventsFilter != "" {
			if err := conn.WriteJSON(ezws.ClientMessage{Filter: &eventsFilter}); err != nil {
				return fmt.Errorf("failed to set filter: %w", err)
			}
		}
		return followEvents(cmd, conn)
	},
}

// eventsURL turns the admin base URL into the event feed URL
func eventsURL(base string) string {
	base = strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/admin/events"
}

func dialEvents(base, token string) (*websocket.Conn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(eventsURL(base), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect (%d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return conn, nil
}

func followEvents(cmd *cobra.Command, conn *websocket.Conn) error {
	w := cmd.OutOrStdout()
	for {
		var msg ezws.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("event feed closed: %w", err)
		}

		switch msg.Type {
		case ezws.TypeHello:
			fmt.Fprintf(cmd.ErrOrStderr(), "Connected as %s\n", msg.ClientID)
		case ezws.TypeEvent:
			if msg.Event == nil {
				continue
			}
			e := msg.Event
			if output == "json" {
				if err := printJSONValue(w, e); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintf(w, "%s  %-13s  %s=%s\n", e.Time.Format(time.RFC3339), e.Op, e.Name, e.Value)
		case ezws.TypeError:
			return fmt.Errorf("event feed error: %s", msg.Error)
		}
	}
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().StringVarP(&eventsFilter, "filter", "f", "", "Name prefix, or !prefix to exclude")
}
