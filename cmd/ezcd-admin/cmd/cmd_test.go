package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ezbox-project/go-ezcfg/internal/api"
	"github.com/ezbox-project/go-ezcfg/internal/server"
	"github.com/ezbox-project/go-ezcfg/internal/storage"
	"github.com/ezbox-project/go-ezcfg/internal/storage/memory"
	"github.com/ezbox-project/go-ezcfg/internal/websocket"
	"github.com/ezbox-project/go-ezcfg/pkg/config"
)

const testToken = "cli-token"

type staticStatus server.Status

func (s staticStatus) Status() server.Status { return server.Status(s) }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type adminEnv struct {
	url     string
	store   *storage.Observed
	events  *websocket.Manager
	reloads int
}

func newAdminEnv(t *testing.T) *adminEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem, err := memory.NewStore(1024, "")
	require.NoError(t, err)
	broker := storage.NewBroker()
	env := &adminEnv{store: storage.NewObserved(mem, broker)}

	status := staticStatus{
		Running: true,
		Workers: 2,
		Listeners: []server.ListenerStatus{
			{Name: "nvram:soap-http@127.0.0.1:4000", Protocol: "soap-http", Network: "tcp", Address: "127.0.0.1:4000", Bound: "127.0.0.1:4000", Source: "nvram"},
		},
	}
	reload := func(context.Context) error {
		env.reloads++
		return nil
	}

	handlers := api.NewHandlers(status, env.store, broker, reload, zap.NewNop())
	env.events = websocket.NewManager(broker, nil, zap.NewNop())
	srv, err := api.NewServer(&config.AdminConfig{Host: "127.0.0.1", Token: testToken}, handlers, env.events, nil, zap.NewNop())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		ts.Close()
	})
	env.url = ts.URL
	return env
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	env := newAdminEnv(t)

	out, err := run(t, "status", "--url", env.url, "--token", testToken, "--output", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "Workers: 2")
	assert.Contains(t, out, "nvram:soap-http@127.0.0.1:4000")
	assert.Contains(t, out, "SOURCE")

	out, err = run(t, "status", "--url", env.url, "--token", testToken, "--output", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"workers": 2`)
}

func TestStatusCommand_BadToken(t *testing.T) {
	env := newAdminEnv(t)

	_, err := run(t, "status", "--url", env.url, "--token", "wrong", "--output", "table")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API error (401)")
}

func TestNVRAMCommands(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.Set(ctx, "lan_ipaddr", "192.168.1.1"))
	require.NoError(t, env.store.Set(ctx, "wan_proto", "dhcp"))

	out, err := run(t, "nvram", "list", "--url", env.url, "--token", testToken, "--output", "table", "--filter", "lan_")
	require.NoError(t, err)
	assert.Contains(t, out, "lan_ipaddr")
	assert.NotContains(t, out, "wan_proto")

	out, err = run(t, "nvram", "list", "--url", env.url, "--token", testToken, "--output", "table", "--filter", "none_")
	require.NoError(t, err)
	assert.Contains(t, out, "No entries found.")

	out, err = run(t, "nvram", "info", "--url", env.url, "--token", testToken, "--output", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "1024")
	assert.Contains(t, out, "memory")
}

func TestReloadCommand(t *testing.T) {
	env := newAdminEnv(t)

	out, err := run(t, "reload", "--url", env.url, "--token", testToken)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration reloaded.")
	assert.Equal(t, 1, env.reloads)
}

func TestEventsURL(t *testing.T) {
	assert.Equal(t, "ws://127.0.0.1:8881/admin/events", eventsURL("http://127.0.0.1:8881/"))
	assert.Equal(t, "wss://router.lan/admin/events", eventsURL("https://router.lan"))
}

func TestFollowEvents(t *testing.T) {
	env := newAdminEnv(t)
	output = "table"

	conn, err := dialEvents(env.url, testToken)
	require.NoError(t, err)
	defer conn.Close()

	var out, errOut syncBuffer
	c := &cobra.Command{}
	c.SetOut(&out)
	c.SetErr(&errOut)

	done := make(chan error, 1)
	go func() { done <- followEvents(c, conn) }()

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(errOut.String()), []byte("Connected as"))
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, env.store.Set(context.Background(), "wan_proto", "pppoe"))
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("wan_proto=pppoe"))
	}, 2*time.Second, 10*time.Millisecond)

	env.events.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("followEvents did not return after the feed closed")
	}
}

func TestDialEvents_Unauthorized(t *testing.T) {
	env := newAdminEnv(t)

	_, err := dialEvents(env.url, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
