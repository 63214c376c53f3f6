package storage_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezbox-project/go-ezcfg/internal/storage"
	"github.com/ezbox-project/go-ezcfg/internal/storage/memory"
)

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.NewStore(8192, "")
	require.NoError(t, err)
	return s
}

func socketEntries(protocol, address string) []storage.Entry {
	return []storage.Entry{
		{Name: "domain", Value: "inet"},
		{Name: "type", Value: "stream"},
		{Name: "protocol", Value: protocol},
		{Name: "address", Value: address},
	}
}

func TestParseSocket(t *testing.T) {
	tests := []struct {
		name    string
		entries []storage.Entry
		wantErr bool
	}{
		{"complete", socketEntries("http", ":80"), false},
		{"missing address", socketEntries("http", "")[:3], true},
		{"bad protocol", socketEntries("ftp", ":21"), true},
		{"unknown field", append(socketEntries("http", ":80"), storage.Entry{Name: "backlog", Value: "5"}), true},
		{"duplicate field", append(socketEntries("http", ":80"), storage.Entry{Name: "type", Value: "stream"}), true},
		{"bad type", []storage.Entry{
			{Name: "domain", Value: "unix"},
			{Name: "type", Value: "dgram"},
			{Name: "protocol", Value: "igrs"},
			{Name: "address", Value: "/tmp/igrs"},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := storage.ParseSocket(tt.entries)
			if tt.wantErr {
				assert.ErrorIs(t, err, storage.ErrInvalidSocket)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSocketTable_InsertRemoveCompacts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, addr := range []string{":1001", ":1002", ":1003"} {
		_, err := storage.InsertSocket(ctx, s, socketEntries("http", addr))
		require.NoError(t, err)
	}

	removed, err := storage.RemoveSocket(ctx, s, socketEntries("http", ":1002"))
	require.NoError(t, err)
	assert.Equal(t, ":1002", removed.Address)

	sockets, err := storage.Sockets(ctx, s)
	require.NoError(t, err)
	require.Len(t, sockets, 2)
	assert.Equal(t, ":1001", sockets[0].Address)
	assert.Equal(t, ":1003", sockets[1].Address)

	n, err := s.Get(ctx, storage.SocketNumberName)
	require.NoError(t, err)
	assert.Equal(t, "2", n)
	_, err = s.Get(ctx, "ezcfg_socket.2.address")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSockets_BadCount(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, storage.SocketNumberName, "many"))

	_, err := storage.Sockets(ctx, s)
	assert.ErrorIs(t, err, storage.ErrInvalidSocket)
}

func TestSocket_Network(t *testing.T) {
	assert.Equal(t, "tcp4", storage.Socket{Domain: "inet"}.Network())
	assert.Equal(t, "tcp6", storage.Socket{Domain: "inet6"}.Network())
	assert.Equal(t, "unix", storage.Socket{Domain: "unix"}.Network())
}

func TestReadWriteEntries(t *testing.T) {
	in := []storage.Entry{
		{Name: "a", Value: "plain"},
		{Name: "b", Value: "multi\nline\r\nwith \\ slash"},
		{Name: "c", Value: ""},
		{Name: "d", Value: "x=y"},
	}

	var buf bytes.Buffer
	require.NoError(t, storage.WriteEntries(&buf, in))
	assert.Equal(t, 4, strings.Count(buf.String(), "\n"))

	out, err := storage.ReadEntries(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadEntries_CommentsAndErrors(t *testing.T) {
	entries, err := storage.ReadEntries(strings.NewReader("# defaults\n\nlan_ifname=br0\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []storage.Entry{{Name: "lan_ifname", Value: "br0"}}, entries)

	_, err = storage.ReadEntries(strings.NewReader("novalue\n"))
	assert.Error(t, err)
}

func TestMatchPattern(t *testing.T) {
	assert.True(t, storage.MatchPattern("lan_ifname", ""))
	assert.True(t, storage.MatchPattern("lan_ifname", "lan_"))
	assert.False(t, storage.MatchPattern("wan_proto", "lan_"))
	assert.False(t, storage.MatchPattern("lan_ifname", "!lan_"))
	assert.True(t, storage.MatchPattern("wan_proto", "!lan_"))
}

func TestSyncFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ezcfg.conf")
	content := "lan_ifname=br0\nlan_ipaddr=192.168.1.1\nwan_proto=dhcp\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "lan_ipaddr", "10.0.0.1"))

	n, err := storage.SyncFromFile(ctx, s, path, "lan_")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, _ := s.Get(ctx, "lan_ifname")
	assert.Equal(t, "br0", v)
	v, _ = s.Get(ctx, "lan_ipaddr")
	assert.Equal(t, "10.0.0.1", v, "existing values are kept")
	_, err = s.Get(ctx, "wan_proto")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	n, err = storage.SyncFromFile(ctx, s, path, "!lan_")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = storage.SyncFromFile(ctx, s, filepath.Join(t.TempDir(), "missing"), "")
	assert.Error(t, err)
}

func TestBroker_PublishSubscribe(t *testing.T) {
	b := storage.NewBroker()
	ch, cancel := b.Subscribe(4)
	assert.Equal(t, 1, b.Subscribers())

	b.Publish(storage.Event{Op: storage.EventSet, Name: "a"})
	select {
	case e := <-ch:
		assert.Equal(t, "a", e.Name)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	cancel()
	assert.Equal(t, 0, b.Subscribers())
	_, open := <-ch
	assert.False(t, open)
}

func TestBroker_SlowSubscriberDropsEvents(t *testing.T) {
	b := storage.NewBroker()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish(storage.Event{Op: storage.EventSet, Name: "first"})
	b.Publish(storage.Event{Op: storage.EventSet, Name: "second"})

	e := <-ch
	assert.Equal(t, "first", e.Name)
	select {
	case <-ch:
		t.Fatal("second event should have been dropped")
	default:
	}
}

func TestObserved(t *testing.T) {
	b := storage.NewBroker()
	ch, cancel := b.Subscribe(16)
	defer cancel()

	o := storage.NewObserved(newStore(t), b)
	ctx := context.Background()

	require.NoError(t, o.Set(ctx, "a", "1"))
	require.NoError(t, o.Unset(ctx, "a"))
	assert.Error(t, o.Unset(ctx, "a"))
	require.NoError(t, o.Commit(ctx))
	require.NoError(t, o.InsertSocket(ctx, socketEntries("igrs", ":3880")))

	var ops []storage.EventOp
	for len(ch) > 0 {
		ops = append(ops, (<-ch).Op)
	}
	// the socket table writes go to the wrapped store, so only one event
	assert.Equal(t, []storage.EventOp{
		storage.EventSet, storage.EventUnset, storage.EventCommit, storage.EventInsertSocket,
	}, ops)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, storage.Validate("name", "value"))
	assert.ErrorIs(t, storage.Validate("", "value"), storage.ErrInvalidName)
	assert.ErrorIs(t, storage.Validate("a\nb", "value"), storage.ErrInvalidName)
	assert.ErrorIs(t, storage.Validate("name", "\x00"), storage.ErrInvalidValue)
	assert.Equal(t, 7, storage.EntrySize("ab", "cde"))
	assert.Equal(t, 12, storage.UsedSpace([]storage.Entry{{Name: "a", Value: "b"}, {Name: "cd", Value: "efghi"}}))
}
