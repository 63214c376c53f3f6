package memory

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezbox-project/go-ezcfg/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(1024, "")
	require.NoError(t, err)
	return s
}

func TestStore_SetGetUnset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "lan_ipaddr", "192.168.1.1"))

	v, err := s.Get(ctx, "lan_ipaddr")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.1", v)

	require.NoError(t, s.Set(ctx, "lan_ipaddr", "10.0.0.1"))
	v, _ = s.Get(ctx, "lan_ipaddr")
	assert.Equal(t, "10.0.0.1", v)

	require.NoError(t, s.Unset(ctx, "lan_ipaddr"))
	_, err = s.Get(ctx, "lan_ipaddr")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.Unset(ctx, "lan_ipaddr"), storage.ErrNotFound)
}

func TestStore_SetValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Set(ctx, "", "v"), storage.ErrInvalidName)
	assert.ErrorIs(t, s.Set(ctx, "a=b", "v"), storage.ErrInvalidName)
	assert.ErrorIs(t, s.Set(ctx, "name", "bad\x00value"), storage.ErrInvalidValue)
	require.NoError(t, s.Set(ctx, "empty", ""))
}

func TestStore_Space(t *testing.T) {
	s, err := NewStore(20, "")
	require.NoError(t, err)
	ctx := context.Background()

	// "abc=0123456789\0" = 15 bytes
	require.NoError(t, s.Set(ctx, "abc", "0123456789"))
	assert.ErrorIs(t, s.Set(ctx, "def", "0123456789"), storage.ErrNoSpace)

	// Replacing only counts the difference
	require.NoError(t, s.Set(ctx, "abc", "012345678901234"))

	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, info.TotalSpace)
	assert.Equal(t, 20, info.UsedSpace)
	assert.Equal(t, 0, info.FreeSpace)
	assert.Equal(t, storage.Version, info.Version)
	require.Len(t, info.Storage, 1)
	assert.Equal(t, storage.StorageInfo{Backend: "memory", Coding: "none", Path: "-"}, info.Storage[0])

	require.NoError(t, s.Unset(ctx, "abc"))
	info, _ = s.Info(ctx)
	assert.Equal(t, 0, info.UsedSpace)
}

func TestStore_ListSorted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, s.Set(ctx, "wan_proto", "dhcp"))
	require.NoError(t, s.Set(ctx, "lan_ifname", "br0"))
	require.NoError(t, s.Set(ctx, "hostname", "ezbox"))

	entries, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []storage.Entry{
		{Name: "hostname", Value: "ezbox"},
		{Name: "lan_ifname", Value: "br0"},
		{Name: "wan_proto", Value: "dhcp"},
	}, entries)
}

func TestStore_CommitAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvram.txt")
	ctx := context.Background()

	s, err := NewStore(4096, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "banner", "line1\nline2 \\ end"))
	require.NoError(t, s.Set(ctx, "lan_ifname", "br0"))

	// Nothing is written before commit
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, s.Commit(ctx))

	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, path, info.Storage[0].Path)

	reloaded, err := NewStore(4096, path)
	require.NoError(t, err)
	v, err := reloaded.Get(ctx, "banner")
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2 \\ end", v)

	entries, _ := reloaded.List(ctx)
	assert.Len(t, entries, 2)
}

func TestStore_LoadTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvram.txt")
	require.NoError(t, os.WriteFile(path, []byte("name=a-rather-long-value\n"), 0o600))

	_, err := NewStore(8, path)
	assert.ErrorIs(t, err, storage.ErrNoSpace)
}

func TestStore_CommitWithoutPath(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Commit(context.Background()))
}

func TestStore_Sockets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sock := []storage.Entry{
		{Name: "domain", Value: "inet"},
		{Name: "type", Value: "stream"},
		{Name: "protocol", Value: "soap-http"},
		{Name: "address", Value: "0.0.0.0:8880"},
	}
	require.NoError(t, s.InsertSocket(ctx, sock))
	assert.ErrorIs(t, s.InsertSocket(ctx, sock), storage.ErrSocketExists)

	sockets, err := storage.Sockets(ctx, s)
	require.NoError(t, err)
	require.Len(t, sockets, 1)
	assert.Equal(t, "tcp4", sockets[0].Network())

	require.NoError(t, s.RemoveSocket(ctx, sock))
	assert.ErrorIs(t, s.RemoveSocket(ctx, sock), storage.ErrNotFound)

	entries, _ := s.List(ctx)
	assert.Empty(t, entries)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s, err := NewStore(1<<20, "")
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := string(rune('a' + i))
			for j := 0; j < 100; j++ {
				_ = s.Set(ctx, name, "value")
				_, _ = s.Get(ctx, name)
				_, _ = s.List(ctx)
			}
		}(i)
	}
	wg.Wait()

	entries, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 16)
	info, _ := s.Info(ctx)
	assert.Equal(t, 16*storage.EntrySize("a", "value"), info.UsedSpace)
}
