package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ezbox-project/go-ezcfg/internal/storage"
	"github.com/ezbox-project/go-ezcfg/pkg/config"
)

func testConfig(t *testing.T) *config.RedisConfig {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	return &config.RedisConfig{
		Address:   addr,
		KeyPrefix: "ezcd:test:" + uuid.NewString() + ":",
	}
}

func skipIfNoRedis(t *testing.T, cfg *config.RedisConfig, total int) *Store {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := NewStore(ctx, cfg, total, zap.NewNop())
	if err != nil {
		t.Skipf("Redis not available: %v", err)
		return nil
	}

	t.Cleanup(func() {
		ctx := context.Background()
		_ = store.client.Del(ctx, store.working, store.committed).Err()
		_ = store.Close()
	})
	return store
}

func TestStore_SetGetUnset(t *testing.T) {
	store := skipIfNoRedis(t, testConfig(t), 4096)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "lan_ifname", "br0"))
	v, err := store.Get(ctx, "lan_ifname")
	require.NoError(t, err)
	assert.Equal(t, "br0", v)

	require.NoError(t, store.Unset(ctx, "lan_ifname"))
	_, err = store.Get(ctx, "lan_ifname")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.Unset(ctx, "lan_ifname"), storage.ErrNotFound)
}

func TestStore_Space(t *testing.T) {
	store := skipIfNoRedis(t, testConfig(t), 20)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "abc", "0123456789"))
	assert.ErrorIs(t, store.Set(ctx, "def", "0123456789"), storage.ErrNoSpace)

	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, info.UsedSpace)
	assert.Equal(t, "redis", info.Storage[0].Backend)
}

func TestStore_CommitRestores(t *testing.T) {
	cfg := testConfig(t)
	store := skipIfNoRedis(t, cfg, 4096)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "b", "2"))
	require.NoError(t, store.Set(ctx, "a", "1"))
	require.NoError(t, store.Commit(ctx))

	// Losing the working set falls back to the committed snapshot
	require.NoError(t, store.client.Del(ctx, store.working).Err())

	reopened, err := NewStore(ctx, cfg, 4096, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []storage.Entry{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}, entries)
}

func TestStore_Ping(t *testing.T) {
	store := skipIfNoRedis(t, testConfig(t), 4096)
	assert.NoError(t, store.Ping(context.Background()))
}
