// Package redis keeps NVRAM entries in Redis hashes. The working set lives in
// "<prefix>working" and Commit snapshots it into "<prefix>committed".
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ezbox-project/go-ezcfg/internal/storage"
	"github.com/ezbox-project/go-ezcfg/pkg/config"
)

// Store implements storage.Store on top of a Redis server. The daemon is
// expected to be the only writer of its key prefix.
type Store struct {
	client    *goredis.Client
	working   string
	committed string
	total     int
	addr      string
	db        int
	logger    *zap.Logger

	// guards used and orders mutations so space accounting stays exact
	mu   sync.Mutex
	used int

	sockMu sync.Mutex
}

// NewStore connects to Redis and loads the working set. An empty working set
// is restored from the last commit.
func NewStore(ctx context.Context, cfg *config.RedisConfig, totalSpace int, logger *zap.Logger) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ezcd:nvram:"
	}

	s := &Store{
		client:    client,
		working:   prefix + "working",
		committed: prefix + "committed",
		total:     totalSpace,
		addr:      cfg.Address,
		db:        cfg.DB,
		logger:    logger.Named("redis_store"),
	}

	if err := s.load(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	values, err := s.client.HGetAll(ctx, s.working).Result()
	if err != nil {
		return storage.BackendError("load", err)
	}

	if len(values) == 0 {
		values, err = s.client.HGetAll(ctx, s.committed).Result()
		if err != nil {
			return storage.BackendError("load", err)
		}
		if len(values) > 0 {
			if err := s.client.HSet(ctx, s.working, hashArgs(values)).Err(); err != nil {
				return storage.BackendError("restore", err)
			}
			s.logger.Info("Restored working set from last commit", zap.Int("entries", len(values)))
		}
	}

	used := 0
	for name, value := range values {
		used += storage.EntrySize(name, value)
	}
	if used > s.total {
		return fmt.Errorf("stored entries need %d bytes: %w", used, storage.ErrNoSpace)
	}
	s.used = used
	return nil
}

func (s *Store) Get(ctx context.Context, name string) (string, error) {
	v, err := s.client.HGet(ctx, s.working, name).Result()
	if err == goredis.Nil {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", storage.BackendError("get", err)
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, name, value string) error {
	if err := storage.Validate(name, value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.used + storage.EntrySize(name, value)
	old, err := s.client.HGet(ctx, s.working, name).Result()
	switch {
	case err == nil:
		used -= storage.EntrySize(name, old)
	case err != goredis.Nil:
		return storage.BackendError("set", err)
	}
	if used > s.total {
		return storage.ErrNoSpace
	}

	if err := s.client.HSet(ctx, s.working, name, value).Err(); err != nil {
		return storage.BackendError("set", err)
	}
	s.used = used
	return nil
}

func (s *Store) Unset(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.client.HGet(ctx, s.working, name).Result()
	if err == goredis.Nil {
		return storage.ErrNotFound
	}
	if err != nil {
		return storage.BackendError("unset", err)
	}
	if err := s.client.HDel(ctx, s.working, name).Err(); err != nil {
		return storage.BackendError("unset", err)
	}
	s.used -= storage.EntrySize(name, old)
	return nil
}

func (s *Store) List(ctx context.Context) ([]storage.Entry, error) {
	values, err := s.client.HGetAll(ctx, s.working).Result()
	if err != nil {
		return nil, storage.BackendError("list", err)
	}
	return sortedEntries(values), nil
}

func hashArgs(values map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func sortedEntries(values map[string]string) []storage.Entry {
	out := make([]storage.Entry, 0, len(values))
	for name, value := range values {
		out = append(out, storage.Entry{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Commit replaces the committed hash with the working set in one transaction.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.client.HGetAll(ctx, s.working).Result()
	if err != nil {
		return storage.BackendError("commit", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.committed)
	if len(values) > 0 {
		pipe.HSet(ctx, s.committed, hashArgs(values))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return storage.BackendError("commit", err)
	}

	s.logger.Debug("Committed nvram", zap.Int("entries", len(values)))
	return nil
}

func (s *Store) Info(ctx context.Context) (*storage.Info, error) {
	s.mu.Lock()
	used := s.used
	s.mu.Unlock()

	return &storage.Info{
		Version:    storage.Version,
		TotalSpace: s.total,
		FreeSpace:  s.total - used,
		UsedSpace:  used,
		Storage: []storage.StorageInfo{
			{Backend: "redis", Coding: "hash", Path: fmt.Sprintf("%s/%d/%s", s.addr, s.db, s.working)},
		},
	}, nil
}

func (s *Store) InsertSocket(ctx context.Context, entries []storage.Entry) error {
	s.sockMu.Lock()
	defer s.sockMu.Unlock()

	_, err := storage.InsertSocket(ctx, s, entries)
	return err
}

func (s *Store) RemoveSocket(ctx context.Context, entries []storage.Entry) error {
	s.sockMu.Lock()
	defer s.sockMu.Unlock()

	_, err := storage.RemoveSocket(ctx, s, entries)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	err := s.client.Close()
	if errors.Is(err, goredis.ErrClosed) {
		return nil
	}
	return err
}
