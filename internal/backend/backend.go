package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ezbox-project/go-ezcfg/internal/storage"
	"github.com/ezbox-project/go-ezcfg/internal/storage/memory"
	"github.com/ezbox-project/go-ezcfg/internal/storage/mongodb"
	"github.com/ezbox-project/go-ezcfg/internal/storage/redis"
	"github.com/ezbox-project/go-ezcfg/pkg/config"
)

// Type defines the type of NVRAM backend
type Type string

const (
	// TypeMemory keeps entries in process memory with an optional commit file
	TypeMemory Type = "memory"
	// TypeRedis keeps entries in Redis hashes
	TypeRedis Type = "redis"
	// TypeMongoDB keeps entries in a MongoDB collection
	TypeMongoDB Type = "mongodb"
)

// New creates the NVRAM store selected by the configuration. When a defaults
// file is configured, its entries seed names the store does not hold yet.
func New(ctx context.Context, cfg *config.NVRAMConfig, logger *zap.Logger) (storage.Store, error) {
	store, err := open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.DefaultsFile != "" {
		n, err := storage.SyncFromFile(ctx, store, cfg.DefaultsFile, cfg.DefaultsPattern)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to apply nvram defaults: %w", err)
		}
		logger.Info("Applied nvram defaults",
			zap.String("file", cfg.DefaultsFile),
			zap.String("pattern", cfg.DefaultsPattern),
			zap.Int("entries", n))
	}
	return store, nil
}

func open(ctx context.Context, cfg *config.NVRAMConfig, logger *zap.Logger) (storage.Store, error) {
	storeType := Type(cfg.Type)

	switch storeType {
	case TypeMemory, "":
		// Default to memory if not specified
		store, err := memory.NewStore(cfg.TotalSpace, cfg.Memory.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory backend: %w", err)
		}
		return store, nil

	case TypeRedis:
		store, err := redis.NewStore(ctx, &cfg.Redis, cfg.TotalSpace, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis backend: %w", err)
		}
		return store, nil

	case TypeMongoDB:
		store, err := mongodb.NewStore(ctx, &cfg.MongoDB, cfg.TotalSpace)
		if err != nil {
			return nil, fmt.Errorf("failed to create MongoDB backend: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported nvram type: %s", storeType)
	}
}
