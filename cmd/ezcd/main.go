// Command ezcd is the configuration daemon. It serves the NVRAM store over
// SOAP/HTTP, answers plain HTTP and IGRS on the configured sockets, and
// exposes an admin API with metrics and a change feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ezbox-project/go-ezcfg/internal/api"
	"github.com/ezbox-project/go-ezcfg/internal/backend"
	"github.com/ezbox-project/go-ezcfg/internal/metrics"
	"github.com/ezbox-project/go-ezcfg/internal/nvramrpc"
	"github.com/ezbox-project/go-ezcfg/internal/server"
	"github.com/ezbox-project/go-ezcfg/internal/storage"
	"github.com/ezbox-project/go-ezcfg/internal/websocket"
	"github.com/ezbox-project/go-ezcfg/pkg/config"
	"github.com/ezbox-project/go-ezcfg/pkg/logging"
)

var (
	configFile = flag.String("config", "/etc/ezcd.yaml", "Path to configuration file")
	buildTime  = "unknown"
)

// daemon holds what a reload touches
type daemon struct {
	configFile string
	store      storage.Store
	master     *server.Master
	level      zap.AtomicLevel
	logger     *zap.Logger

	mu sync.Mutex
}

// reload re-reads the configuration file, applies the log level, commits
// the NVRAM store and reconciles the listeners.
func (d *daemon) reload(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg, err := config.Load(d.configFile)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	d.level.SetLevel(logging.ParseLevel(cfg.Logging.Level))

	var errs []error
	if err := d.store.Commit(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to commit nvram: %w", err))
	}
	if err := d.master.Reload(ctx, &cfg.Server); err != nil {
		errs = append(errs, fmt.Errorf("failed to reload listeners: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	d.logger.Info("Configuration reloaded",
		zap.String("log_level", cfg.Logging.Level),
		zap.Int("listeners", len(d.master.Status().Listeners)))
	return nil
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, level, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ezcd",
		zap.String("version", api.Version),
		zap.String("build_time", buildTime),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	backing, err := backend.New(ctx, &cfg.NVRAM, logger)
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize nvram backend", zap.Error(err))
	}
	defer func() { _ = backing.Close() }()

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	err = backing.Ping(ctx)
	cancel()
	if err != nil {
		logger.Fatal("Failed to ping nvram backend", zap.Error(err))
	}
	logger.Info("NVRAM backend initialized", zap.String("type", cfg.NVRAM.Type))

	m := metrics.New()
	broker := storage.NewBroker()
	store := storage.NewObserved(backing, broker)

	events, unsubscribe := broker.Subscribe(256)
	go func() {
		for e := range events {
			m.RecordEvent(string(e.Op))
		}
	}()
	defer unsubscribe()

	handler := nvramrpc.NewHandler(store, logger, nvramrpc.WithRecorder(m))
	factory := server.NewFactory(handler, cfg.SOAP.MaxElements)
	master := server.NewMaster(&cfg.Server, factory, store, logger, server.WithRecorder(m))

	if err := master.Start(context.Background()); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	d := &daemon{
		configFile: *configFile,
		store:      store,
		master:     master,
		level:      level,
		logger:     logger,
	}

	var adminSrv *api.Server
	if cfg.Admin.Enabled {
		handlers := api.NewHandlers(master, store, broker, d.reload, logger)
		feed := websocket.NewManager(broker, cfg.Admin.CORSOrigins, logger)
		adminSrv, err = api.NewServer(&cfg.Admin, handlers, feed, m, logger)
		if err != nil {
			logger.Fatal("Failed to create admin server", zap.Error(err))
		}
		if err := adminSrv.Start(); err != nil {
			logger.Fatal("Failed to start admin server", zap.Error(err))
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	for s := range sig {
		if s == syscall.SIGUSR1 {
			logger.Info("Reload requested")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := d.reload(ctx); err != nil {
				logger.Error("Reload failed", zap.Error(err))
			}
			cancel()
			continue
		}
		logger.Info("Shutting down", zap.String("signal", s.String()))
		break
	}
	signal.Stop(sig)

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if adminSrv != nil {
		if err := adminSrv.Shutdown(ctx); err != nil {
			logger.Error("Admin server forced to shutdown", zap.Error(err))
		}
	}
	if err := master.Stop(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := store.Commit(ctx); err != nil {
		logger.Error("Failed to commit nvram on exit", zap.Error(err))
	}

	logger.Info("ezcd exited")
}
