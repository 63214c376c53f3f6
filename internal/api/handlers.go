package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ezbox-project/go-ezcfg/internal/server"
	"github.com/ezbox-project/go-ezcfg/internal/storage"
)

// StatusSource reports the state of the connection server.
type StatusSource interface {
	Status() server.Status
}

// ReloadFunc re-reads the configuration and applies it. It is the same
// operation the daemon runs on SIGUSR1.
type ReloadFunc func(ctx context.Context) error

// StatusResponse is the response from /admin/status.
type StatusResponse struct {
	Status           string        `json:"status"`
	Service          string        `json:"service"`
	Version          string        `json:"version"`
	StartedAt        time.Time     `json:"started_at"`
	UptimeSeconds    int64         `json:"uptime_seconds"`
	Server           server.Status `json:"server"`
	EventSubscribers int           `json:"event_subscribers"`
}

// Handlers aggregates the admin HTTP handlers
type Handlers struct {
	master  StatusSource
	store   storage.Store
	broker  *storage.Broker
	reload  ReloadFunc
	started time.Time
	logger  *zap.Logger
}

// NewHandlers creates a new Handlers instance. broker and reload may be nil.
func NewHandlers(master StatusSource, store storage.Store, broker *storage.Broker, reload ReloadFunc, logger *zap.Logger) *Handlers {
	return &Handlers{
		master:  master,
		store:   store,
		broker:  broker,
		reload:  reload,
		started: time.Now(),
		logger:  logger.Named("handlers"),
	}
}

// Health handles the /health endpoint
func (h *Handlers) Health(c *gin.Context) {
	status := "ok"
	code := 200
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("NVRAM backend unhealthy", zap.Error(err))
		status = "degraded"
		code = 503
	}
	c.JSON(code, HealthResponse{
		Status:       status,
		Service:      Service,
		Version:      Version,
		APIVersion:   APIVersion,
		Capabilities: Capabilities,
	})
}

// Status handles GET /admin/status
func (h *Handlers) Status(c *gin.Context) {
	resp := StatusResponse{
		Status:        "ok",
		Service:       Service,
		Version:       Version,
		StartedAt:     h.started,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Server:        h.master.Status(),
	}
	if h.broker != nil {
		resp.EventSubscribers = h.broker.Subscribers()
	}
	c.JSON(200, resp)
}

// NVRAMInfo handles GET /admin/nvram/info
func (h *Handlers) NVRAMInfo(c *gin.Context) {
	info, err := h.store.Info(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read NVRAM info", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to read NVRAM info"})
		return
	}
	c.JSON(200, info)
}

// NVRAMList handles GET /admin/nvram. The optional "filter" query takes a
// name prefix, or "!prefix" to exclude it.
func (h *Handlers) NVRAMList(c *gin.Context) {
	entries, err := h.store.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list NVRAM entries", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to list NVRAM entries"})
		return
	}

	filter := c.Query("filter")
	out := make([]storage.Entry, 0, len(entries))
	for _, e := range entries {
		if storage.MatchPattern(e.Name, filter) {
			out = append(out, e)
		}
	}
	c.JSON(200, gin.H{"entries": out, "count": len(out)})
}

// Reload handles POST /admin/reload
func (h *Handlers) Reload(c *gin.Context) {
	if h.reload == nil {
		c.JSON(501, gin.H{"error": "Reload not available"})
		return
	}
	if err := h.reload(c.Request.Context()); err != nil {
		h.logger.Error("Reload failed", zap.Error(err))
		c.JSON(500, gin.H{"error": "Reload failed", "message": err.Error()})
		return
	}
	h.logger.Info("Configuration reloaded via admin API")
	c.JSON(200, gin.H{"status": "reloaded"})
}
