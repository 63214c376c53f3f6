package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ezbox-project/go-ezcfg/internal/metrics"
	"github.com/ezbox-project/go-ezcfg/internal/websocket"
	"github.com/ezbox-project/go-ezcfg/pkg/config"
	"github.com/ezbox-project/go-ezcfg/pkg/middleware"
)

// Server is the admin HTTP server
type Server struct {
	cfg      *config.AdminConfig
	handlers *Handlers
	events   *websocket.Manager
	metrics  *metrics.Metrics
	limiter  *middleware.RateLimiter
	logger   *zap.Logger

	router     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds the router. A random admin token is generated when the
// configuration carries none. events and m may be nil, in which case the
// event feed and /metrics are not registered and rejections are not counted.
func NewServer(cfg *config.AdminConfig, handlers *Handlers, events *websocket.Manager, m *metrics.Metrics, logger *zap.Logger) (*Server, error) {
	s := &Server{
		handlers: handlers,
		events:   events,
		metrics:  m,
		logger:   logger.Named("admin"),
	}

	token, generated, err := middleware.ResolveAdminToken(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate admin token: %w", err)
	}
	if generated {
		s.logger.Info("Generated admin API token (set EZCD_ADMIN_TOKEN to use a fixed token)",
			zap.String("token", token))
	}
	resolved := *cfg
	resolved.Token = token
	s.cfg = &resolved

	s.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
		Enabled:           cfg.RateLimit > 0,
		RequestsPerMinute: cfg.RateLimit,
	}, s.logger)

	s.router = s.buildRouter()
	return s, nil
}

// buildRouter creates the router with common middleware and every route
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(s.logger))

	corsCfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.cfg.CORSOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.CORSOrigins
	}
	router.Use(cors.New(corsCfg))

	var rec middleware.RejectRecorder
	router.GET("/health", s.handlers.Health)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
		rec = s.metrics
	}

	admin := router.Group("/admin")
	admin.Use(middleware.RateLimitMiddleware(s.limiter, rec, s.logger))
	admin.Use(middleware.AdminAuthMiddleware(s.cfg, rec, s.logger))
	{
		admin.GET("/status", s.handlers.Status)
		admin.GET("/nvram", s.handlers.NVRAMList)
		admin.GET("/nvram/info", s.handlers.NVRAMInfo)
		admin.POST("/reload", s.handlers.Reload)
		if s.events != nil {
			admin.GET("/events", func(c *gin.Context) {
				s.events.HandleConnection(c.Writer, c.Request)
			})
		}
	}

	return router
}

// Router returns the admin router.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Token returns the bearer token guarding /admin.
func (s *Server) Token() string {
	return s.cfg.Token
}

// Start binds the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address(), err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("Admin server listening", zap.String("address", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Admin server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown disconnects event clients and gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	if s.events != nil {
		s.events.Close()
	}
	srv := s.httpServer
	if srv == nil {
		return nil
	}
	s.httpServer = nil
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}
	return nil
}
