package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/api/middleware"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/domain/session"
	handlers "github.com/GriffinCanCode/TinySandbox/backend/internal/http"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/filesystem"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/http/client"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	pages    *session.Manager
	registry *prometheus.Registry
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logCfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		logCfg = logging.DevelopmentConfig()
	}
	if cfg.Logging.Level != "" {
		logCfg.Level = cfg.Logging.Level
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing TinySandbox server",
		zap.String("port", cfg.Server.Port),
		zap.String("pages_dir", cfg.Library.Dir),
		zap.Duration("debounce", cfg.Sandbox.Debounce),
	)

	// Metrics live on a private registry so several servers can coexist in one process.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	library, err := filesystem.NewLibrary(cfg.Library.Dir, cfg.Library.Pattern, logger)
	if err != nil {
		metrics.Stop()
		return nil, fmt.Errorf("failed to open page library: %w", err)
	}

	fetcher := client.NewFetcher(cfg.Fetch, client.Options{MaxBytes: cfg.Session.MaxPageBytes}, logger)

	pages := session.NewManager(session.Options{
		TTL:             cfg.Session.TTL,
		CleanupInterval: cfg.Session.CleanupInterval,
		MaxPageBytes:    cfg.Session.MaxPageBytes,
		Sandbox: &sandbox.Config{
			Timeout:         cfg.Sandbox.ScriptTimeout,
			MaxCallStack:    cfg.Sandbox.MaxCallStack,
			MaxConsoleLines: cfg.Sandbox.MaxConsoleLines,
			EnableDOM:       true,
		},
		Debounce: cfg.Sandbox.Debounce,
		WidgetIDs: id.WidgetIDConfig{
			Prefix:   cfg.Sandbox.IDPrefix,
			Length:   cfg.Sandbox.IDLength,
			Alphabet: cfg.Sandbox.IDAlphabet,
		},
		SyntaxErrorText: cfg.Sandbox.SyntaxErrorText,
		Metrics:         metrics,
		Logger:          logger,
	})

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfigFrom(cfg.RateLimit)))
	}

	// Register routes
	handlers.NewHandlers(pages, library, fetcher, metrics, logger).Register(router)
	router.GET("/pages/:id/stream", ws.NewHandler(pages, metrics, logger).HandleConnection)

	// Metrics endpoints
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))
	router.GET("/metrics/json", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"metrics":             metrics.Snapshot(),
			"avg_request_seconds": metrics.AverageRequestDuration().Seconds(),
			"uptime_seconds":      metrics.UptimeSince().Seconds(),
		})
	})

	s := &Server{
		router:   router,
		pages:    pages,
		registry: registry,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}
	s.http = &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

// Handler returns the root handler. Responses are gzip-compressed except WebSocket
// upgrades, which need the raw connection.
func (s *Server) Handler() http.Handler {
	gz := gzhttp.GzipHandler(s.router)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.router.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

// Logger returns the server's root logger.
func (s *Server) Logger() *logging.Logger {
	return s.logger
}

// Pages returns the page session manager.
func (s *Server) Pages() *session.Manager {
	return s.pages
}

// Run starts page expiry and serves HTTP until Shutdown.
func (s *Server) Run() error {
	s.pages.Start()
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, closes every page and flushes the logger.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
	}

	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("HTTP shutdown incomplete", zap.Error(err))
	}

	s.pages.Close()
	s.metrics.Stop()
	if err := s.logger.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "flush logs: %v\n", err)
	}
	return err
}
