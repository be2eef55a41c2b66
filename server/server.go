package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/poiesic/docvec/config"
	"github.com/poiesic/docvec/embedcache"
	"github.com/poiesic/docvec/progress"
	"github.com/poiesic/docvec/queue"
)

// Server exposes the embedding cache and progress interfaces over HTTP.
type Server struct {
	echo       *echo.Echo
	cfg        *config.Config
	embeddings *embedcache.Service
	queue      *queue.Queue
	events     *progress.Broadcaster
	logger     *slog.Logger
}

// New creates the HTTP server and registers all routes.
func New(cfg *config.Config, embeddings *embedcache.Service, q *queue.Queue, events *progress.Broadcaster, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:       e,
		cfg:        cfg,
		embeddings: embeddings,
		queue:      q,
		events:     events,
		logger:     logger.With("component", "http"),
	}

	// Structured JSON for every error, with logging
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = echo.ErrInternalServerError.Error()
				if m, ok := he.Message.(string); ok {
					msg = m
				}
			}
		}
		req := c.Request()
		s.logger.Error("http error", "status", code, "method", req.Method, "path", req.URL.Path, "err", err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]any{"success": false, "error": msg})
		}
	}

	e.GET("/health", s.handleHealth)
	e.POST("/embeddings/single", s.handleSingleEmbedding)
	e.POST("/embeddings/batch", s.handleBatchEmbeddings)
	e.DELETE("/cache", s.handleClearCache)
	e.GET("/cache/stats", s.handleCacheStats)
	e.GET("/config", s.handleConfig)
	e.GET("/queue/status", s.handleQueueStatus)
	e.GET("/events/:userId", s.handleEvents)

	return s
}

// Start begins serving on the configured listen address. Blocks until the
// server stops.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.cfg.ListenAddr)
	return s.echo.Start(s.cfg.ListenAddr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"embeddingModel":    s.cfg.EmbeddingModel,
		"cacheTtlSeconds":   int(s.cfg.CacheTTL.Seconds()),
		"rateLimitWindow":   s.cfg.RateLimitWindow.String(),
		"rateLimitRequests": s.cfg.RateLimitRequests,
		"batchSize":         s.cfg.BatchSize,
		"maxBatchSize":      s.cfg.MaxBatchSize,
		"batchDelay":        s.cfg.BatchDelay.String(),
		"workerConcurrency": s.cfg.WorkerConcurrency,
		"stallInterval":     s.cfg.StallInterval.String(),
	})
}
