// Package server exposes the read-only ops surface over the pipeline:
// health, the derived review queue, the merged history, the auto-moderation
// gate, and prometheus metrics. The pipeline's own stores stay in process
// memory; this surface only reads them (the gate toggle and the explicit
// flag path being the deliberate exceptions).
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bloomlabs/moderationd/internal/config"
	"github.com/bloomlabs/moderationd/internal/queue"
	"github.com/bloomlabs/moderationd/internal/services"
)

// Server is the ops HTTP server.
type Server struct {
	config   *config.Config
	services services.Registry
	logger   *zap.Logger
	echo     *echo.Echo
}

// HealthResponse is the JSON response for /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	AutoMod bool   `json:"automod_enabled"`
}

// AutoModRequest toggles the auto-moderation gate.
type AutoModRequest struct {
	Enabled bool `json:"enabled"`
}

// FlagRequest submits a user-initiated flag.
type FlagRequest struct {
	MessageID string `json:"message_id"`
	Reason    string `json:"reason,omitempty"`
}

// NewServer creates the ops server.
func NewServer(cfg *config.Config, reg services.Registry, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		config:   cfg,
		services: reg,
		logger:   logger,
		echo:     e,
	}

	e.GET("/health", s.handleHealth)
	e.GET("/api/queue", s.handleQueue)
	e.GET("/api/history", s.handleHistory)
	e.GET("/api/automod", s.handleAutoModStatus)
	e.POST("/api/automod", s.handleAutoModToggle)
	e.POST("/api/flags", s.handleFlag)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return s
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "moderationd",
		AutoMod: s.services.Processor().Enabled(),
	})
}

// handleQueue derives the review queue from the backend's flagged listing.
// An empty queue is a legitimate terminal state, served as an empty array.
func (s *Server) handleQueue(c echo.Context) error {
	flagged, err := s.services.Backend().FlaggedMessages(c.Request().Context(), s.config.Queue.Limit)
	if err != nil {
		s.logger.Error("flagged listing fetch failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "flagged listing unavailable"})
	}

	items := queue.Derive(flagged)
	queue.Sort(items)
	return c.JSON(http.StatusOK, items)
}

func (s *Server) handleHistory(c echo.Context) error {
	return c.JSON(http.StatusOK, s.services.History().Merged())
}

func (s *Server) handleAutoModStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, AutoModRequest{Enabled: s.services.Processor().Enabled()})
}

// handleAutoModToggle flips the gate. Enabling mid-session resynchronizes
// from the last fetched batch without issuing fallback calls, so decisions
// the backend already made are picked up immediately.
func (s *Server) handleAutoModToggle(c echo.Context) error {
	var req AutoModRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	proc := s.services.Processor()
	if req.Enabled {
		proc.Enable()
		applied := proc.IngestBatch(c.Request().Context(), s.services.Poller().LastBatch())
		s.logger.Info("auto-moderation enabled via API", zap.Int("backfilled", applied))
	} else {
		proc.Disable()
	}
	return c.JSON(http.StatusOK, AutoModRequest{Enabled: proc.Enabled()})
}

func (s *Server) handleFlag(c echo.Context) error {
	var req FlagRequest
	if err := c.Bind(&req); err != nil || req.MessageID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "message_id required"})
	}

	if err := s.services.Flags().Flag(c.Request().Context(), req.MessageID, req.Reason); err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "flag submission failed"})
	}
	return c.JSON(http.StatusOK, map[string]bool{"flagged": true})
}

// Start starts the HTTP server and blocks until the context is cancelled,
// then performs a graceful shutdown. Returns http.ErrServerClosed on
// graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.config.Server.ShutdownTimeout,
		)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance, for tests and for registering
// additional routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
