// Package http is the HTTP adapter: it translates API calls into workflow
// engine and repository operations and never contains workflow logic itself.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/config"
)

// Server is the HTTP server adapter
type Server struct {
	config     config.ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     *zap.Logger
}

// NewServer creates an HTTP server around the given handlers
func NewServer(cfg config.ServerConfig, handlers *Handlers, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	server := &Server{
		config:   cfg,
		router:   router,
		handlers: handlers,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()
	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.HealthCheck)

	api := s.router.Group("/api")
	{
		api.POST("/requests", s.handlers.SubmitRequest)
		api.GET("/requests", s.handlers.ListRequests)
		api.GET("/requests/:id", s.handlers.GetRequest)
		api.GET("/requests/:id/audit", s.handlers.GetRequestAudit)
		api.GET("/requests/:id/audit/export", s.handlers.ExportRequestAudit)
		api.POST("/requests/:id/progress", s.handlers.ProgressRequest)
		api.POST("/requests/:id/transition", s.handlers.ApplyTransition)
		api.POST("/requests/:id/cancel", s.handlers.CancelRequest)
		api.GET("/reports/requests", s.handlers.ExportRequests)
		api.GET("/transitions", s.handlers.ListTransitions)
	}
}

// Start runs the server until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
