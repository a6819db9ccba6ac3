package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"cockpit-alerts/internal/service"
)

// Options configure the HTTP server.
type Options struct {
	Addr            string
	Mode            string
	ShutdownTimeout time.Duration
}

// Server exposes the alert service over JSON.
type Server struct {
	router *gin.Engine
	srv    *http.Server
	opts   Options
	logger zerolog.Logger
}

// New builds the router and registers every route.
func New(svc *service.Service, opts Options, logger zerolog.Logger) *Server {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	logger = logger.With().Str("component", "http").Logger()
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		router: router,
		srv:    &http.Server{Addr: opts.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second},
		opts:   opts,
		logger: logger,
	}
	s.setupRoutes(newHandlers(svc, logger))
	return s
}

func (s *Server) setupRoutes(h *handlers) {
	s.router.GET("/health", h.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/rules", h.listRules)
		v1.POST("/rules", h.addRule)
		v1.DELETE("/rules/:index", h.removeRule)
		v1.GET("/rules/templates", h.listTemplates)
		v1.POST("/rules/templates/:name", h.addTemplate)
		v1.GET("/rules/check", h.checkRules)

		v1.GET("/alerts/snapshot", h.snapshot)
		v1.POST("/alerts/notify", h.notify)
		v1.POST("/alerts/resend", h.resend)
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("API 服务器启动")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("服务器已关闭")
	return nil
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
