// Package http serves repository descriptions over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fyrsmithlabs/repodescribe/internal/pipeline"
	"github.com/fyrsmithlabs/repodescribe/internal/sink"
	"github.com/fyrsmithlabs/repodescribe/internal/source"
	"github.com/fyrsmithlabs/repodescribe/internal/summarize"
)

// Runner executes one description run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Report, error)
}

// Server provides the describe API.
type Server struct {
	echo    *echo.Echo
	runner  Runner
	slots   *semaphore.Weighted
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// MaxConcurrentRuns bounds in-flight describe requests. Zero means 1.
	MaxConcurrentRuns int64
}

// NewServer creates a new HTTP server.
func NewServer(runner Runner, logger *zap.Logger, cfg *Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 1
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		runner:  runner,
		slots:   semaphore.NewWeighted(cfg.MaxConcurrentRuns),
		logger:  logger,
		config:  cfg,
		metrics: NewHTTPMetrics(logger),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/describe", s.handleDescribe)
}

// Echo exposes the underlying router.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleDescribe(c echo.Context) error {
	var req DescribeRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid describe request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Repository == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "repository field is required")
	}
	repo, err := source.ParseRepository(req.Repository)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Ref != "" {
		repo.Ref = req.Ref
	}
	if req.Path != "" {
		repo.Path = req.Path
	}
	if req.Namespace != "" {
		if err := sink.ValidateNamespace(req.Namespace); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	if !s.slots.TryAcquire(1) {
		describeRejected.Inc()
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many describe runs in flight")
	}
	defer s.slots.Release(1)
	describeInFlight.Inc()
	defer describeInFlight.Dec()

	report, err := s.runner.Run(c.Request().Context(), pipeline.Request{
		Repository: repo,
		Author:     req.Author,
		Namespace:  req.Namespace,
	})
	status := statusFor(err)
	describeRuns.WithLabelValues(resultLabel(err)).Inc()

	resp := DescribeResponse{Report: report}
	if err != nil {
		resp.Error = err.Error()
		s.logger.Warn("describe failed",
			zap.String("repository", repo.FullName()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	return c.JSON(status, resp)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, source.ErrNotDirectory):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrWalk),
		errors.Is(err, summarize.ErrAggregation),
		errors.Is(err, sink.ErrStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
