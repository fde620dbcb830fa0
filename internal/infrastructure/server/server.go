package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpHandlers "github.com/tbag/core/internal/adapters/http"
	"github.com/tbag/core/internal/application/services"
	"github.com/tbag/core/internal/infrastructure/config"
	"github.com/tbag/core/internal/infrastructure/logger"
	"github.com/tbag/core/internal/infrastructure/metrics"
)

// Pinger is anything whose health can be probed
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the HTTP server routes to
type Dependencies struct {
	Files   *httpHandlers.FileHandler
	Index   *services.IndexService
	Counter Pinger
	Metrics *metrics.Metrics
}

// Server represents the HTTP server
type Server struct {
	echo    *echo.Echo
	config  *config.Config
	logger  *logger.Logger
	deps    Dependencies
	started time.Time
}

// New creates a new server instance
func New(cfg *config.Config, deps Dependencies, appLogger *logger.Logger) *Server {
	e := echo.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout

	// Custom error handler
	e.HTTPErrorHandler = customErrorHandler(appLogger)

	server := &Server{
		echo:    e,
		config:  cfg,
		logger:  appLogger.WithComponent("http"),
		deps:    deps,
		started: time.Now(),
	}

	// Setup middleware
	server.setupMiddleware()

	// Setup metrics
	if cfg.Metrics.Enabled && deps.Metrics != nil {
		server.setupMetrics()
	}

	// Subdomain matches are answered before routing
	e.Pre(deps.Files.SubdomainRedirect())

	// Setup routes
	server.setupRoutes()

	return server
}

// Handler exposes the echo instance, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// setupMiddleware configures middleware. Everything is registered with Pre so
// it also wraps the subdomain redirects, which never reach the router.
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.echo.Pre(middleware.Recover())

	// Request ID middleware
	s.echo.Pre(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: newRequestID,
	}))

	// Logger middleware
	s.echo.Pre(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogHost:      true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			s.logger.
				WithRequestID(values.RequestID).
				WithFields("host", values.Host).
				LogHTTPRequest(
					values.Method,
					values.URI,
					values.UserAgent,
					values.RemoteIP,
					values.Status,
					float64(values.Latency.Nanoseconds())/1000000,
					values.Error,
				)
			return nil
		},
	}))

	// CORS middleware
	s.echo.Pre(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: splitOrigins(s.config.Security.CORSAllowedOrigins),
		AllowMethods: []string{http.MethodGet},
	}))

	// Rate limiting middleware
	if s.config.Security.RateLimitRequests > 0 {
		s.echo.Pre(middleware.RateLimiterWithConfig(rateLimiterConfig(s.config.Security)))
	}

	// Security headers
	s.echo.Pre(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'; style-src 'self' 'unsafe-inline'",
	}))

	// Request deadline
	if s.config.Server.RequestTimeout > 0 {
		s.echo.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
			Timeout: s.config.Server.RequestTimeout,
		}))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.echo.GET("/healthz", s.healthCheck)
	// Serving counts a visit, so only GET reaches the file handler.
	s.echo.GET("/*", s.deps.Files.Serve)
}

// setupMetrics configures Prometheus metrics
func (s *Server) setupMetrics() {
	m := s.deps.Metrics

	// Custom metrics middleware
	s.echo.Pre(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start)
			status := c.Response().Status

			// Subdomain redirects are answered before a route is matched.
			route := c.Path()
			if route == "" {
				route = "subdomain"
			}

			m.RequestsTotal.WithLabelValues(
				c.Request().Method,
				route,
				fmt.Sprintf("%d", status),
			).Inc()

			m.RequestDuration.WithLabelValues(
				c.Request().Method,
				route,
			).Observe(duration.Seconds())

			return err
		}
	})

	path := s.config.Metrics.Path
	if path == "" {
		path = "/metrics"
	}
	metricsHandler := promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
	s.echo.GET(path, echo.WrapHandler(metricsHandler))
}

// healthCheck reports liveness together with the state of the file index
func (s *Server) healthCheck(c echo.Context) error {
	snapshot := s.deps.Index.Snapshot()

	status := "ok"
	code := http.StatusOK
	counter := "ok"

	if s.deps.Counter != nil {
		if err := s.deps.Counter.Ping(c.Request().Context()); err != nil {
			status = "degraded"
			counter = err.Error()
		}
	}

	response := map[string]interface{}{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"index": map[string]interface{}{
			"generation": snapshot.Generation,
			"entries":    snapshot.Len(),
			"collisions": len(snapshot.Collisions()),
			"built_at":   builtAt(snapshot),
		},
		"counter": map[string]string{
			"backend": s.config.Counter.Backend,
			"status":  counter,
		},
		"version": s.config.App.Version,
	}

	return c.JSON(code, response)
}

// Start starts the HTTP server and blocks until it stops. A graceful
// shutdown is not reported as an error.
func (s *Server) Start(address string) error {
	s.logger.Infow("Starting server", "address", address)
	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infow("Shutting down server")
	return s.echo.Shutdown(ctx)
}

func builtAt(snapshot *services.Snapshot) interface{} {
	if snapshot.BuiltAt.IsZero() {
		return nil
	}
	return snapshot.BuiltAt.Format(time.RFC3339)
}

// customErrorHandler renders errors as plain text
func customErrorHandler(logger *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var (
			code = http.StatusInternalServerError
			msg  = http.StatusText(http.StatusInternalServerError)
		)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(code)
			}
			if he.Internal != nil {
				err = fmt.Errorf("%v, %v", err, he.Internal)
			}
		}

		if code == http.StatusNotFound {
			msg = "File not found"
		}

		if code >= http.StatusInternalServerError {
			logger.Errorw("Internal server error", "error", err, "path", c.Request().URL.Path)
		}

		// Send response
		if !c.Response().Committed {
			if c.Request().Method == http.MethodHead {
				err = c.NoContent(code)
			} else {
				err = c.String(code, msg)
			}
			if err != nil {
				logger.Errorw("Error sending response", "error", err)
			}
		}
	}
}
