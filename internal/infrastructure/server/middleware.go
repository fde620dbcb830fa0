package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/tbag/core/internal/infrastructure/config"
)

// newRequestID generates the X-Request-ID for requests that arrive without one
func newRequestID() string {
	return uuid.New().String()
}

// splitOrigins parses the comma separated CORS origin list
func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// rateLimiterConfig allows RateLimitRequests per client IP per RateLimitWindow
func rateLimiterConfig(cfg config.SecurityConfig) middleware.RateLimiterConfig {
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}

	return middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/healthz"
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(float64(cfg.RateLimitRequests) / window.Seconds()),
				Burst:     cfg.RateLimitRequests,
				ExpiresIn: window,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.String(http.StatusForbidden, "Unable to identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.String(http.StatusTooManyRequests, "Too many requests")
		},
	}
}
