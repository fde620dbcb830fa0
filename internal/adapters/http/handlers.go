package http

import (
	"mime"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"

	"github.com/tbag/core/internal/application/services"
	"github.com/tbag/core/internal/infrastructure/logger"
)

const (
	msgNotFound   = "File not found"
	msgServeError = "Error serving the requested file"

	rawContentType = "text/plain; charset=utf-8"
)

// FileHandler serves the content tree: subdomain redirects, raw downloads and
// highlighted pages
type FileHandler struct {
	router  *services.Router
	content *services.ContentService
	logger  *logger.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(router *services.Router, content *services.ContentService, logger *logger.Logger) *FileHandler {
	return &FileHandler{
		router:  router,
		content: content,
		logger:  logger.WithComponent("files"),
	}
}

// SubdomainRedirect must run before routing so that a matching host label
// wins over every registered route
func (h *FileHandler) SubdomainRedirect() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d, ok := h.router.Redirect(routeRequest(c))
			if !ok {
				return next(c)
			}
			return c.Redirect(http.StatusFound, d.Location)
		}
	}
}

// Serve handles every path that is not an operational endpoint
func (h *FileHandler) Serve(c echo.Context) error {
	d := h.router.Route(routeRequest(c))

	switch d.Action {
	case services.ActionRedirectRaw, services.ActionRedirectRendered:
		return c.Redirect(http.StatusFound, d.Location)
	case services.ActionServeRaw:
		return h.serveRaw(c, d)
	case services.ActionServeRendered:
		return h.serveRendered(c, d)
	}

	if d.IsEscapeAttempt() {
		h.requestLogger(c).LogSecurityEvent("path_escape", c.RealIP(), map[string]interface{}{
			"path":  c.Request().URL.Path,
			"error": d.Err.Error(),
		})
	}
	return c.String(http.StatusNotFound, msgNotFound)
}

func (h *FileHandler) serveRaw(c echo.Context, d services.Decision) error {
	rc, err := h.content.OpenRaw(d)
	if err != nil {
		h.requestLogger(c).WithError(err).Errorw("Failed to open raw file", "path", d.RelativePath)
		return c.String(http.StatusInternalServerError, msgServeError)
	}
	defer rc.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(d.RelativePath)})
	c.Response().Header().Set(echo.HeaderContentDisposition, disposition)
	return c.Stream(http.StatusOK, rawContentType, rc)
}

func (h *FileHandler) serveRendered(c echo.Context, d services.Decision) error {
	page, err := h.content.RenderPage(d)
	if err != nil {
		h.requestLogger(c).WithError(err).Warnw("Failed to render file", "path", d.RelativePath)
		return c.String(http.StatusNotFound, msgNotFound)
	}
	return c.HTMLBlob(http.StatusOK, page)
}

func routeRequest(c echo.Context) services.RouteRequest {
	req := c.Request()
	return services.RouteRequest{
		Host:      req.Host,
		Path:      req.URL.Path,
		UserAgent: req.UserAgent(),
	}
}

// requestLogger tags log entries with the id set by the RequestID middleware
func (h *FileHandler) requestLogger(c echo.Context) *logger.Logger {
	return h.logger.WithRequestID(c.Response().Header().Get(echo.HeaderXRequestID))
}
