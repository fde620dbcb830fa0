package services

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"github.com/tbag/core/internal/domain/entities"
	"github.com/tbag/core/internal/infrastructure/logger"
	"github.com/tbag/core/internal/infrastructure/metrics"
	"github.com/tbag/core/internal/ports"
)

// Action is what the HTTP layer should do with a request
type Action string

const (
	ActionRedirectRaw      Action = "redirect_raw"
	ActionRedirectRendered Action = "redirect_rendered"
	ActionServeRaw         Action = "serve_raw"
	ActionServeRendered    Action = "serve_rendered"
	ActionNotFound         Action = "not_found"
)

// RouteRequest carries the request attributes routing depends on
type RouteRequest struct {
	Host      string
	Path      string
	UserAgent string
}

// Decision is the outcome of routing a single request
type Decision struct {
	Action Action

	// Location is set for redirects
	Location string
	// Entry is the index entry matched by the subdomain, if any
	Entry entities.IndexEntry

	RelativePath string
	AbsolutePath string
	Language     string

	// Generation of the index snapshot the decision was made against
	Generation uint64
	// Err explains a NotFound decision
	Err error
}

// RouterConfig tunes the router
type RouterConfig struct {
	PublicBaseURL string
	RawPrefix     string
	RawUserAgents []string
}

// Router turns a host/path/user-agent triple into a Decision. It reads a
// single index snapshot per request and never mutates anything.
type Router struct {
	index     *IndexService
	content   ports.ContentStore
	languages entities.LanguageMap
	logger    *logger.Logger
	metrics   *metrics.Metrics

	baseURL       string
	canonicalHost string
	rawPrefix     string
	rawAgents     []string
}

// NewRouter creates a router
func NewRouter(index *IndexService, content ports.ContentStore, languages entities.LanguageMap, cfg RouterConfig, logger *logger.Logger, m *metrics.Metrics) (*Router, error) {
	base, err := url.Parse(cfg.PublicBaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid public base url %q", cfg.PublicBaseURL)
	}

	prefix := "/" + strings.Trim(cfg.RawPrefix, "/")
	if prefix == "/" {
		prefix = "/raw"
	}

	agents := make([]string, 0, len(cfg.RawUserAgents))
	for _, a := range cfg.RawUserAgents {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			agents = append(agents, a)
		}
	}

	return &Router{
		index:         index,
		content:       content,
		languages:     languages,
		logger:        logger.WithComponent("router"),
		metrics:       m,
		baseURL:       strings.TrimRight(base.String(), "/"),
		canonicalHost: strings.ToLower(base.Hostname()),
		rawPrefix:     prefix,
		rawAgents:     agents,
	}, nil
}

// RawPrefix returns the normalised raw path prefix
func (r *Router) RawPrefix() string {
	return r.rawPrefix
}

// Route decides how to answer a request. Subdomain matches always win over
// path-based serving.
func (r *Router) Route(req RouteRequest) Decision {
	snapshot := r.index.Snapshot()
	d := r.route(snapshot, req)
	d.Generation = snapshot.Generation
	r.metrics.RouteDecisions.WithLabelValues(string(d.Action)).Inc()
	return d
}

// Redirect answers only the subdomain question: it returns a redirect
// decision when the host's label names an indexed file
func (r *Router) Redirect(req RouteRequest) (Decision, bool) {
	if r.isCanonicalHost(req.Host) {
		return Decision{}, false
	}
	snapshot := r.index.Snapshot()
	entry, ok := ResolveSubdomain(snapshot, req.Host)
	if !ok {
		return Decision{}, false
	}
	d := r.redirect(entry, req.UserAgent)
	d.Generation = snapshot.Generation
	r.metrics.RouteDecisions.WithLabelValues(string(d.Action)).Inc()
	return d, true
}

func (r *Router) route(snapshot *Snapshot, req RouteRequest) Decision {
	if !r.isCanonicalHost(req.Host) {
		if entry, ok := ResolveSubdomain(snapshot, req.Host); ok {
			return r.redirect(entry, req.UserAgent)
		}
	}

	if rel, ok := r.stripRawPrefix(req.Path); ok {
		abs, language, err := r.locate(rel)
		if err != nil {
			return notFound(rel, err)
		}
		return Decision{Action: ActionServeRaw, RelativePath: canonicalPath(rel), AbsolutePath: abs, Language: language}
	}

	rel := req.Path
	abs, language, err := r.locate(rel)
	if err != nil {
		return notFound(rel, err)
	}

	exists, err := r.content.Stat(abs)
	if err != nil {
		return notFound(rel, err)
	}
	if !exists {
		return notFound(rel, entities.ErrFileNotFound)
	}

	return Decision{Action: ActionServeRendered, RelativePath: canonicalPath(rel), AbsolutePath: abs, Language: language}
}

// IsRawAgent reports whether the User-Agent asks for raw content
func (r *Router) IsRawAgent(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, marker := range r.rawAgents {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}

func (r *Router) redirect(entry entities.IndexEntry, userAgent string) Decision {
	target := escapePath(entry.RelativePath)
	if r.IsRawAgent(userAgent) {
		return Decision{
			Action:       ActionRedirectRaw,
			Location:     r.baseURL + r.rawPrefix + target,
			Entry:        entry,
			RelativePath: entry.RelativePath,
			Language:     entry.Language,
		}
	}
	return Decision{
		Action:       ActionRedirectRendered,
		Location:     r.baseURL + target,
		Entry:        entry,
		RelativePath: entry.RelativePath,
		Language:     entry.Language,
	}
}

// locate runs the containment check and the extension allow-list
func (r *Router) locate(rel string) (string, string, error) {
	abs, err := r.content.Resolve(rel)
	if err != nil {
		return "", "", err
	}
	language, ok := r.languages.Detect(rel)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", entities.ErrExtensionNotAllowed, rel)
	}
	return abs, language, nil
}

func (r *Router) stripRawPrefix(reqPath string) (string, bool) {
	if reqPath == r.rawPrefix {
		return "", true
	}
	if strings.HasPrefix(reqPath, r.rawPrefix+"/") {
		return reqPath[len(r.rawPrefix)+1:], true
	}
	return "", false
}

func (r *Router) isCanonicalHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.EqualFold(host, r.canonicalHost)
}

func notFound(rel string, err error) Decision {
	return Decision{Action: ActionNotFound, RelativePath: rel, Err: err}
}

// IsEscapeAttempt reports whether a NotFound decision was caused by a path
// that tried to leave the content root
func (d Decision) IsEscapeAttempt() bool {
	if d.Action != ActionNotFound {
		return false
	}
	if errors.Is(d.Err, entities.ErrPathEscape) {
		return true
	}
	return errors.Is(d.Err, entities.ErrInvalidPath) && strings.Trim(d.RelativePath, "/") != ""
}

// canonicalPath folds "." segments and repeated slashes so that every
// spelling of a file shares one counter key and page title. Only call it on
// paths that already passed Resolve, which rejects "..".
func canonicalPath(rel string) string {
	return path.Clean("/" + rel)[1:]
}

func escapePath(rel string) string {
	return (&url.URL{Path: "/" + rel}).EscapedPath()
}
