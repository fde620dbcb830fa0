package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbag/core/internal/adapters/filesystem"
	"github.com/tbag/core/internal/domain/entities"
	"github.com/tbag/core/internal/infrastructure/logger"
	"github.com/tbag/core/internal/infrastructure/metrics"
)

const (
	browserUA    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	powershellUA = "Mozilla/5.0 (Windows NT 10.0; Microsoft Windows 10.0.19045; en-US) PowerShell/7.4.0"
)

type routerFixture struct {
	root    string
	index   *IndexService
	content *filesystem.ContentStore
	router  *Router
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	base := t.TempDir()
	root := filepath.Join(base, "files")
	files := map[string]string{
		"scripts/deploy.ps1": "Write-Host 'deploy'",
		"tools/cleanup.sh":   "#!/bin/sh\necho cleanup",
		"notes/readme.txt":   "not a script",
	}
	for rel, body := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(base, "passwd.sh"), []byte("secret"), 0644))

	languages := entities.NewLanguageMap(entities.DefaultLanguages)
	scanner, err := filesystem.NewScanner(root, languages, nil)
	require.NoError(t, err)
	content, err := filesystem.NewContentStore(root)
	require.NoError(t, err)

	m := metrics.New()
	index := NewIndexService(scanner, entities.CollisionKeepLast, logger.NewNop(), m)
	require.NoError(t, index.Rebuild(context.Background()))

	router, err := NewRouter(index, content, languages, RouterConfig{
		PublicBaseURL: "http://localhost:4200",
		RawPrefix:     "/raw",
		RawUserAgents: []string{"PowerShell", "curl", "Wget"},
	}, logger.NewNop(), m)
	require.NoError(t, err)

	return &routerFixture{root: root, index: index, content: content, router: router}
}

func TestRouter_SubdomainRedirects(t *testing.T) {
	f := newRouterFixture(t)

	tests := []struct {
		name     string
		host     string
		ua       string
		action   Action
		location string
	}{
		{"powershell gets raw", "deploy.example.com", powershellUA, ActionRedirectRaw, "http://localhost:4200/raw/scripts/deploy.ps1"},
		{"curl gets raw", "deploy.example.com", "curl/8.4.0", ActionRedirectRaw, "http://localhost:4200/raw/scripts/deploy.ps1"},
		{"wget gets raw", "cleanup.example.com", "Wget/1.21.4", ActionRedirectRaw, "http://localhost:4200/raw/tools/cleanup.sh"},
		{"marker is case-insensitive", "deploy.example.com", "CURL", ActionRedirectRaw, "http://localhost:4200/raw/scripts/deploy.ps1"},
		{"browser gets rendered", "deploy.example.com", browserUA, ActionRedirectRendered, "http://localhost:4200/scripts/deploy.ps1"},
		{"empty agent gets rendered", "deploy.example.com", "", ActionRedirectRendered, "http://localhost:4200/scripts/deploy.ps1"},
		{"label is case-insensitive", "DEPLOY.Example.com", browserUA, ActionRedirectRendered, "http://localhost:4200/scripts/deploy.ps1"},
		{"host with port", "deploy.localhost:4200", browserUA, ActionRedirectRendered, "http://localhost:4200/scripts/deploy.ps1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := f.router.Route(RouteRequest{Host: tt.host, Path: "/", UserAgent: tt.ua})
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.location, d.Location)
			assert.Equal(t, uint64(1), d.Generation)
		})
	}
}

func TestRouter_SubdomainTakesPrecedenceOverPath(t *testing.T) {
	f := newRouterFixture(t)

	for _, path := range []string{"/raw/tools/cleanup.sh", "/tools/cleanup.sh", "/does/not/exist.ps1"} {
		d := f.router.Route(RouteRequest{Host: "deploy.example.com", Path: path, UserAgent: browserUA})
		assert.Equal(t, ActionRedirectRendered, d.Action, path)
		assert.Equal(t, "scripts/deploy.ps1", d.RelativePath)
	}
}

func TestRouter_CanonicalHostIsNeverTreatedAsSubdomain(t *testing.T) {
	f := newRouterFixture(t)
	path := filepath.Join(f.root, "localhost.ps1")
	require.NoError(t, os.WriteFile(path, []byte("Write-Host 'loop'"), 0644))
	require.NoError(t, f.index.Rebuild(context.Background()))

	d := f.router.Route(RouteRequest{Host: "localhost:4200", Path: "/scripts/deploy.ps1", UserAgent: browserUA})
	assert.Equal(t, ActionServeRendered, d.Action)

	d = f.router.Route(RouteRequest{Host: "localhost.example.com", Path: "/", UserAgent: browserUA})
	assert.Equal(t, ActionRedirectRendered, d.Action)
}

func TestRouter_ServeRaw(t *testing.T) {
	f := newRouterFixture(t)

	d := f.router.Route(RouteRequest{Host: "localhost:4200", Path: "/raw/scripts/deploy.ps1", UserAgent: powershellUA})
	require.Equal(t, ActionServeRaw, d.Action)
	assert.Equal(t, "scripts/deploy.ps1", d.RelativePath)
	assert.Equal(t, filepath.Join(f.content.Root(), "scripts", "deploy.ps1"), d.AbsolutePath)
	assert.Equal(t, "PowerShell", d.Language)
}

func TestRouter_ServeRendered(t *testing.T) {
	f := newRouterFixture(t)

	d := f.router.Route(RouteRequest{Host: "localhost:4200", Path: "/tools/cleanup.sh", UserAgent: browserUA})
	require.Equal(t, ActionServeRendered, d.Action)
	assert.Equal(t, "tools/cleanup.sh", d.RelativePath)
	assert.Equal(t, "Bash", d.Language)
}

func TestRouter_NotFound(t *testing.T) {
	f := newRouterFixture(t)

	tests := []struct {
		name   string
		path   string
		want   error
		escape bool
	}{
		{"missing rendered file", "/scripts/missing.ps1", entities.ErrFileNotFound, false},
		{"disallowed extension", "/notes/readme.txt", entities.ErrExtensionNotAllowed, false},
		{"disallowed raw extension", "/raw/notes/readme.txt", entities.ErrExtensionNotAllowed, false},
		{"root", "/", entities.ErrInvalidPath, false},
		{"bare raw prefix", "/raw", entities.ErrInvalidPath, false},
		{"raw traversal", "/raw/../../etc/passwd", entities.ErrPathEscape, true},
		{"raw traversal to sibling", "/raw/../passwd.sh", entities.ErrPathEscape, true},
		{"rendered traversal", "/../passwd.sh", entities.ErrPathEscape, true},
		{"backslash traversal", `/raw/..\passwd.sh`, entities.ErrInvalidPath, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := f.router.Route(RouteRequest{Host: "localhost:4200", Path: tt.path, UserAgent: browserUA})
			assert.Equal(t, ActionNotFound, d.Action)
			assert.ErrorIs(t, d.Err, tt.want)
			assert.Equal(t, tt.escape, d.IsEscapeAttempt())
		})
	}
}

func TestRouter_RawPrefixMustBeWholeSegment(t *testing.T) {
	f := newRouterFixture(t)

	d := f.router.Route(RouteRequest{Host: "localhost:4200", Path: "/rawscripts/deploy.ps1", UserAgent: browserUA})
	assert.Equal(t, ActionNotFound, d.Action)
	assert.ErrorIs(t, d.Err, entities.ErrFileNotFound)
}

func TestRouter_EscapesRedirectLocation(t *testing.T) {
	f := newRouterFixture(t)
	dir := filepath.Join(f.root, "my scripts")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "install.ps1"), []byte("x"), 0644))
	require.NoError(t, f.index.Rebuild(context.Background()))

	d := f.router.Route(RouteRequest{Host: "install.example.com", Path: "/", UserAgent: "curl/8"})
	assert.Equal(t, "http://localhost:4200/raw/my%20scripts/install.ps1", d.Location)
}

func TestNewRouter_InvalidBaseURL(t *testing.T) {
	f := newRouterFixture(t)
	_, err := NewRouter(f.index, f.content, entities.NewLanguageMap(entities.DefaultLanguages), RouterConfig{PublicBaseURL: "not a url"}, logger.NewNop(), metrics.New())
	assert.Error(t, err)
}

func TestSubdomainLabel(t *testing.T) {
	tests := map[string]string{
		"deploy.example.com":      "deploy",
		"Deploy.Example.COM":      "deploy",
		"deploy.example.com:8080": "deploy",
		"localhost":               "localhost",
		"localhost:4200":          "localhost",
		"":                        "",
		".example.com":            "",
		"[::1]:4200":              "::1",
		":::":                     ":::",
	}

	for host, want := range tests {
		assert.Equal(t, want, SubdomainLabel(host), host)
	}
}

func TestRouter_RedirectOnlyMatchesSubdomains(t *testing.T) {
	f := newRouterFixture(t)

	d, ok := f.router.Redirect(RouteRequest{Host: "deploy.example.com", Path: "/healthz", UserAgent: "curl/8"})
	require.True(t, ok)
	assert.Equal(t, ActionRedirectRaw, d.Action)

	_, ok = f.router.Redirect(RouteRequest{Host: "unknown.example.com", Path: "/scripts/deploy.ps1"})
	assert.False(t, ok)

	_, ok = f.router.Redirect(RouteRequest{Host: "localhost:4200", Path: "/scripts/deploy.ps1"})
	assert.False(t, ok)
}

func TestRouter_CanonicalRelativePath(t *testing.T) {
	f := newRouterFixture(t)

	tests := []struct {
		path   string
		action Action
	}{
		{"/scripts/./deploy.ps1", ActionServeRendered},
		{"/scripts//deploy.ps1", ActionServeRendered},
		{"/./././scripts/deploy.ps1", ActionServeRendered},
		{"/raw/scripts/./deploy.ps1", ActionServeRaw},
		{"/raw//scripts//deploy.ps1", ActionServeRaw},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			d := f.router.Route(RouteRequest{Host: "localhost:4200", Path: tt.path, UserAgent: browserUA})
			require.Equal(t, tt.action, d.Action)
			assert.Equal(t, "scripts/deploy.ps1", d.RelativePath)
		})
	}
}
