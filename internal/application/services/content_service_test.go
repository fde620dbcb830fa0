package services

import (
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbag/core/internal/domain/entities"
	"github.com/tbag/core/internal/infrastructure/logger"
)

type countingVisits struct {
	mu     sync.Mutex
	events []string
}

func (c *countingVisits) Record(filename string, kind entities.VisitKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, fmt.Sprintf("%s:%s", kind, filename))
}

type plainRenderer struct{}

func (plainRenderer) Highlight(source, language string) string {
	return "<" + language + ">" + source
}

type plainPages struct{}

func (plainPages) Render(filename, code string) []byte {
	return []byte(filename + "|" + code)
}

func TestContentService_OpenRaw(t *testing.T) {
	f := newRouterFixture(t)
	visits := &countingVisits{}
	svc := NewContentService(f.content, plainRenderer{}, plainPages{}, visits, logger.NewNop())

	d := f.router.Route(RouteRequest{Host: "localhost", Path: "/raw/scripts/deploy.ps1"})
	require.Equal(t, ActionServeRaw, d.Action)

	for i := 0; i < 2; i++ {
		rc, err := svc.OpenRaw(d)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "Write-Host 'deploy'", string(data))
	}

	assert.Equal(t, []string{"raw:scripts/deploy.ps1", "raw:scripts/deploy.ps1"}, visits.events)
}

func TestContentService_OpenRawMissingFileIsNotCounted(t *testing.T) {
	f := newRouterFixture(t)
	visits := &countingVisits{}
	svc := NewContentService(f.content, plainRenderer{}, plainPages{}, visits, logger.NewNop())

	d := f.router.Route(RouteRequest{Host: "localhost", Path: "/raw/scripts/gone.ps1"})
	require.Equal(t, ActionServeRaw, d.Action)

	_, err := svc.OpenRaw(d)
	assert.Error(t, err)
	assert.Empty(t, visits.events)
}

func TestContentService_RenderPage(t *testing.T) {
	f := newRouterFixture(t)
	visits := &countingVisits{}
	svc := NewContentService(f.content, plainRenderer{}, plainPages{}, visits, logger.NewNop())

	d := f.router.Route(RouteRequest{Host: "localhost", Path: "/scripts/deploy.ps1"})
	require.Equal(t, ActionServeRendered, d.Action)

	page, err := svc.RenderPage(d)
	require.NoError(t, err)
	assert.Equal(t, "scripts/deploy.ps1|<PowerShell>Write-Host 'deploy'", string(page))
	assert.Equal(t, []string{"html:scripts/deploy.ps1"}, visits.events)
}

func TestContentService_RenderPageReadFailure(t *testing.T) {
	f := newRouterFixture(t)
	visits := &countingVisits{}
	svc := NewContentService(f.content, plainRenderer{}, plainPages{}, visits, logger.NewNop())

	d := f.router.Route(RouteRequest{Host: "localhost", Path: "/scripts/deploy.ps1"})
	require.Equal(t, ActionServeRendered, d.Action)
	require.NoError(t, os.Remove(d.AbsolutePath))

	_, err := svc.RenderPage(d)
	assert.ErrorIs(t, err, entities.ErrFileNotFound)
	assert.Empty(t, visits.events)
}

func TestContentService_RejectsWrongAction(t *testing.T) {
	f := newRouterFixture(t)
	svc := NewContentService(f.content, plainRenderer{}, plainPages{}, &countingVisits{}, logger.NewNop())

	_, err := svc.OpenRaw(Decision{Action: ActionNotFound})
	assert.Error(t, err)
	_, err = svc.RenderPage(Decision{Action: ActionServeRaw})
	assert.Error(t, err)
}
