package services

import (
	"fmt"
	"io"

	"github.com/tbag/core/internal/domain/entities"
	"github.com/tbag/core/internal/infrastructure/logger"
	"github.com/tbag/core/internal/ports"
)

// ContentService executes the serve actions chosen by the Router
type ContentService struct {
	content  ports.ContentStore
	renderer ports.Renderer
	pages    ports.PageRenderer
	visits   ports.VisitCounter
	logger   *logger.Logger
}

// NewContentService creates a new content service
func NewContentService(content ports.ContentStore, renderer ports.Renderer, pages ports.PageRenderer, visits ports.VisitCounter, logger *logger.Logger) *ContentService {
	return &ContentService{
		content:  content,
		renderer: renderer,
		pages:    pages,
		visits:   visits,
		logger:   logger.WithComponent("content"),
	}
}

// OpenRaw opens the file behind a ServeRaw decision and counts a raw visit.
// The caller must close the returned reader.
func (s *ContentService) OpenRaw(d Decision) (io.ReadCloser, error) {
	if d.Action != ActionServeRaw {
		return nil, fmt.Errorf("open raw: unexpected action %s", d.Action)
	}

	rc, err := s.content.Open(d.AbsolutePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", d.RelativePath, err)
	}

	s.visits.Record(d.RelativePath, entities.VisitKindRaw)
	return rc, nil
}

// RenderPage produces the highlighted HTML page for a ServeRendered decision
// and counts an html visit
func (s *ContentService) RenderPage(d Decision) ([]byte, error) {
	if d.Action != ActionServeRendered {
		return nil, fmt.Errorf("render page: unexpected action %s", d.Action)
	}

	source, err := s.content.ReadFile(d.AbsolutePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w: %v", d.RelativePath, entities.ErrFileNotFound, err)
	}

	s.visits.Record(d.RelativePath, entities.VisitKindHTML)

	code := s.renderer.Highlight(string(source), d.Language)
	return s.pages.Render(d.RelativePath, code), nil
}
