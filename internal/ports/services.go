package ports

import (
	"context"
	"io"

	"github.com/tbag/core/internal/domain/entities"
)

// Scanner walks the content tree and emits index entries in scan order
type Scanner interface {
	Scan(ctx context.Context) ([]entities.IndexEntry, error)
}

// Renderer produces highlighted HTML markup for source text.
// Implementations must not fail; they fall back to escaped plain text.
type Renderer interface {
	Highlight(source, language string) string
}

// PageRenderer composes the final HTML page around highlighted code
type PageRenderer interface {
	Render(filename, code string) []byte
}

// VisitCounter records visits without blocking the caller
type VisitCounter interface {
	Record(filename string, kind entities.VisitKind)
}

// ContentStore resolves request paths against the content root
type ContentStore interface {
	Resolve(relativePath string) (string, error)
	Stat(absolutePath string) (bool, error)
	Open(absolutePath string) (io.ReadCloser, error)
	ReadFile(absolutePath string) ([]byte, error)
	Root() string
}
