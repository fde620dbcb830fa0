package template

import (
	_ "embed"
	"fmt"
	"html"
	"os"
	"strings"

	"github.com/tbag/core/internal/ports"
)

const (
	filenamePlaceholder = "%filename%"
	codePlaceholder     = "%code%"
)

//go:embed default_page.html
var defaultPage string

// Page substitutes a file name and highlighted code into an HTML template
// that is read once at construction
type Page struct {
	source string
}

// Ensure Page implements ports.PageRenderer
var _ ports.PageRenderer = (*Page)(nil)

// Load reads the template at path, or uses the built-in page when path is empty
func Load(path string) (*Page, error) {
	if path == "" {
		return &Page{source: defaultPage}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read page template: %w", err)
	}

	source := string(data)
	if !strings.Contains(source, codePlaceholder) {
		return nil, fmt.Errorf("page template %s has no %s placeholder", path, codePlaceholder)
	}

	return &Page{source: source}, nil
}

// Render fills both placeholders in a single pass, so text inside the code
// is never substituted again. The file name is HTML-escaped; code is
// inserted as-is because the highlighter already escaped it.
func (p *Page) Render(filename, code string) []byte {
	r := strings.NewReplacer(
		filenamePlaceholder, html.EscapeString(filename),
		codePlaceholder, code,
	)
	return []byte(r.Replace(p.source))
}
