package highlight

import (
	"bytes"
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/tbag/core/internal/ports"
)

const defaultStyle = "github"

// ChromaRenderer highlights source with chroma and emits inline-styled spans
// without a surrounding <pre>, so the page template decides the wrapper.
type ChromaRenderer struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

// Ensure ChromaRenderer implements ports.Renderer
var _ ports.Renderer = (*ChromaRenderer)(nil)

// NewChromaRenderer creates a renderer using the named chroma style.
// Unknown styles fall back to chroma's default.
func NewChromaRenderer(styleName string) *ChromaRenderer {
	if styleName == "" {
		styleName = defaultStyle
	}
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}

	return &ChromaRenderer{
		style: style,
		formatter: chromahtml.New(
			chromahtml.PreventSurroundingPre(true),
			chromahtml.TabWidth(4),
		),
	}
}

// Highlight never fails: when no lexer applies or formatting breaks, the
// source comes back HTML-escaped.
func (r *ChromaRenderer) Highlight(source, language string) string {
	lexer := lexerFor(source, language)

	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		return html.EscapeString(source)
	}

	var buf bytes.Buffer
	if err := r.formatter.Format(&buf, r.style, iterator); err != nil {
		return html.EscapeString(source)
	}
	return buf.String()
}

func lexerFor(source, language string) chroma.Lexer {
	lexer := lexers.Get(strings.ToLower(strings.TrimSpace(language)))
	if lexer == nil && language != "" {
		lexer = lexers.Analyse(source)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}
