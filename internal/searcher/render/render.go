// Package render turns a snippet into HTML: plain text is escaped and each
// $...$ or $$...$$ span is handed to a formula Renderer.
package render

import (
	"html"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Renderer converts one TeX formula to markup.
type Renderer interface {
	Render(tex string, display bool) (string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(tex string, display bool) (string, error)

func (f RendererFunc) Render(tex string, display bool) (string, error) {
	return f(tex, display)
}

var (
	parenMath   = regexp.MustCompile(`(?s)\\\((.*?)\\\)`)
	bracketMath = regexp.MustCompile(`(?s)\\\[(.*?)\\\]`)
)

// HTML escapes snippet for display and renders its math spans with r. With
// a nil r the whole snippet comes back escaped. A span whose closing
// delimiter is missing, or that r fails on, is kept as escaped text.
func HTML(snippet string, r Renderer) string {
	text := html.UnescapeString(snippet)
	text = parenMath.ReplaceAllString(text, "$$${1}$$")
	text = bracketMath.ReplaceAllString(text, "$$$$${1}$$$$")
	if r == nil {
		return html.EscapeString(text)
	}

	var b strings.Builder
	i := 0
	for i < len(text) {
		next := strings.IndexByte(text[i:], '$')
		if next < 0 {
			b.WriteString(html.EscapeString(text[i:]))
			break
		}
		next += i
		b.WriteString(html.EscapeString(text[i:next]))

		if !isOpener(text, next) {
			open := nextOpener(text, next+1)
			if open < 0 {
				b.WriteString(html.EscapeString(text[next:]))
				break
			}
			b.WriteString(html.EscapeString(text[next:open]))
			i = open
			continue
		}

		delim := "$"
		if strings.HasPrefix(text[next:], "$$") {
			delim = "$$"
		}
		start := next + len(delim)
		end := strings.Index(text[start:], delim)
		if end < 0 {
			b.WriteString(html.EscapeString(text[next:]))
			break
		}
		end += start
		i = end + len(delim)

		tex := strings.TrimSpace(text[start:end])
		if tex == "" {
			b.WriteString(html.EscapeString(delim + delim))
			continue
		}
		out, err := r.Render(tex, delim == "$$")
		if err != nil {
			slog.Default().With("component", "formula-renderer").Debug("formula render failed",
				"tex", tex,
				"error", err,
			)
			b.WriteString(html.EscapeString(delim + tex + delim))
			continue
		}
		b.WriteString(out)
	}
	return b.String()
}

// isOpener uses the same rule as the snippet extractor: a $ opens a formula
// at the start of text or after whitespace or '('.
func isOpener(text string, pos int) bool {
	if pos == 0 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:pos])
	return unicode.IsSpace(prev) || prev == '('
}

func nextOpener(text string, from int) int {
	for i := from; i < len(text); i++ {
		if text[i] == '$' && isOpener(text, i) {
			return i
		}
	}
	return -1
}

// MarkupRenderer emits escaped TeX inside \(...\) or \[...\] spans for a
// client-side math typesetter.
type MarkupRenderer struct{}

func (MarkupRenderer) Render(tex string, display bool) (string, error) {
	if display {
		return `<span class="math display">\[` + html.EscapeString(tex) + `\]</span>`, nil
	}
	return `<span class="math inline">\(` + html.EscapeString(tex) + `\)</span>`, nil
}
