package normalize

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
)

// Placeholder replaces collapsed display-math blocks.
const Placeholder = " … "

type replacement struct {
	re   *regexp2.Regexp
	with string
}

// Applied in order. The environment patterns need back-references, and the
// word-glue rule needs look-ahead, neither of which RE2 supports.
var noiseRules = []replacement{
	{regexp2.MustCompile(`\{%[\s\S]*?%\}`, regexp2.None), " "},
	{regexp2.MustCompile(`\{\{[\s\S]*?\}\}`, regexp2.None), " "},
	{regexp2.MustCompile(`\\\(\s*\\begin\{(gathered|aligned)\}[\s\S]*?\\end\{\1\}\s*\\\)`, regexp2.None), Placeholder},
	{regexp2.MustCompile(`\\\[\s*\\begin\{(gathered|aligned)\}[\s\S]*?\\end\{\1\}\s*\\\]`, regexp2.None), Placeholder},
	{regexp2.MustCompile(`\\begin\{(gathered|aligned)\}[\s\S]*?\\end\{\1\}`, regexp2.None), Placeholder},
	{regexp2.MustCompile(`\$\$[\s\S]*?\$\$`, regexp2.None), Placeholder},
	{regexp2.MustCompile(`\\\[[\s\S]*?\\\]`, regexp2.None), Placeholder},
}

var glueRules = []replacement{
	// ".Paradosso" -> ". … Paradosso"
	{regexp2.MustCompile(`([.!?])(\p{Lu})`, regexp2.None), "$1" + Placeholder + "$2"},
	// "rappresentaIl" -> "rappresenta … Il"; all-caps runs such as "MC" are left alone
	{regexp2.MustCompile(`([\p{Ll}\p{N}])(\p{Lu})(?=\p{Ll})`, regexp2.None), "$1" + Placeholder + "$2"},
}

var inlineMath = regexp2.MustCompile(`(\$\$?)([\s\S]*?)(\1)`, regexp2.None)

// StripNoise removes templating directives, collapses long math
// environments and display equations into Placeholder, separates sentences
// that extraction glued together, and collapses whitespace. Inline $…$
// spans are preserved byte for byte.
func StripNoise(text string) string {
	if text == "" {
		return ""
	}
	for _, rule := range noiseRules {
		text = replaceAll(rule, text)
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, seg := range splitInlineMath(text) {
		if seg.math {
			b.WriteString(seg.text)
			continue
		}
		s := seg.text
		for _, rule := range glueRules {
			s = replaceAll(rule, s)
		}
		b.WriteString(collapseSpace(s))
	}
	return strings.TrimSpace(b.String())
}

type segment struct {
	text string
	math bool
}

func splitInlineMath(text string) []segment {
	rs := []rune(text)
	segs := make([]segment, 0, 4)
	last := 0
	m, err := inlineMath.FindRunesMatch(rs)
	for err == nil && m != nil {
		if m.Index > last {
			segs = append(segs, segment{text: string(rs[last:m.Index])})
		}
		segs = append(segs, segment{text: string(rs[m.Index : m.Index+m.Length]), math: true})
		last = m.Index + m.Length
		m, err = inlineMath.FindNextMatch(m)
	}
	if err != nil {
		slog.Default().With("component", "noise-stripper").Warn("inline math scan aborted", "error", err)
	}
	if last < len(rs) {
		segs = append(segs, segment{text: string(rs[last:])})
	}
	return segs
}

func replaceAll(rule replacement, text string) string {
	out, err := rule.re.Replace(text, rule.with, -1, -1)
	if err != nil {
		slog.Default().With("component", "noise-stripper").Warn("replacement aborted",
			"pattern", rule.re.String(),
			"error", err,
		)
		return text
	}
	return out
}

// collapseSpace turns every whitespace run into one ASCII space without
// trimming, so a space next to an inline formula survives.
func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
