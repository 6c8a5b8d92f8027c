// Package ranker orders passing documents by their position in the book,
// then by score, and applies the global and per-chapter result caps.
package ranker

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/index"
)

const (
	DefaultMaxTotal      = 80
	DefaultMaxPerChapter = 6

	unknown     = 999
	unknownKind = 9
)

var (
	repeatedSlash = regexp.MustCompile(`/{2,}`)
	chapterPath   = regexp.MustCompile(`^/[a-z]{2}/([^/]+)/(\d+)(?:/([^/]*))?$`)
	sectionFile   = regexp.MustCompile(`^(\d+)(?:\.html)?$`)
	prefacePath   = regexp.MustCompile(`^/[a-z]{2}/pr\.html$`)
	siteMapPaths  = []*regexp.Regexp{
		regexp.MustCompile(`^/[a-z]{2}/?$`),
		regexp.MustCompile(`^/[a-z]{2}/index(?:\.html)?$`),
		regexp.MustCompile(`^/[a-z]{2}/toc-big(?:\.html)?$`),
		regexp.MustCompile(`^/[a-z]{2}/toc_big(?:\.html)?$`),
	}
)

// Key is a document's position in the book: part, chapter, section, and
// kind (0 for a chapter index page, 1 for a section, 9 for unplaced pages).
type Key struct {
	Part    int
	Chapter int
	Section int
	Kind    int
}

// Compare orders keys lexicographically.
func (k Key) Compare(o Key) int {
	switch {
	case k.Part != o.Part:
		return k.Part - o.Part
	case k.Chapter != o.Chapter:
		return k.Chapter - o.Chapter
	case k.Section != o.Section:
		return k.Section - o.Section
	default:
		return k.Kind - o.Kind
	}
}

// chapter identifies the per-chapter cap bucket.
type chapter struct {
	part, chapter int
}

func (k Key) bucket() chapter {
	return chapter{k.Part, k.Chapter}
}

// StripBase removes basePath from the front of url. A url equal to the base
// becomes "/".
func StripBase(url, basePath string) string {
	base := strings.TrimRight(basePath, "/")
	if url == "" || base == "" {
		return url
	}
	if url == base {
		return "/"
	}
	if strings.HasPrefix(url, base+"/") {
		return url[len(base):]
	}
	return url
}

func sitePath(url, basePath string) string {
	return repeatedSlash.ReplaceAllString(StripBase(url, basePath), "/")
}

// ParseBookOrderKey derives the sort key for url. Urls that do not look like
// the preface or a page inside /<lang>/<PART>/<chapter>/ sort last.
func ParseBookOrderKey(url, basePath string) Key {
	path := sitePath(url, basePath)
	if prefacePath.MatchString(path) {
		return Key{}
	}
	m := chapterPath.FindStringSubmatch(path)
	if m == nil {
		return Key{unknown, unknown, unknown, unknownKind}
	}
	part := RomanToInt(m[1])
	chap, err := strconv.Atoi(m[2])
	if err != nil || chap == 0 {
		chap = unknown
	}
	last := m[3]
	if last == "" || last == "index" || last == "index.html" {
		return Key{part, chap, 0, 0}
	}
	sec := unknown
	if sm := sectionFile.FindStringSubmatch(last); sm != nil {
		if n, err := strconv.Atoi(sm[1]); err == nil && n != 0 {
			sec = n
		}
	}
	return Key{part, chap, sec, 1}
}

// IsSiteMap reports whether url is a language landing page or the big table
// of contents. Those pages are never search results.
func IsSiteMap(url, basePath string) bool {
	path := sitePath(url, basePath)
	for _, re := range siteMapPaths {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// RomanToInt converts a roman numeral, case-insensitively. Unknown letters
// count as zero, so a non-numeral folder name yields 0.
func RomanToInt(s string) int {
	total, prev := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		v := romanValue(s[i])
		if v < prev {
			total -= v
			continue
		}
		total += v
		prev = v
	}
	return total
}

func romanValue(c byte) int {
	switch c {
	case 'I', 'i':
		return 1
	case 'V', 'v':
		return 5
	case 'X', 'x':
		return 10
	case 'L', 'l':
		return 50
	case 'C', 'c':
		return 100
	case 'D', 'd':
		return 500
	case 'M', 'm':
		return 1000
	}
	return 0
}

// Candidate is a document that passed the scorer.
type Candidate struct {
	Document index.Document
	Score    int
}

type Options struct {
	MaxTotal      int
	MaxPerChapter int
	BasePath      string
}

func DefaultOptions() Options {
	return Options{
		MaxTotal:      DefaultMaxTotal,
		MaxPerChapter: DefaultMaxPerChapter,
	}
}

// Rank drops site-map pages, sorts the rest by book position then score
// (stable on input order), and walks the sorted list once, skipping entries
// whose chapter is already full and stopping at the global cap. The input
// slice is not modified.
func Rank(candidates []Candidate, opts Options) []Candidate {
	if opts.MaxTotal <= 0 {
		opts.MaxTotal = DefaultMaxTotal
	}
	if opts.MaxPerChapter <= 0 {
		opts.MaxPerChapter = DefaultMaxPerChapter
	}

	type keyed struct {
		Candidate
		key Key
	}
	sorted := make([]keyed, 0, len(candidates))
	for _, c := range candidates {
		if IsSiteMap(c.Document.URL, opts.BasePath) {
			continue
		}
		sorted = append(sorted, keyed{c, ParseBookOrderKey(c.Document.URL, opts.BasePath)})
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if cmp := sorted[i].key.Compare(sorted[j].key); cmp != 0 {
			return cmp < 0
		}
		return sorted[i].Score > sorted[j].Score
	})

	picked := make([]Candidate, 0, min(len(sorted), opts.MaxTotal))
	perChapter := make(map[chapter]int)
	for _, c := range sorted {
		b := c.key.bucket()
		if perChapter[b] >= opts.MaxPerChapter {
			continue
		}
		perChapter[b]++
		picked = append(picked, c.Candidate)
		if len(picked) >= opts.MaxTotal {
			break
		}
	}
	return picked
}
