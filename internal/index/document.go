// Package index owns the per-language document index: decoding the flat
// JSON array produced by the site build, fetching it from a Source, and
// caching it for the life of the process with explicit invalidation.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrMalformedIndex = errors.New("malformed index JSON")
	ErrNotArray       = errors.New("index is not a JSON array")
)

// Document is one searchable page. URL is its identity.
type Document struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Decode parses a search index. The payload must be a JSON array; elements
// that are not objects are skipped, and missing or non-string fields become
// empty strings so one bad record never fails the whole load.
func Decode(data []byte) ([]Document, error) {
	if !json.Valid(data) {
		return nil, ErrMalformedIndex
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotArray, err)
	}
	if items == nil {
		// a literal null is valid JSON but not an index
		return nil, ErrNotArray
	}
	docs := make([]Document, 0, len(items))
	skipped := 0
	for _, raw := range items {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			skipped++
			continue
		}
		docs = append(docs, Document{
			URL:     stringField(fields, "url"),
			Title:   stringField(fields, "title"),
			Content: stringField(fields, "content"),
		})
	}
	if skipped > 0 {
		slog.Default().With("component", "index-decoder").Warn("skipped non-object index entries",
			"skipped", skipped,
			"kept", len(docs),
		)
	}
	return docs, nil
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
