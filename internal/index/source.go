package index

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/resilience"
)

// Source fetches the raw bytes of the index for one language.
type Source interface {
	Fetch(ctx context.Context, lang string) ([]byte, error)
	Location(lang string) string
}

// HTTPSource fetches <BaseURL>/<lang>/search.json.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	breaker *resilience.CircuitBreaker
}

// NewHTTPSource creates an HTTPSource. A nil client uses http.DefaultClient;
// a nil breaker disables fail-fast.
func NewHTTPSource(baseURL string, client *http.Client, timeout time.Duration, breaker *resilience.CircuitBreaker) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		timeout: timeout,
		breaker: breaker,
	}
}

func (s *HTTPSource) Location(lang string) string {
	return s.baseURL + "/" + lang + "/search.json"
}

func (s *HTTPSource) Fetch(ctx context.Context, lang string) ([]byte, error) {
	url := s.Location(lang)
	var body []byte
	fetch := func() error {
		return resilience.WithTimeout(ctx, s.timeout, "fetch index", func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return fmt.Errorf("building request: %w", err)
			}
			req.Header.Set("Cache-Control", "no-store")
			req.Header.Set("Accept", "application/json")
			resp, err := s.client.Do(req)
			if err != nil {
				return fmt.Errorf("requesting %s: %w", url, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return &StatusError{URL: url, StatusCode: resp.StatusCode}
			}
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading %s: %w", url, err)
			}
			body = data
			return nil
		})
	}
	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(fetch)
	} else {
		err = fetch()
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

// StatusError is returned for a non-2xx index response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// FileSource reads <Root>/<lang>/search.json, or Path for every language
// when Path is set.
type FileSource struct {
	Root string
	Path string
}

func (s FileSource) Location(lang string) string {
	if s.Path != "" {
		return s.Path
	}
	return filepath.Join(s.Root, lang, "search.json")
}

func (s FileSource) Fetch(ctx context.Context, lang string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Location(lang))
	if err != nil {
		return nil, fmt.Errorf("reading index file: %w", err)
	}
	return data, nil
}

// StaticSource serves a fixed in-memory corpus.
type StaticSource map[string][]Document

func (s StaticSource) Location(lang string) string {
	return "memory://" + lang
}

func (s StaticSource) Fetch(ctx context.Context, lang string) ([]byte, error) {
	docs, ok := s[lang]
	if !ok {
		return nil, fmt.Errorf("no documents for language %q", lang)
	}
	return json.Marshal(docs)
}
