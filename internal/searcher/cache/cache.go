// Package cache keeps rendered search results in Redis. Keys are derived
// from the parsed query and the fingerprint of the index it ran against, so
// a reloaded index with new content never serves old results.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/executor"
	pkgredis "github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/redis"
)

const keyPrefix = "search:"

// Backend is the subset of *pkgredis.Client the cache needs. Get must return
// an error matching pkgredis.IsNilError for a missing key.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies a cacheable search. Token and phrase order is kept since
// the first one picks the snippet needle.
type Key struct {
	Lang        string
	Fingerprint string
	Format      executor.Format
	Tokens      []string
	Phrases     []string
}

func (k Key) String() string {
	h := blake3.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00", k.Lang, k.Fingerprint, k.Format)
	h.Write([]byte(strings.Join(k.Tokens, "\x1f")))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(k.Phrases, "\x1f")))
	sum := h.Sum(nil)
	return keyPrefix + k.Lang + ":" + hex.EncodeToString(sum[:16])
}

type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend, ttl time.Duration) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, key Key) (*executor.SearchResult, bool) {
	k := key.String()
	data, err := c.backend.Get(ctx, k)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", k, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "key", k)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key Key, result *executor.SearchResult) {
	k := key.String()
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.backend.Set(ctx, k, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached result for key or runs compute once for
// all concurrent callers with the same key. Errors are not cached. The bool
// reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key Key,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops cached results for lang, or for every language when lang
// is empty.
func (c *QueryCache) Invalidate(ctx context.Context, lang string) (int64, error) {
	pattern := keyPrefix + "*"
	if lang != "" {
		pattern = keyPrefix + lang + ":*"
	}
	deleted, err := c.backend.FlushByPattern(ctx, pattern)
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "pattern", pattern, "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
