package index

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/errors"
)

// Snapshot is an immutable loaded index.
type Snapshot struct {
	Lang        string
	Location    string
	Documents   []Document
	Fingerprint string
	LoadedAt    time.Time
}

// Observer is told about every load attempt. snap is nil when err is set.
type Observer interface {
	IndexLoaded(lang string, snap *Snapshot, err error, elapsed time.Duration)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(lang string, snap *Snapshot, err error, elapsed time.Duration)

func (f ObserverFunc) IndexLoaded(lang string, snap *Snapshot, err error, elapsed time.Duration) {
	f(lang, snap, err, elapsed)
}

// Observers fans one load report out to several observers in order.
type Observers []Observer

func (os Observers) IndexLoaded(lang string, snap *Snapshot, err error, elapsed time.Duration) {
	for _, o := range os {
		if o != nil {
			o.IndexLoaded(lang, snap, err, elapsed)
		}
	}
}

// Store loads each language's index on first use and keeps it until
// Invalidate. Concurrent first calls share a single fetch; a failed fetch is
// not cached, so the next Get tries again.
type Store struct {
	source      Source
	group       singleflight.Group
	mu          sync.RWMutex
	snapshots   map[string]*Snapshot
	generations map[string]uint64 // bumped by Invalidate; older loads are not stored
	observer    Observer
	logger      *slog.Logger
}

type Option func(*Store)

func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

func NewStore(source Source, opts ...Option) *Store {
	s := &Store{
		source:      source,
		snapshots:   make(map[string]*Snapshot),
		generations: make(map[string]uint64),
		logger:      slog.Default().With("component", "index-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the snapshot for lang, loading it if needed.
func (s *Store) Get(ctx context.Context, lang string) (*Snapshot, error) {
	if snap := s.cached(lang); snap != nil {
		return snap, nil
	}
	// One caller giving up must not fail the others waiting on the same load.
	loadCtx := context.WithoutCancel(ctx)
	val, err, shared := s.group.Do(lang, func() (interface{}, error) {
		if snap := s.cached(lang); snap != nil {
			return snap, nil
		}
		return s.load(loadCtx, lang)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("index load shared", "lang", lang)
	}
	return val.(*Snapshot), nil
}

// Invalidate drops the cached snapshot for lang so the next Get fetches again.
func (s *Store) Invalidate(lang string) {
	s.mu.Lock()
	delete(s.snapshots, lang)
	s.generations[lang]++
	s.mu.Unlock()
	s.group.Forget(lang)
	s.logger.Info("index invalidated", "lang", lang)
}

// Reload invalidates lang and loads it again.
func (s *Store) Reload(ctx context.Context, lang string) (*Snapshot, error) {
	s.Invalidate(lang)
	return s.Get(ctx, lang)
}

// Loaded lists the languages currently cached, sorted.
func (s *Store) Loaded() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	langs := make([]string, 0, len(s.snapshots))
	for lang := range s.snapshots {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

func (s *Store) cached(lang string) *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshots[lang]
}

func (s *Store) load(ctx context.Context, lang string) (*Snapshot, error) {
	s.mu.RLock()
	gen := s.generations[lang]
	s.mu.RUnlock()
	start := time.Now()
	location := s.source.Location(lang)
	snap, err := s.fetchAndDecode(ctx, lang, location)
	elapsed := time.Since(start)
	if s.observer != nil {
		s.observer.IndexLoaded(lang, snap, err, elapsed)
	}
	if err != nil {
		s.logger.Error("index load failed", "lang", lang, "location", location, "error", err)
		return nil, err
	}
	s.mu.Lock()
	current := s.generations[lang] == gen
	if current {
		s.snapshots[lang] = snap
	}
	s.mu.Unlock()
	if !current {
		s.logger.Info("superseded index load dropped", "lang", lang, "fingerprint", snap.Fingerprint)
		return snap, nil
	}
	s.logger.Info("index loaded",
		"lang", lang,
		"location", location,
		"documents", len(snap.Documents),
		"fingerprint", snap.Fingerprint,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return snap, nil
}

func (s *Store) fetchAndDecode(ctx context.Context, lang, location string) (*Snapshot, error) {
	data, err := s.source.Fetch(ctx, lang)
	if err != nil {
		reason := "fetch failed"
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			reason = "non-success status"
		}
		return nil, apperrors.NewIndexLoadError(lang, location, reason, err)
	}
	docs, err := Decode(data)
	if err != nil {
		reason := "malformed JSON"
		if errors.Is(err, ErrNotArray) {
			reason = "expected a JSON array"
		}
		return nil, apperrors.NewIndexLoadError(lang, location, reason, err)
	}
	return &Snapshot{
		Lang:        lang,
		Location:    location,
		Documents:   docs,
		Fingerprint: Fingerprint(data),
		LoadedAt:    time.Now().UTC(),
	}, nil
}

// Fingerprint identifies index content; two loads of identical bytes share it.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
