package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/kafka"
)

// Publisher is the part of kafka.Producer the Collector needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func defaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		BufferSize:    10000,
		BatchSize:     100,
		FlushInterval: 2 * time.Second,
	}
}

// Collector buffers events in a channel and publishes them in batches,
// either when BatchSize events are waiting or every FlushInterval. Track
// never blocks: events are dropped when the buffer is full.
type Collector struct {
	publisher Publisher
	cfg       CollectorConfig
	eventCh   chan kafka.Event
	logger    *slog.Logger
	done      chan struct{}

	closeMu sync.RWMutex
	closed  bool

	mu      sync.Mutex
	dropped int64
	failed  int64
}

func NewCollector(publisher Publisher, cfg CollectorConfig) *Collector {
	defaults := defaultCollectorConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	return &Collector{
		publisher: publisher,
		cfg:       cfg,
		eventCh:   make(chan kafka.Event, cfg.BufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

// Start runs the publish loop until Close. ctx bounds each publish call.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", c.cfg.BufferSize,
		"batch_size", c.cfg.BatchSize,
		"flush_interval", c.cfg.FlushInterval,
	)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.cfg.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := c.publisher.PublishBatch(ctx, batch); err != nil {
			c.mu.Lock()
			c.failed += int64(len(batch))
			c.mu.Unlock()
			c.logger.Error("analytics batch publish failed", "events", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				// Close: the channel is drained, publish what is left with
				// a fresh deadline since ctx may already be done.
				finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				flush(finalCtx)
				cancel()
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.cfg.BatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

// Track queues a SearchEvent or IndexEvent for publishing.
func (c *Collector) Track(key string, event any) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- kafka.Event{Key: key, Value: event}:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		c.logger.Warn("analytics event dropped (buffer full)", "key", key)
	}
}

func (c *Collector) TrackSearch(e SearchEvent) {
	e.Type = EventSearch
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	c.Track(e.Lang, e)
}

// IndexLoaded makes the Collector an index.Observer.
func (c *Collector) IndexLoaded(lang string, snap *index.Snapshot, err error, elapsed time.Duration) {
	e := IndexEvent{
		Type:      EventIndexLoad,
		Lang:      lang,
		LatencyMs: elapsed.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	if snap != nil {
		e.Location = snap.Location
		e.Documents = len(snap.Documents)
		e.Fingerprint = snap.Fingerprint
	}
	c.Track(lang, e)
}

// Dropped and Failed count events lost to a full buffer and to publish
// errors respectively.
func (c *Collector) Dropped() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Collector) Failed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

// Close stops accepting events, publishes the remainder and waits for the
// loop to exit. Start must have been called. Track after Close is a no-op.
func (c *Collector) Close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.closeMu.Unlock()
	<-c.done
}
