package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/audeo-edu/intelligrade-api/internal/grading"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intelligrade",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by tier and outcome",
	}, []string{"tier", "outcome"})

	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "intelligrade",
		Subsystem: "cache",
		Name:      "l1_evictions_total",
		Help:      "Entries evicted from the in-process tier",
	})
)

// Entry is one cached grading verdict.
type Entry struct {
	Key        string
	QuestionID string
	Result     grading.Result
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Store is the durable shared tier behind the in-process map.
type Store interface {
	Fetch(ctx context.Context, keys []string) ([]Entry, error)
	Upsert(ctx context.Context, entries []Entry) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Tiered is the two-tier grading cache: a bounded in-process map (L1) backed
// by a durable shared store (L2). Reads fall through L1 to L2 in one round
// trip; writes go through both tiers. Store failures degrade to L1-only
// behavior and never surface to callers.
type Tiered struct {
	store    Store
	capacity int
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // insertion order, oldest at the front

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// NewTiered constructs the cache with the given L1 capacity.
func NewTiered(store Store, capacity int, logger zerolog.Logger) *Tiered {
	if capacity <= 0 {
		capacity = 1000
	}

	return &Tiered{
		store:    store,
		capacity: capacity,
		logger:   logger.With().Str("component", "grading_cache").Logger(),
		now:      time.Now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached results for the given keys. Missing keys are simply
// absent from the returned map, never errors. L2 hits backfill L1.
func (c *Tiered) Get(ctx context.Context, keys []string) map[string]grading.Result {
	found := make(map[string]grading.Result, len(keys))
	misses := make([]string, 0, len(keys))

	now := c.now()

	c.mu.Lock()
	for _, key := range keys {
		element, ok := c.entries[key]
		if !ok {
			misses = append(misses, key)
			cacheLookups.WithLabelValues("l1", "miss").Inc()
			continue
		}

		entry := element.Value.(Entry)
		if !now.Before(entry.ExpiresAt) {
			c.removeLocked(key, element)
			misses = append(misses, key)
			cacheLookups.WithLabelValues("l1", "expired").Inc()
			continue
		}

		found[key] = entry.Result
		cacheLookups.WithLabelValues("l1", "hit").Inc()
	}
	c.mu.Unlock()

	if len(misses) == 0 || c.store == nil {
		return found
	}

	stored, err := c.store.Fetch(ctx, misses)
	if err != nil {
		c.logger.Warn().Err(err).Int("keys", len(misses)).Msg("durable cache fetch failed")
		return found
	}

	for _, entry := range stored {
		if !now.Before(entry.ExpiresAt) {
			continue
		}
		found[entry.Key] = entry.Result
		cacheLookups.WithLabelValues("l2", "hit").Inc()
		c.insert(entry)
	}

	return found
}

// Put writes the entries through L1 immediately and batch-upserts them to the
// durable tier. Upserts are idempotent on the key; failures are logged and
// swallowed because a delivered-but-uncached result beats a dropped one.
func (c *Tiered) Put(ctx context.Context, entries []Entry) {
	if len(entries) == 0 {
		return
	}

	for _, entry := range entries {
		c.insert(entry)
	}

	if c.store == nil {
		return
	}

	if err := c.store.Upsert(ctx, entries); err != nil {
		c.logger.Warn().Err(err).Int("entries", len(entries)).Msg("durable cache upsert failed")
	}
}

// Cleanup removes expired entries from both tiers.
func (c *Tiered) Cleanup(ctx context.Context) {
	now := c.now()

	c.mu.Lock()
	for key, element := range c.entries {
		entry := element.Value.(Entry)
		if !now.Before(entry.ExpiresAt) {
			c.removeLocked(key, element)
		}
	}
	c.mu.Unlock()

	if c.store == nil {
		return
	}

	removed, err := c.store.DeleteExpired(ctx, now)
	if err != nil {
		c.logger.Warn().Err(err).Msg("durable cache sweep failed")
		return
	}

	if removed > 0 {
		c.logger.Debug().Int64("removed", removed).Msg("swept expired cache entries")
	}
}

// StartSweeper launches a background loop that runs Cleanup on the given
// interval until Close is called.
func (c *Tiered) StartSweeper(interval time.Duration) {
	if interval <= 0 || c.sweepCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.sweepCancel = cancel
	c.sweepDone = make(chan struct{})

	go func() {
		defer close(c.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup(ctx)
			}
		}
	}()
}

// Close stops the background sweeper, if one is running.
func (c *Tiered) Close() {
	if c.sweepCancel != nil {
		c.sweepCancel()
		<-c.sweepDone
		c.sweepCancel = nil
	}
}

// Len reports the current number of L1 entries.
func (c *Tiered) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Tiered) insert(entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.entries[entry.Key]; ok {
		element.Value = entry
		return
	}

	c.entries[entry.Key] = c.order.PushBack(entry)

	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(Entry).Key, oldest)
		cacheEvictions.Inc()
	}
}

func (c *Tiered) removeLocked(key string, element *list.Element) {
	c.order.Remove(element)
	delete(c.entries, key)
}
