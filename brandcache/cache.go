// Package brandcache memoizes brand search results for a fixed time window.
package brandcache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mealagent"
)

// DefaultTTL is how long a brand search result stays reusable.
const DefaultTTL = 7 * 24 * time.Hour

// Entry is one cached brand search result together with the tools that produced it.
type Entry struct {
	Key        string                      `json:"key"`
	Estimate   mealagent.NutritionEstimate `json:"estimate"`
	ToolsUsed  []mealagent.Tool            `json:"tools_used"`
	InsertedAt time.Time                   `json:"inserted_at"`
}

// Store persists entries beyond the life of the process.
type Store interface {
	LoadAll(ctx context.Context) ([]Entry, error)
	Put(ctx context.Context, e Entry) error
	Delete(ctx context.Context, key string) error
}

// Key builds a cache key from the raw brand and meal name. No normalization is applied,
// so "Big Mac" and "big mac" are different keys.
func Key(brand, mealName string) string {
	return brand + "|" + mealName
}

type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithStore makes the cache write through to s.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// Cache is safe for concurrent use. Expired entries are evicted when read; there is no sweeper.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
	store   Store
}

func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fills the cache from its store, skipping rows that already expired.
func (c *Cache) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	entries, err := c.store.LoadAll(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	loaded := 0
	for _, e := range entries {
		if c.expired(e, now) {
			continue
		}
		c.entries[e.Key] = e
		loaded++
	}
	slog.Info("BRAND_CACHE: Loaded entries from store", "loaded", loaded, "stored", len(entries))
	return nil
}

// Get returns a live entry for key. An expired entry is removed and reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.expired(e, c.now()) {
		delete(c.entries, key)
		c.mu.Unlock()

		slog.Info("BRAND_CACHE: Evicted expired entry", "key", key, "inserted_at", e.InsertedAt)
		if c.store != nil {
			if err := c.store.Delete(ctx, key); err != nil {
				slog.Warn("BRAND_CACHE: Failed to delete expired entry from store", "key", key, "error", err)
			}
		}
		return Entry{}, false
	}
	c.mu.Unlock()

	if !ok {
		return Entry{}, false
	}
	e.Estimate = e.Estimate.Clone()
	e.ToolsUsed = append([]mealagent.Tool(nil), e.ToolsUsed...)
	return e, true
}

// Put inserts or replaces the entry for key. Store failures are logged; the in-memory insert always succeeds.
func (c *Cache) Put(ctx context.Context, key string, est mealagent.NutritionEstimate, tools []mealagent.Tool) Entry {
	e := Entry{
		Key:        key,
		Estimate:   est.Clone(),
		ToolsUsed:  append([]mealagent.Tool(nil), tools...),
		InsertedAt: c.now(),
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Put(ctx, e); err != nil {
			slog.Warn("BRAND_CACHE: Failed to persist entry", "key", key, "error", err)
		}
	}
	return e
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) expired(e Entry, now time.Time) bool {
	return now.Sub(e.InsertedAt) >= c.ttl
}
