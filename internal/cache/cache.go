// Package cache implements the Content-Hash Cache (spec.md §4.B): a
// bounded, TTL-evicted map keyed by a content hash, letting two submissions
// of the same normalized text skip re-running the model pipeline.
//
// Modeled on the teacher's WorkflowStore memory cache (map + mutex + simple
// eviction, instrumented with OTel counters) rather than pulling in a
// general-purpose LRU library, since the teacher's own hot-path cache is
// hand-rolled the same way.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/text/unicode/norm"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
)

type entry struct {
	result   domain.SmartNoteResult
	cachedAt time.Time
}

// Cache is a bounded, TTL-evicted content-hash cache. Safe for concurrent
// use. Image inputs are never cached (spec.md §9's Open Question resolution
// — OCR output varies with input bytes in ways a text hash can't capture).
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	order      []string // insertion order, oldest first, for eviction
	maxEntries int
	ttl        time.Duration

	hits   metric.Int64Counter
	misses metric.Int64Counter
}

// New builds a Cache bounded by maxEntries and ttl (CACHE_MAX_ENTRIES /
// CACHE_TTL_S).
func New(maxEntries int, ttl time.Duration) *Cache {
	meter := otel.Meter("cogniblock-orchestrator")
	hits, _ := meter.Int64Counter("cogniblock_cache_hits_total")
	misses, _ := meter.Int64Counter("cogniblock_cache_misses_total")
	return &Cache{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		hits:       hits,
		misses:     misses,
	}
}

// Key computes the cache key for a text submission: SHA-256 over the
// NFC-normalized, trimmed content plus the lowercased, trimmed title.
func Key(title, content string) string {
	normTitle := strings.ToLower(strings.TrimSpace(norm.NFC.String(title)))
	normContent := strings.TrimSpace(norm.NFC.String(content))
	h := sha256.New()
	h.Write([]byte(normTitle))
	h.Write([]byte{0})
	h.Write([]byte(normContent))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key if present and not expired.
func (c *Cache) Get(ctx context.Context, key string) (domain.SmartNoteResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || time.Since(e.cachedAt) > c.ttl {
		if found {
			c.removeLocked(key)
		}
		c.misses.Add(ctx, 1, metric.WithAttributes(attribute.String("type", "smart_note")))
		return domain.SmartNoteResult{}, false
	}
	c.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("type", "smart_note")))
	return e.result, true
}

// Put stores result under key, evicting the oldest entry if the cache is at
// capacity.
func (c *Cache) Put(key string, result domain.SmartNoteResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		if len(c.entries) >= c.maxEntries {
			c.evictOldestLocked()
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = entry{result: result, cachedAt: time.Now()}
}

func (c *Cache) evictOldestLocked() {
	for len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, found := c.entries[oldest]; found {
			delete(c.entries, oldest)
			return
		}
	}
}

func (c *Cache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len reports the current entry count, mainly for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
