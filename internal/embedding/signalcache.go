package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

const (
	signalCacheTTL      = 30 * time.Second
	signalCacheCapacity = 100
)

// signalCache is a process-wide lookaside cache of recently computed
// embeddings, keyed by content hash. It exists to absorb the common case
// of the same tool output being embedded twice in quick succession (a
// PostToolUse observation and its immediate topic-detector comparison).
//
// This is the one package-level singleton in the module: every other
// piece of shared state is threaded explicitly through an Orchestrator or
// Store. The cache is small, time-bounded, and purely an optimization —
// losing it changes latency, not correctness — which is the bar for this
// exception.
var globalSignalCache = newSignalCache()

type cacheEntry struct {
	vec       []float32
	expiresAt time.Time
}

type signalCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	order   []string
}

func newSignalCache() *signalCache {
	return &signalCache{entries: make(map[string]cacheEntry)}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *signalCache) get(text string) ([]float32, bool) {
	key := cacheKey(text)
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.vec, true
}

func (c *signalCache) put(text string, vec []float32) {
	key := cacheKey(text)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
		if len(c.order) > signalCacheCapacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
	}
	c.entries[key] = cacheEntry{vec: vec, expiresAt: time.Now().Add(signalCacheTTL)}
}
