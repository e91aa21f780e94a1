package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Cache is an optional response cache checked before invocation. A hit skips
// the provider call entirely. Absence of a cache never changes correctness,
// only cost, so the zero-value choice is [NopCache].
//
// Implementations must be safe for concurrent use: many threads share one
// cache even though each thread's state is isolated.
type Cache interface {
	Get(key string) (Response, bool)
	Put(key string, resp Response)
}

// CacheKey derives the cache key from the request fields that determine the
// response: system prompt, the latest user-visible message, and the model.
func CacheKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.SystemPrompt))
	h.Write([]byte{0})
	if len(req.Messages) > 0 {
		last := req.Messages[len(req.Messages)-1]
		h.Write([]byte(last.From))
		h.Write([]byte{0})
		h.Write([]byte(last.Content))
	}
	h.Write([]byte{0})
	h.Write([]byte(req.Model))
	return hex.EncodeToString(h.Sum(nil))
}

// NopCache never hits and never stores.
type NopCache struct{}

// Get always misses.
func (NopCache) Get(string) (Response, bool) { return Response{}, false }

// Put discards the response.
func (NopCache) Put(string, Response) {}

// MemoryCache is a process-local cache backed by a mutex-guarded map.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Response
}

// NewMemoryCache creates an empty [MemoryCache].
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Response)}
}

// Get returns the cached response for key, if present.
func (c *MemoryCache) Get(key string) (Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resp, ok := c.entries[key]
	return resp, ok
}

// Put stores resp under key, overwriting any previous entry.
func (c *MemoryCache) Put(key string, resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = resp
}
