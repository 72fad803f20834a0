// Package cache provides an in-memory retrieval result cache.
package cache

import (
	"strings"
	"sync"

	"github.com/revisely/corpus/internal/core/domain"
	"github.com/revisely/corpus/internal/core/ports/driven"
)

// Ensure Memory implements the interface.
var _ driven.ContextCache = (*Memory)(nil)

// Memory is a map-backed context cache. Entries live until explicitly
// invalidated. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]domain.RetrievedChunk
}

// NewMemory creates an empty cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string][]domain.RetrievedChunk),
	}
}

// Get returns the cached result for key, if present. The returned slice
// is a copy so callers cannot mutate cached entries.
func (c *Memory) Get(key string) ([]domain.RetrievedChunk, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chunks, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	out := make([]domain.RetrievedChunk, len(chunks))
	copy(out, chunks)
	return out, true
}

// Put stores a result under key.
func (c *Memory) Put(key string, chunks []domain.RetrievedChunk) {
	stored := make([]domain.RetrievedChunk, len(chunks))
	copy(stored, chunks)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = stored
}

// InvalidatePrefix evicts every entry whose key starts with prefix.
func (c *Memory) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Clear evicts everything.
func (c *Memory) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]domain.RetrievedChunk)
}

// Len returns the number of cached entries.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
