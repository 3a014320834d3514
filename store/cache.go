package store

import (
	"sync"

	"github.com/windvane/booksource/source"
)

// CompiledCache holds one compiled source per record id, keyed by the raw
// document's fingerprint, so an edited document recompiles and a stale plan
// is never served. Safe for concurrent use.
type CompiledCache struct {
	mu      sync.RWMutex
	entries map[int64]*source.Source
}

func NewCompiledCache() *CompiledCache {
	return &CompiledCache{entries: map[int64]*source.Source{}}
}

// Get returns the compiled form of rec, reusing the cached plan while the
// raw document is unchanged.
func (c *CompiledCache) Get(rec *SourceRecord) (*source.Source, error) {
	fp := source.Fingerprint([]byte(rec.Raw))

	c.mu.RLock()
	cached := c.entries[rec.ID]
	c.mu.RUnlock()
	if cached != nil && cached.Fingerprint == fp {
		return cached, nil
	}

	compiled, err := source.Compile([]byte(rec.Raw))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[rec.ID] = compiled
	c.mu.Unlock()
	return compiled, nil
}

// Invalidate drops the cached plan for one record.
func (c *CompiledCache) Invalidate(id int64) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}
