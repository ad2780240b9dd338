package resolve

import (
	"strings"
	"sync"

	"github.com/sells-group/startup-intake/internal/model"
)

// Cache is the injected domain→record cache the resolver consults before
// hitting the store. Lifetime and consistency are host-controlled; the
// resolver never owns hidden global state.
type Cache interface {
	Get(domain string) (*model.StartupRecord, bool)
	Set(domain string, rec *model.StartupRecord)
	Invalidate(domain string)
}

// MemoryCache is a process-local Cache suitable for single-writer batches.
type MemoryCache struct {
	mu      sync.RWMutex
	records map[string]*model.StartupRecord
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{records: make(map[string]*model.StartupRecord)}
}

func (c *MemoryCache) Get(domain string) (*model.StartupRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[strings.ToLower(domain)]
	return rec, ok
}

func (c *MemoryCache) Set(domain string, rec *model.StartupRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[strings.ToLower(domain)] = rec
}

func (c *MemoryCache) Invalidate(domain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, strings.ToLower(domain))
}
