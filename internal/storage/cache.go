package storage

import (
	"sync"

	"go.uber.org/zap"

	"github.com/printquota/server/internal/shared/metrics"
)

// Cache kinds, one keyed map per entity type. Quota pairs are keyed as
// "subject@printer", last jobs by printer name, everything else by entity
// name.
const (
	kindUsers        = "users"
	kindGroups       = "groups"
	kindPrinters     = "printers"
	kindUserQuotas   = "userquotas"
	kindGroupQuotas  = "groupquotas"
	kindLastJobs     = "lastjobs"
	kindBillingCodes = "billingcodes"
)

func quotaKey(subject, printer string) string {
	return subject + "@" + printer
}

// cache memoizes entity lookups. It is guarded for concurrent reads with
// exclusive invalidation so the storage layer can be shared by a concurrent
// host process; the engine itself is single-threaded per job.
type cache struct {
	mu      sync.RWMutex
	entries map[string]map[string]any

	enabled bool
	log     *zap.Logger
	metrics *metrics.Metrics
}

func newCache(enabled bool, log *zap.Logger, m *metrics.Metrics) *cache {
	return &cache{
		entries: map[string]map[string]any{
			kindUsers:        {},
			kindGroups:       {},
			kindPrinters:     {},
			kindUserQuotas:   {},
			kindGroupQuotas:  {},
			kindLastJobs:     {},
			kindBillingCodes: {},
		},
		enabled: enabled,
		log:     log,
		metrics: m,
	}
}

// get returns a cached entry, or nil on a miss. Absence is never cached:
// a miss always goes back to the backend.
func (c *cache) get(kind, key string) any {
	if !c.enabled {
		return nil
	}
	c.mu.RLock()
	entry := c.entries[kind][key]
	c.mu.RUnlock()
	if entry != nil {
		c.metrics.RecordCacheHit(kind)
		c.log.Debug("cache hit", zap.String("kind", kind), zap.String("key", key))
	} else {
		c.metrics.RecordCacheMiss(kind)
		c.log.Debug("cache miss", zap.String("kind", kind), zap.String("key", key))
	}
	return entry
}

// put stores an entry. Entities that do not exist are never stored.
func (c *cache) put(kind, key string, value any, exists bool) {
	if !c.enabled || !exists {
		return
	}
	c.mu.Lock()
	c.entries[kind][key] = value
	c.mu.Unlock()
	c.log.Debug("cache store", zap.String("kind", kind), zap.String("key", key))
}

// flush removes a single entry.
func (c *cache) flush(kind, key string) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	_, present := c.entries[kind][key]
	delete(c.entries[kind], key)
	c.mu.Unlock()
	if present {
		c.metrics.RecordCacheFlush(kind)
		c.log.Debug("cache flush", zap.String("kind", kind), zap.String("key", key))
	}
}

// flushMatching removes every entry of a kind for which match returns true.
// Used to drop quota-pair entries referencing a deleted user, group or
// printer.
func (c *cache) flushMatching(kind string, match func(key string, value any) bool) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	for key, value := range c.entries[kind] {
		if match(key, value) {
			delete(c.entries[kind], key)
			c.metrics.RecordCacheFlush(kind)
		}
	}
	c.mu.Unlock()
}
