// Package statuscache caches computed application statuses per
// (hub, namespace, application, topology fingerprint).
package statuscache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
	"github.com/kubilitics/kubilitics-appstatus/internal/pkg/metrics"
)

// Cache holds statuses with a TTL and a size bound. Thread-safe.
type Cache struct {
	lru *expirable.LRU[string, *models.TopologyStatus]
}

// New returns a cache. If ttl <= 0 or size <= 0, Get always misses (cache disabled).
func New(size int, ttl time.Duration) *Cache {
	if ttl <= 0 || size <= 0 {
		return &Cache{}
	}
	return &Cache{lru: expirable.NewLRU[string, *models.TopologyStatus](size, nil, ttl)}
}

// Key builds the cache key for an application topology.
func Key(hub, namespace, name, fingerprint string) string {
	return strings.Join([]string{hub, namespace, name, fingerprint}, "|")
}

// Get returns a cached status. Records hit/miss.
func (c *Cache) Get(key string) (*models.TopologyStatus, bool) {
	if c.lru == nil {
		metrics.StatusCacheMissesTotal.Inc()
		return nil, false
	}
	st, ok := c.lru.Get(key)
	if !ok {
		metrics.StatusCacheMissesTotal.Inc()
		return nil, false
	}
	metrics.StatusCacheHitsTotal.Inc()
	return st, true
}

// Set stores a computed status. Pending snapshots are never cached.
func (c *Cache) Set(key string, st *models.TopologyStatus) {
	if c.lru == nil || st == nil || st.Pending {
		return
	}
	c.lru.Add(key, st)
}

// InvalidateApp removes every entry of one application.
func (c *Cache) InvalidateApp(hub, namespace, name string) {
	if c.lru == nil {
		return
	}
	prefix := strings.Join([]string{hub, namespace, name}, "|") + "|"
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
