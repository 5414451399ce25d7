// Package runbook fetches and caches the investigation runbooks referenced by
// alerts, converting GitHub page URLs to raw content URLs and enforcing a
// domain allow-list.
package runbook

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// cacheSize bounds the number of cached runbooks. LRU eviction covers the
// pathological case of many distinct URLs arriving within one TTL window.
const cacheSize = 256

// Cache is a TTL-expiring LRU of fetched runbook content keyed by normalized
// URL. Safe for concurrent use.
type Cache struct {
	lru *expirable.LRU[string, string]
}

// NewCache creates a cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[string, string](cacheSize, nil, ttl)}
}

// Get returns cached content if present and not expired.
func (c *Cache) Get(url string) (string, bool) {
	return c.lru.Get(url)
}

// Set stores content under the given URL, resetting its TTL.
func (c *Cache) Set(url string, content string) {
	c.lru.Add(url, content)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}
