// Package respcache memoizes upstream responses within one inbound request.
// Only parameter-free GETs participate; the join fan-out commonly re-fetches
// the same related record many times, and caching those lookups avoids
// quadratic amplification without any cross-request staleness.
package respcache

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ferro-labs/mesh-gateway/internal/metrics"
	"github.com/ferro-labs/mesh-gateway/internal/upstream"
)

// Eligible reports whether a call may be served from / written to the cache:
// a GET carrying no query parameters.
func Eligible(method string, query url.Values) bool {
	return strings.EqualFold(method, http.MethodGet) && len(query) == 0
}

// Cache maps resolved upstream URLs to results for one inbound request.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*upstream.Result
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*upstream.Result)}
}

// Get returns the cached result for url, if any.
func (c *Cache) Get(url string) (*upstream.Result, bool) {
	c.mu.RLock()
	r, ok := c.entries[url]
	c.mu.RUnlock()
	if ok {
		metrics.CacheHits.WithLabelValues("response").Inc()
	}
	return r, ok
}

// Put stores a result under url.
func (c *Cache) Put(url string, r *upstream.Result) {
	c.mu.Lock()
	c.entries[url] = r
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
