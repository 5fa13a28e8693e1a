// Package speccache memoizes upstream OpenAPI documents for the lifetime of
// one inbound request. Concurrent misses for the same schema URL coalesce
// into a single fetch, so each distinct URL is contacted at most once per
// request even under join fan-out.
package speccache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ferro-labs/mesh-gateway/internal/metrics"
	"github.com/ferro-labs/mesh-gateway/internal/openapi"
)

// Cache is a per-request OpenAPI document cache. The zero value is not
// usable; create instances with New.
type Cache struct {
	client *http.Client

	mu    sync.RWMutex
	docs  map[string]*openapi.Document
	group singleflight.Group
}

// New creates a cache issuing fetches through client.
func New(client *http.Client) *Cache {
	if client == nil {
		client = http.DefaultClient
	}
	return &Cache{
		client: client,
		docs:   make(map[string]*openapi.Document),
	}
}

// Get returns the document for schemaURL, fetching and parsing it on the
// first call. The inbound request deadline (via ctx) bounds the fetch.
func (c *Cache) Get(ctx context.Context, schemaURL string) (*openapi.Document, error) {
	c.mu.RLock()
	doc, ok := c.docs[schemaURL]
	c.mu.RUnlock()
	if ok {
		metrics.CacheHits.WithLabelValues("spec").Inc()
		return doc, nil
	}

	v, err, _ := c.group.Do(schemaURL, func() (any, error) {
		// A peer may have completed the fetch between the fast-path check
		// and acquiring the flight.
		c.mu.RLock()
		doc, ok := c.docs[schemaURL]
		c.mu.RUnlock()
		if ok {
			return doc, nil
		}

		doc, err := c.fetch(ctx, schemaURL)
		if err != nil {
			metrics.SpecFetches.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.SpecFetches.WithLabelValues("ok").Inc()

		c.mu.Lock()
		c.docs[schemaURL] = doc
		c.mu.Unlock()
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*openapi.Document), nil
}

func (c *Cache) fetch(ctx context.Context, schemaURL string) (*openapi.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, schemaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build spec request: make sure %s is accessible: %w", schemaURL, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch OpenAPI spec: make sure %s is accessible: %w", schemaURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch OpenAPI spec: %s returned status %d", schemaURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read OpenAPI spec from %s: %w", schemaURL, err)
	}

	doc, err := openapi.Parse(body, schemaURL)
	if err != nil {
		return nil, fmt.Errorf("spec from %s should be a JSON OpenAPI document: %w", schemaURL, err)
	}
	return doc, nil
}
