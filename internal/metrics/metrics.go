// Package metrics registers the Prometheus metrics used by the gateway.
// Import this package (via blank import if nothing else) from the server
// entry point so all metrics exist before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts inbound gateway requests labelled by service,
	// method, and outcome ("success", "not_found", "error").
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshgw_requests_total",
			Help: "Total number of inbound requests processed by the gateway.",
		},
		[]string{"service", "method", "outcome"},
	)

	// RequestDuration observes end-to-end inbound request latency in seconds,
	// including any join fan-out.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meshgw_request_duration_seconds",
			Help:    "End-to-end inbound request duration in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service", "method"},
	)

	// UpstreamRequests counts HTTP calls issued to upstream services,
	// labelled by method and status class ("2xx", "4xx", "5xx", "error").
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshgw_upstream_requests_total",
			Help: "Total HTTP requests issued to upstream services.",
		},
		[]string{"method", "status"},
	)

	// SpecFetches counts OpenAPI document fetches. Single-flight coalescing
	// means this tracks actual upstream contacts, not cache lookups.
	SpecFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshgw_spec_fetches_total",
			Help: "Total OpenAPI document fetches from upstream services.",
		},
		[]string{"outcome"},
	)

	// JoinSubrequests counts join sub-requests by outcome
	// ("ok", "dropped", "error").
	JoinSubrequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshgw_join_subrequests_total",
			Help: "Total join sub-requests executed by the join engine.",
		},
		[]string{"outcome"},
	)

	// CacheHits counts per-request cache hits, labelled by cache
	// ("response", "spec").
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshgw_cache_hits_total",
			Help: "Total hits on the per-request response and spec caches.",
		},
		[]string{"cache"},
	)
)
