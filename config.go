package meshgateway

import (
	"time"

	"github.com/ferro-labs/mesh-gateway/registry"
)

// Config holds the configuration for the mesh gateway.
type Config struct {
	// Mode selects the join execution strategy (sequential or concurrent).
	Mode Mode `json:"mode" yaml:"mode"`
	// UpstreamTimeout bounds each upstream call, e.g. "30s". Zero means no
	// per-call timeout beyond the inbound request deadline.
	UpstreamTimeout string `json:"upstream_timeout,omitempty" yaml:"upstream_timeout,omitempty"`
	// MaxConcurrency caps simultaneous join sub-requests in concurrent mode.
	// Zero means unlimited.
	MaxConcurrency int `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty"`
	// Registry is the declarative data-mesh registry served by the in-memory
	// backend. Ignored when a database-backed registry is configured.
	Registry registry.Document `json:"registry" yaml:"registry"`
}

// Mode represents the join execution mode.
type Mode string

// Mode constants define the supported join execution strategies.
const (
	ModeSequential Mode = "sequential"
	ModeConcurrent Mode = "concurrent"
)

// Timeout parses UpstreamTimeout, returning zero for an empty value.
func (c Config) Timeout() (time.Duration, error) {
	if c.UpstreamTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.UpstreamTimeout)
}
