// Package meshgateway implements an OpenAPI-driven API gateway with data-mesh
// join capability. Inbound requests of the form /{service}/{model}[/{pk}]/ are
// resolved against the service's OpenAPI document and forwarded; when the
// caller passes the join query flag, related records declared in the registry
// are fetched and embedded into the response under their relationship keys.
//
// The Gateway type is the main entry point: create one with New (or
// NewFromConfig) and serve requests with Perform. Gateway is transport
// agnostic; cmd/meshgw wraps it in an HTTP server.
package meshgateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ferro-labs/mesh-gateway/datamesh"
	"github.com/ferro-labs/mesh-gateway/internal/logging"
	"github.com/ferro-labs/mesh-gateway/internal/metrics"
	"github.com/ferro-labs/mesh-gateway/internal/openapi"
	"github.com/ferro-labs/mesh-gateway/internal/respcache"
	"github.com/ferro-labs/mesh-gateway/internal/upstream"
	"github.com/ferro-labs/mesh-gateway/registry"
)

// Options configures a Gateway.
type Options struct {
	// Registry supplies services, models, relationships, and join records.
	Registry registry.Registry
	// Mode selects the join execution strategy; empty means sequential.
	Mode Mode
	// MaxConcurrency caps simultaneous join sub-requests in concurrent mode.
	MaxConcurrency int
	// UpstreamTimeout bounds each upstream call. Zero leaves only the
	// inbound request deadline.
	UpstreamTimeout time.Duration
	// HTTPClient overrides the client used for upstream calls and spec
	// fetches; mainly for tests.
	HTTPClient *http.Client
}

// Gateway forwards requests to registered services and performs data-mesh
// joins. It is safe for concurrent use.
type Gateway struct {
	registry       registry.Registry
	client         *upstream.Client
	specClient     *http.Client
	mode           Mode
	maxConcurrency int
}

// New creates a Gateway from options.
func New(opts Options) (*Gateway, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("a registry is required")
	}
	switch opts.Mode {
	case "", ModeSequential, ModeConcurrent:
	default:
		return nil, fmt.Errorf("unknown mode: %q", opts.Mode)
	}

	var client *upstream.Client
	specClient := opts.HTTPClient
	if opts.HTTPClient != nil {
		client = upstream.NewClientWith(opts.HTTPClient)
	} else {
		client = upstream.NewClient(opts.UpstreamTimeout)
		specClient = &http.Client{Timeout: opts.UpstreamTimeout}
	}

	return &Gateway{
		registry:       opts.Registry,
		client:         client,
		specClient:     specClient,
		mode:           opts.Mode,
		maxConcurrency: opts.MaxConcurrency,
	}, nil
}

// NewFromConfig creates a Gateway with an in-memory registry built from the
// config's registry document.
func NewFromConfig(cfg Config) (*Gateway, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	reg, err := registry.NewMemory(&cfg.Registry)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}
	return New(Options{
		Registry:        reg,
		Mode:            cfg.Mode,
		MaxConcurrency:  cfg.MaxConcurrency,
		UpstreamTimeout: timeout,
	})
}

// Perform handles one inbound request end to end: resolve the operation
// against the service's OpenAPI document, forward the call, run the join
// fan-out when requested, and assemble the response.
//
// Unknown services and unresolvable endpoints come back as 404 responses
// with a JSON detail body, not as errors. A non-nil error means the gateway
// itself failed (unreachable spec, transport failure, broken mesh
// configuration); ErrorResponse maps those onto HTTP.
func (g *Gateway) Perform(ctx context.Context, in *Inbound) (*GatewayResponse, error) {
	start := time.Now()
	log := logging.FromContext(ctx)
	state := g.newRequestState(in.Authorization)

	op, callURL, err := state.resolve(ctx, in.Service, in.Model, in.PK, in.Method)
	if err != nil {
		switch {
		case registry.IsNotFound(err):
			g.observe(in, "not_found", start)
			return errorResponse(http.StatusNotFound,
				fmt.Sprintf("service %s does not exist", in.Service)), nil
		case openapi.IsOperationNotFound(err):
			g.observe(in, "not_found", start)
			return errorResponse(http.StatusNotFound, err.Error()), nil
		default:
			g.observe(in, "error", start)
			return nil, err
		}
	}

	// Eligibility looks at the raw inbound query: a join request carries the
	// join flag, and caching its primary result would hand join sub-requests
	// for the same URL a half-mutated record.
	cacheable := respcache.Eligible(op.Method, in.Query)

	var (
		res    *upstream.Result
		cached bool
	)
	if cacheable {
		res, cached = state.resps.Get(callURL)
	}
	if !cached {
		res, err = g.client.Do(ctx, upstream.Request{
			Method:        op.Method,
			URL:           callURL,
			Authorization: in.Authorization,
			ContentType:   in.ContentType,
			Query:         in.Query,
			JSONBody:      in.JSONBody,
			Form:          in.Form,
			Files:         in.Files,
		})
		if err != nil {
			g.observe(in, "error", start)
			return nil, &GatewayError{Detail: "forward request to " + in.Service, Err: err}
		}
		if cacheable {
			state.resps.Put(callURL, res)
		}
	}

	joined := false
	if in.JoinRequested() && res.Status >= 200 && res.Status < 300 && res.Payload.Structured() {
		joined, err = g.join(ctx, state, in, res)
		if err != nil {
			g.observe(in, "error", start)
			return nil, err
		}
	}

	resp, err := assemble(res, joined)
	if err != nil {
		g.observe(in, "error", start)
		return nil, err
	}

	g.observe(in, "success", start)
	log.Info("request completed",
		"service", in.Service,
		"model", in.Model,
		"method", op.Method,
		"status", res.Status,
		"joined", joined,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

// join runs the planner and the configured executor over the primary result.
// It reports whether the payload was expanded.
func (g *Gateway) join(ctx context.Context, state *requestState, in *Inbound, res *upstream.Result) (bool, error) {
	log := logging.FromContext(ctx)

	model, err := g.registry.Model(ctx, in.Service, in.Model)
	if err != nil {
		if registry.IsNotFound(err) {
			// Joining an unregistered model is a no-op, not a failure.
			log.Warn("join requested for unregistered model",
				"service", in.Service, "model", in.Model)
			return false, nil
		}
		return false, err
	}

	planner := &datamesh.Planner{Registry: g.registry, Log: log}
	plan, err := planner.Plan(ctx, res.Payload, model)
	if err != nil {
		return false, err
	}

	if err := g.executor(log).Execute(ctx, plan, state); err != nil {
		return false, err
	}
	return true, nil
}

func (g *Gateway) executor(log *slog.Logger) datamesh.Executor {
	if g.mode == ModeConcurrent {
		return &datamesh.Concurrent{MaxInFlight: g.maxConcurrency, Log: log}
	}
	return &datamesh.Sequential{Log: log}
}

func (g *Gateway) observe(in *Inbound, outcome string, start time.Time) {
	metrics.RequestsTotal.WithLabelValues(in.Service, in.Method, outcome).Inc()
	metrics.RequestDuration.WithLabelValues(in.Service, in.Method).Observe(time.Since(start).Seconds())
}
