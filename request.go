package meshgateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ferro-labs/mesh-gateway/internal/metrics"
	"github.com/ferro-labs/mesh-gateway/internal/openapi"
	"github.com/ferro-labs/mesh-gateway/internal/respcache"
	"github.com/ferro-labs/mesh-gateway/internal/speccache"
	"github.com/ferro-labs/mesh-gateway/internal/upstream"
)

// Inbound is one request entering the gateway, already split into its
// routing parts. The transport layer (cmd/meshgw or tests) builds it from
// the raw HTTP request.
type Inbound struct {
	// Service is the logic-module name, the first URL segment.
	Service string
	// Model is the endpoint fragment, the second URL segment.
	Model string
	// PK is the optional third URL segment identifying one record.
	PK string

	Method string
	Query  url.Values

	// Authorization is forwarded verbatim to every upstream call made on
	// behalf of this request, sub-requests included.
	Authorization string
	// ContentType is the inbound media type; it selects the forwarding body
	// encoding.
	ContentType string
	JSONBody    []byte
	Form        url.Values
	Files       []upstream.File
}

// JoinRequested reports whether the caller asked for relationship expansion.
func (in *Inbound) JoinRequested() bool {
	return in.Query.Has("join")
}

// requestState carries the per-request caches. A fresh state is created for
// every inbound request; nothing in it outlives the request.
type requestState struct {
	g     *Gateway
	specs *speccache.Cache
	resps *respcache.Cache

	authorization string
}

func (g *Gateway) newRequestState(authorization string) *requestState {
	return &requestState{
		g:             g,
		specs:         speccache.New(g.specClient),
		resps:         respcache.New(),
		authorization: authorization,
	}
}

// resolve maps (service, model, pk, method) onto a concrete upstream call:
// the canonical method from the service's OpenAPI document and the full URL.
func (s *requestState) resolve(ctx context.Context, service, model, pk, method string) (openapi.ResolvedOp, string, error) {
	lm, err := s.g.registry.LogicModule(ctx, service)
	if err != nil {
		return openapi.ResolvedOp{}, "", err
	}

	doc, err := s.specs.Get(ctx, lm.SchemaURL)
	if err != nil {
		return openapi.ResolvedOp{}, "", gatewayErrorf(err, "fetch OpenAPI spec for service %q", service)
	}

	op, err := doc.Resolve(method, model, pk)
	if err != nil {
		return openapi.ResolvedOp{}, "", err
	}

	base := doc.BaseURL
	if lm.BaseURL != "" {
		base = lm.BaseURL
	}
	return op, strings.TrimRight(base, "/") + op.Path, nil
}

// WarmSpec implements datamesh.Requester.
func (s *requestState) WarmSpec(ctx context.Context, service string) error {
	lm, err := s.g.registry.LogicModule(ctx, service)
	if err != nil {
		return err
	}
	_, err = s.specs.Get(ctx, lm.SchemaURL)
	return err
}

// Subrequest implements datamesh.Requester: a parameter-free GET on the
// related model's detail operation. Results that cannot be embedded (non-2xx
// status, non-object body) come back as (nil, nil) and drop their slot.
func (s *requestState) Subrequest(ctx context.Context, service, model, pk string) (map[string]any, error) {
	op, callURL, err := s.resolve(ctx, service, model, pk, http.MethodGet)
	if err != nil {
		metrics.JoinSubrequests.WithLabelValues("error").Inc()
		return nil, err
	}

	res, ok := s.resps.Get(callURL)
	if !ok {
		res, err = s.g.client.Do(ctx, upstream.Request{
			Method:        op.Method,
			URL:           callURL,
			Authorization: s.authorization,
		})
		if err != nil {
			metrics.JoinSubrequests.WithLabelValues("error").Inc()
			return nil, err
		}
		s.resps.Put(callURL, res)
	}

	if res.Status < 200 || res.Status >= 300 {
		metrics.JoinSubrequests.WithLabelValues("dropped").Inc()
		return nil, nil
	}
	obj, isObj := res.Payload.Object()
	if !isObj {
		metrics.JoinSubrequests.WithLabelValues("dropped").Inc()
		return nil, nil
	}
	metrics.JoinSubrequests.WithLabelValues("ok").Inc()
	return obj, nil
}
