package datamesh

import (
	"context"
)

// Requester performs the I/O the executors need. The gateway's request state
// implements it on top of the spec cache, the response cache, and the
// upstream client.
type Requester interface {
	// Subrequest fetches one related record: GET on the model's detail
	// operation with the given primary key. A nil error with a nil object
	// means the result could not be embedded (non-2xx, non-object body).
	Subrequest(ctx context.Context, service, model, pk string) (map[string]any, error)

	// WarmSpec ensures the service's OpenAPI document is cached so that
	// concurrent sub-requests do not race on the first fetch.
	WarmSpec(ctx context.Context, service string) error
}

// Executor runs a plan's sub-requests and delivers results into the plan's
// embed slots. Executors are fail-open: a failed sub-request drops its slot
// and never fails the primary response. Execute returns an error only on
// context cancellation.
type Executor interface {
	Execute(ctx context.Context, plan *Plan, req Requester) error
}
