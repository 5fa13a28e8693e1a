package datamesh

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Concurrent runs sub-requests in parallel. Spec documents for the plan's
// services are warmed first so the fan-out never races on a cold cache, then
// every item runs in its own goroutine. Items deliver into distinct slots,
// so no synchronisation is needed on the embed lists themselves.
type Concurrent struct {
	// MaxInFlight caps simultaneous sub-requests; zero means unlimited.
	MaxInFlight int
	Log         *slog.Logger
}

// Execute warms the specs, fans out the items, and commits the plan. Workers
// always return nil so one failed sub-request never cancels its siblings.
func (c *Concurrent) Execute(ctx context.Context, plan *Plan, req Requester) error {
	warm, warmCtx := errgroup.WithContext(ctx)
	for _, service := range plan.Services {
		service := service
		warm.Go(func() error {
			if err := req.WarmSpec(warmCtx, service); err != nil {
				c.log().WarnContext(warmCtx, "spec warm-up failed",
					"service", service, "error", err)
			}
			return nil
		})
	}
	_ = warm.Wait()

	g, gctx := errgroup.WithContext(ctx)
	if c.MaxInFlight > 0 {
		g.SetLimit(c.MaxInFlight)
	}
	for _, item := range plan.Items {
		item := item
		g.Go(func() error {
			obj, err := req.Subrequest(gctx, item.Service, item.Model, item.PK)
			if err != nil {
				c.log().WarnContext(gctx, "join sub-request failed",
					"service", item.Service, "model", item.Model, "pk", item.PK,
					"error", err,
				)
				return nil
			}
			if obj != nil {
				item.Deliver(obj)
			}
			return nil
		})
	}
	_ = g.Wait()

	plan.Commit()
	return ctx.Err()
}

func (c *Concurrent) log() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}
