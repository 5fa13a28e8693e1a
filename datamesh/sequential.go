package datamesh

import (
	"context"
	"log/slog"
)

// Sequential runs sub-requests one at a time, in plan order. It is the
// default execution mode and keeps upstream load strictly serial.
type Sequential struct {
	Log *slog.Logger
}

// Execute runs every item in order. Failed or non-object results drop their
// slot; the error is logged and execution continues.
func (s *Sequential) Execute(ctx context.Context, plan *Plan, req Requester) error {
	for _, item := range plan.Items {
		if err := ctx.Err(); err != nil {
			plan.Commit()
			return err
		}
		obj, err := req.Subrequest(ctx, item.Service, item.Model, item.PK)
		if err != nil {
			s.log().WarnContext(ctx, "join sub-request failed",
				"service", item.Service, "model", item.Model, "pk", item.PK,
				"error", err,
			)
			continue
		}
		if obj != nil {
			item.Deliver(obj)
		}
	}
	plan.Commit()
	return nil
}

func (s *Sequential) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}
