package registry

import (
	"context"
	"errors"
	"fmt"
)

// Registry is the read-only query interface over data-mesh metadata.
// Implementations must be safe for concurrent readers; the gateway calls
// them from parallel join sub-tasks.
type Registry interface {
	// LogicModule retrieves a service by its endpoint name.
	LogicModule(ctx context.Context, name string) (*LogicModule, error)
	// Model retrieves a resource type by service name and endpoint fragment.
	Model(ctx context.Context, service, endpoint string) (*Model, error)
	// Relationships returns the relationships of a model in declaration
	// order, each tagged with the direction it is traversed in from that
	// model's point of view.
	Relationships(ctx context.Context, service, endpoint string) ([]Link, error)
	// JoinRecords returns the join records whose origin-side key (for the
	// given direction) equals originPK, in stable order.
	JoinRecords(ctx context.Context, originPK string, rel Relationship, forward bool) ([]JoinRecord, error)
}

// NotFoundError reports a missing registry entity.
type NotFoundError struct {
	Kind string // "service", "model"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// IsNotFound reports whether err is a registry NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
