// Package registry holds the data-mesh metadata the gateway routes by:
// upstream services (LogicModule), the resource types they expose (Model),
// declared edges between them (Relationship), and the materialized links
// connecting individual records (JoinRecord).
//
// The Registry interface is a pure query provider. Two implementations ship
// with the gateway: Memory (loaded from the config document) and SQL
// (SQLite or Postgres).
package registry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// LogicModule is a registered upstream service.
type LogicModule struct {
	// Name is the stable identifier used in inbound URLs.
	Name string `json:"name" yaml:"name"`
	// SchemaURL is where the service's OpenAPI document is fetched from.
	SchemaURL string `json:"schema_url" yaml:"schema_url"`
	// BaseURL optionally overrides the base URL declared in the OpenAPI
	// document.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// ModelRef identifies a resource type by service name and endpoint fragment.
type ModelRef struct {
	Service  string `json:"service" yaml:"service"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

func (r ModelRef) String() string {
	return r.Service + r.Endpoint
}

// EndpointName returns the endpoint fragment without surrounding slashes,
// i.e. the {model} segment of an inbound URL.
func (r ModelRef) EndpointName() string {
	return strings.Trim(r.Endpoint, "/")
}

// Model is one resource type exposed by a LogicModule.
// (Service, Endpoint) pairs are unique within a registry.
type Model struct {
	Service string `json:"service" yaml:"service"`
	// Endpoint is the path fragment, e.g. "/products/".
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// LookupField names the attribute in an upstream payload holding the
	// join key.
	LookupField string `json:"lookup_field" yaml:"lookup_field"`
}

// Ref returns the model's identifying reference.
func (m Model) Ref() ModelRef {
	return ModelRef{Service: m.Service, Endpoint: m.Endpoint}
}

// Relationship is a directed edge between two models. Key is the name under
// which related data is embedded into origin records.
type Relationship struct {
	Key     string   `json:"key" yaml:"key"`
	Origin  ModelRef `json:"origin" yaml:"origin"`
	Related ModelRef `json:"related" yaml:"related"`
}

// Link pairs a relationship with the direction it is traversed in for a
// particular join. Direction is a per-join decision, not a property of the
// relationship itself.
type Link struct {
	Relationship Relationship
	Forward      bool
}

// JoinRecord materializes one edge instance between an origin record and a
// related record. Each side carries exactly one of a numeric id or a UUID.
type JoinRecord struct {
	// Relationship is the key of the relationship this record belongs to.
	Relationship string `json:"relationship" yaml:"relationship"`

	RecordID   *int64  `json:"record_id,omitempty" yaml:"record_id,omitempty"`
	RecordUUID *string `json:"record_uuid,omitempty" yaml:"record_uuid,omitempty"`

	RelatedRecordID   *int64  `json:"related_record_id,omitempty" yaml:"related_record_id,omitempty"`
	RelatedRecordUUID *string `json:"related_record_uuid,omitempty" yaml:"related_record_uuid,omitempty"`
}

// Validate checks the exactly-one-key invariant on both sides.
func (jr JoinRecord) Validate() error {
	if err := oneKey("record", jr.RecordID, jr.RecordUUID); err != nil {
		return err
	}
	return oneKey("related_record", jr.RelatedRecordID, jr.RelatedRecordUUID)
}

func oneKey(side string, id *int64, uid *string) error {
	switch {
	case id == nil && uid == nil:
		return fmt.Errorf("join record: %s_id and %s_uuid are both empty", side, side)
	case id != nil && uid != nil:
		return fmt.Errorf("join record: %s_id and %s_uuid are both set", side, side)
	case uid != nil:
		if _, err := uuid.Parse(*uid); err != nil {
			return fmt.Errorf("join record: invalid %s_uuid %q: %w", side, *uid, err)
		}
	}
	return nil
}

// OriginKey returns the string form of the origin-side key for the given
// traversal direction (the side matched against a record's lookup field).
func (jr JoinRecord) OriginKey(forward bool) string {
	if forward {
		return keyString(jr.RecordID, jr.RecordUUID)
	}
	return keyString(jr.RelatedRecordID, jr.RelatedRecordUUID)
}

// RelatedKey returns the string form of the far-side key for the given
// traversal direction.
func (jr JoinRecord) RelatedKey(forward bool) string {
	if forward {
		return keyString(jr.RelatedRecordID, jr.RelatedRecordUUID)
	}
	return keyString(jr.RecordID, jr.RecordUUID)
}

func keyString(id *int64, uid *string) string {
	if id != nil {
		return strconv.FormatInt(*id, 10)
	}
	if uid != nil {
		return *uid
	}
	return ""
}

// RelatedSide resolves which model a join record points at for this link's
// direction, together with the pk of the related record.
func (l Link) RelatedSide(jr JoinRecord) (ModelRef, string) {
	if l.Forward {
		return l.Relationship.Related, jr.RelatedKey(true)
	}
	return l.Relationship.Origin, jr.RelatedKey(false)
}
