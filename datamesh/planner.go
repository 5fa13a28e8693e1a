// Package datamesh plans and executes the join fan-out: expanding a primary
// response into sub-requests against related services and embedding their
// results under the declared relationship keys.
//
// The package splits into a Planner, which inspects the primary payload and
// the relationship registry without performing any I/O, and two Executor
// strategies (Sequential, Concurrent) that run the planned sub-requests.
package datamesh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ferro-labs/mesh-gateway/payload"
	"github.com/ferro-labs/mesh-gateway/registry"
)

// ConfigError reports broken data-mesh configuration discovered while
// planning, e.g. a primary record missing its configured lookup field.
type ConfigError struct {
	Detail string
}

func (e *ConfigError) Error() string {
	return "datamesh configuration error: " + e.Detail
}

// EmbedList is the target list for one (record, relationship) pair. Slots
// are positional: results land at the index of their join record, so the
// committed order always matches the registry's join-record order no matter
// how sub-requests interleave.
type EmbedList struct {
	record map[string]any
	key    string
	slots  []map[string]any
}

// Commit writes the list into its record under the relationship key,
// dropping slots that were never delivered. The key is always set, possibly
// to an empty list.
func (l *EmbedList) Commit() {
	out := make([]any, 0, len(l.slots))
	for _, obj := range l.slots {
		if obj != nil {
			out = append(out, obj)
		}
	}
	l.record[l.key] = out
}

// Item is one planned sub-request.
type Item struct {
	Service string
	Model   string // endpoint fragment without slashes
	PK      string

	list  *EmbedList
	index int
}

// Deliver places a sub-request result into the item's slot.
func (it Item) Deliver(obj map[string]any) {
	it.list.slots[it.index] = obj
}

// Plan is the full fan-out for one primary response.
type Plan struct {
	Items []Item
	// Services lists the distinct related services referenced by the plan,
	// in first-seen order; the concurrent executor warms their specs.
	Services []string

	lists []*EmbedList
}

// Empty reports whether the plan contains no sub-requests.
func (p *Plan) Empty() bool { return len(p.Items) == 0 }

// Commit finalizes every embed list. Executors call this after all items
// have been attempted.
func (p *Plan) Commit() {
	for _, l := range p.lists {
		l.Commit()
	}
}

// Planner expands primary payloads into plans. It performs registry lookups
// but never any HTTP I/O.
type Planner struct {
	Registry registry.Registry
	Log      *slog.Logger
}

// Plan builds the fan-out for a primary payload belonging to origin.
//
// Payload normalization follows the upstream pagination convention: an
// object containing a "results" array is treated as a list of records;
// a bare object is a detail view; an array is a list view.
//
// A detail record missing the configured lookup field is a ConfigError.
// A list record missing it is skipped with a warning; the surviving records
// still join.
func (p *Planner) Plan(ctx context.Context, value payload.Value, origin *registry.Model) (*Plan, error) {
	records, detail := normalize(value)

	links, err := p.Registry.Relationships(ctx, origin.Service, origin.Endpoint)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	seen := make(map[string]struct{})

	for _, record := range records {
		originPK := lookupKey(record, origin.LookupField)
		if originPK == "" {
			if detail {
				return nil, &ConfigError{Detail: fmt.Sprintf(
					"lookup_field_name %q not found in response", origin.LookupField)}
			}
			p.log().WarnContext(ctx, "skipping record without lookup field",
				"lookup_field", origin.LookupField,
				"model", origin.Service+origin.Endpoint,
			)
			continue
		}

		for _, link := range links {
			// The relationship key is always present on joined records,
			// even when no join records exist.
			record[link.Relationship.Key] = []any{}

			joins, err := p.Registry.JoinRecords(ctx, originPK, link.Relationship, link.Forward)
			if err != nil {
				return nil, err
			}

			list := &EmbedList{
				record: record,
				key:    link.Relationship.Key,
				slots:  make([]map[string]any, len(joins)),
			}
			plan.lists = append(plan.lists, list)

			for i, jr := range joins {
				ref, pk := link.RelatedSide(jr)
				if pk == "" {
					p.log().ErrorContext(ctx, "join record has no related key",
						"relationship", link.Relationship.Key, "origin_pk", originPK)
					continue
				}
				if _, ok := seen[ref.Service]; !ok {
					seen[ref.Service] = struct{}{}
					plan.Services = append(plan.Services, ref.Service)
				}
				plan.Items = append(plan.Items, Item{
					Service: ref.Service,
					Model:   strings.Trim(ref.Endpoint, "/"),
					PK:      pk,
					list:    list,
					index:   i,
				})
			}
		}
	}
	return plan, nil
}

func (p *Planner) log() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

// normalize extracts the records to join over and whether the payload is a
// detail view.
func normalize(value payload.Value) (records []map[string]any, detail bool) {
	if obj, ok := value.Object(); ok {
		if results, ok := obj["results"].([]any); ok {
			return objectItems(results), false
		}
		return []map[string]any{obj}, true
	}
	if arr, ok := value.Array(); ok {
		return objectItems(arr), false
	}
	return nil, false
}

func objectItems(items []any) []map[string]any {
	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			records = append(records, obj)
		}
	}
	return records
}

// lookupKey reads the join key from a record and renders it as a string.
func lookupKey(record map[string]any, field string) string {
	v, ok := record[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
